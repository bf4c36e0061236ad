package persist

import (
	"time"

	"gorm.io/gorm"
)

// CallRecord is one completed call's detail record: identity, timing, and
// the loss count accumulated over its life. The host writes one per DMR or
// P25 grant release (TDU, watchdog or ICC teardown); NXDN calls produce
// no record.
type CallRecord struct {
	ID uint `gorm:"primarykey" json:"id"`

	Protocol string `gorm:"index;size:8;not null" json:"protocol"` // "dmr", "p25", "nxdn"
	Slot     int    `gorm:"default:0" json:"slot"`                 // DMR slot (1/2), 0 for p25/nxdn

	SrcID uint32 `gorm:"index;not null" json:"src_id"`
	DstID uint32 `gorm:"index;not null" json:"dst_id"`

	StreamID uint32 `gorm:"index" json:"stream_id"`

	StartTime time.Time `gorm:"index;not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	Duration  float64   `gorm:"not null" json:"duration"` // seconds

	LossCount int `gorm:"default:0" json:"loss_count"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for CallRecord.
func (CallRecord) TableName() string {
	return "call_records"
}

// BeforeCreate fills in timestamps a caller forgot to set.
func (r *CallRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
	return nil
}

// FlashSnapshot is the last-known-good modem flash configuration blob,
// cached across restarts so the host has a comparison baseline before the
// next FLSH_READ completes. Singleton row keyed by Name.
type FlashSnapshot struct {
	Name      string    `gorm:"primarykey;size:32" json:"name"`
	Blob      []byte    `gorm:"not null" json:"blob"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for FlashSnapshot.
func (FlashSnapshot) TableName() string {
	return "flash_snapshots"
}

// DefaultFlashSnapshotName is the singleton row name used when a host has
// exactly one attached modem, which is the common case.
const DefaultFlashSnapshotName = "default"
