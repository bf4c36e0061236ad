package persist

import (
	"time"

	"gorm.io/gorm"
)

// CallRecordRepository handles call-detail-record persistence.
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call-record repository.
func NewCallRecordRepository(db *DB) *CallRecordRepository {
	return &CallRecordRepository{db: db.db}
}

// Create adds a new call record, written once per call on teardown.
func (r *CallRecordRepository) Create(rec *CallRecord) error {
	return r.db.Create(rec).Error
}

// GetRecent retrieves the most recent N call records across all protocols.
func (r *CallRecordRepository) GetRecent(limit int) ([]CallRecord, error) {
	var records []CallRecord
	err := r.db.Order("start_time DESC").Limit(limit).Find(&records).Error
	return records, err
}

// GetByProtocol retrieves the most recent N records for one protocol
// ("dmr", "p25", or "nxdn").
func (r *CallRecordRepository) GetByProtocol(protocol string, limit int) ([]CallRecord, error) {
	var records []CallRecord
	err := r.db.Where("protocol = ?", protocol).
		Order("start_time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// GetByTalkgroup retrieves the most recent N records for a destination id.
func (r *CallRecordRepository) GetByTalkgroup(dstID uint32, limit int) ([]CallRecord, error) {
	var records []CallRecord
	err := r.db.Where("dst_id = ?", dstID).
		Order("start_time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// DeleteOlderThan deletes call records older than the given time, for
// periodic log rotation.
func (r *CallRecordRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&CallRecord{})
	return result.RowsAffected, result.Error
}

// FlashSnapshotRepository handles the flash-configuration mirror.
type FlashSnapshotRepository struct {
	db *gorm.DB
}

// NewFlashSnapshotRepository creates a new flash-snapshot repository.
func NewFlashSnapshotRepository(db *DB) *FlashSnapshotRepository {
	return &FlashSnapshotRepository{db: db.db}
}

// Save upserts the named snapshot's blob, replacing whatever was there.
func (r *FlashSnapshotRepository) Save(name string, blob []byte) error {
	snap := FlashSnapshot{
		Name:      name,
		Blob:      append([]byte(nil), blob...),
		UpdatedAt: time.Now(),
	}
	return r.db.Save(&snap).Error
}

// Load retrieves the named snapshot's blob. It reports false if no
// snapshot has ever been saved under that name, which is the expected
// state on a host's very first run.
func (r *FlashSnapshotRepository) Load(name string) ([]byte, bool, error) {
	var snap FlashSnapshot
	err := r.db.Where("name = ?", name).First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snap.Blob, true, nil
}
