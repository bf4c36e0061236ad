package persist

import (
	"os"
	"testing"
	"time"

	"github.com/dvmproject-go/dvmhost/pkg/logger"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	path := t.TempDir() + "/dvmhost_test.db"
	db, err := Open(Config{Path: path}, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_DefaultPath(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	defer func() { _ = os.Remove("dvmhost.db") }()

	db, err := Open(Config{}, log)
	if err != nil {
		t.Fatalf("Open with default path: %v", err)
	}
	defer func() { _ = db.Close() }()

	if db.db == nil {
		t.Fatalf("expected non-nil database connection")
	}
}

func TestCallRecord_BeforeCreateFillsTimestamps(t *testing.T) {
	db := testDB(t)
	repo := NewCallRecordRepository(db)

	rec := &CallRecord{
		Protocol: "p25",
		SrcID:    100,
		DstID:    200,
	}
	if err := repo.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rec.StartTime.IsZero() || rec.EndTime.IsZero() || rec.CreatedAt.IsZero() {
		t.Fatalf("expected BeforeCreate to fill in timestamps, got %+v", rec)
	}
}

func TestCallRecordRepository_GetByProtocol(t *testing.T) {
	db := testDB(t)
	repo := NewCallRecordRepository(db)

	now := time.Now()
	for i, proto := range []string{"dmr", "p25", "dmr"} {
		rec := &CallRecord{
			Protocol:  proto,
			SrcID:     uint32(100 + i),
			DstID:     9,
			StartTime: now.Add(time.Duration(i) * time.Second),
			EndTime:   now.Add(time.Duration(i)*time.Second + time.Second),
		}
		if err := repo.Create(rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	dmrRecords, err := repo.GetByProtocol("dmr", 10)
	if err != nil {
		t.Fatalf("GetByProtocol: %v", err)
	}
	if len(dmrRecords) != 2 {
		t.Fatalf("expected 2 dmr records, got %d", len(dmrRecords))
	}
}

func TestCallRecordRepository_DeleteOlderThan(t *testing.T) {
	db := testDB(t)
	repo := NewCallRecordRepository(db)

	old := time.Now().Add(-48 * time.Hour)
	rec := &CallRecord{
		Protocol:  "nxdn",
		SrcID:     1,
		DstID:     2,
		StartTime: old,
		EndTime:   old.Add(time.Second),
	}
	if err := repo.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted record, got %d", n)
	}

	remaining, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining records, got %d", len(remaining))
	}
}

func TestFlashSnapshotRepository_SaveLoadRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewFlashSnapshotRepository(db)

	if _, ok, err := repo.Load(DefaultFlashSnapshotName); err != nil {
		t.Fatalf("Load: %v", err)
	} else if ok {
		t.Fatalf("expected no snapshot before the first Save")
	}

	blob := []byte{0x01, 0x02, 0x03}
	if err := repo.Save(DefaultFlashSnapshotName, blob); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := repo.Load(DefaultFlashSnapshotName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("expected a snapshot after Save")
	}
	if string(got) != string(blob) {
		t.Fatalf("expected blob %v, got %v", blob, got)
	}

	// A second Save overwrites rather than appending a new row.
	blob2 := []byte{0xAA}
	if err := repo.Save(DefaultFlashSnapshotName, blob2); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}
	got2, ok2, err := repo.Load(DefaultFlashSnapshotName)
	if err != nil || !ok2 {
		t.Fatalf("Load after overwrite: ok=%v err=%v", ok2, err)
	}
	if string(got2) != string(blob2) {
		t.Fatalf("expected overwritten blob %v, got %v", blob2, got2)
	}
}
