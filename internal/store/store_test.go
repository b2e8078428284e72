package store

import (
	"encoding/json"
	"testing"

	"github.com/brewkit/brewsync/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestRecordCRUD tests put, get, overwrite and delete of one record.
func TestRecordCRUD(t *testing.T) {
	s := openTestStore(t)

	rec := &models.SyncRecord{
		ID:        "b1",
		Timestamp: 100,
		Payload:   &models.Bean{ID: "b1", Name: "Yirgacheffe", Timestamp: 100},
	}
	if err := s.Put(models.TableBeans, rec); err != nil {
		t.Fatalf("Failed to put record: %v", err)
	}

	got, err := s.Get(models.TableBeans, "b1")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if got == nil || got.Timestamp != 100 {
		t.Fatalf("Unexpected record: %+v", got)
	}
	if got.Payload.(*models.Bean).Name != "Yirgacheffe" {
		t.Errorf("Unexpected payload: %+v", got.Payload)
	}

	// Overwrite via the upsert path.
	rec.Timestamp = 200
	rec.Payload.(*models.Bean).Name = "Gesha"
	if err := s.Put(models.TableBeans, rec); err != nil {
		t.Fatalf("Failed to overwrite record: %v", err)
	}
	got, _ = s.Get(models.TableBeans, "b1")
	if got.Timestamp != 200 || got.Payload.(*models.Bean).Name != "Gesha" {
		t.Errorf("Overwrite did not stick: %+v", got)
	}

	if err := s.Delete(models.TableBeans, "b1"); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}
	got, err = s.Get(models.TableBeans, "b1")
	if err != nil || got != nil {
		t.Errorf("Expected (nil, nil) after delete, got (%+v, %v)", got, err)
	}

	// Deleting again is not an error.
	if err := s.Delete(models.TableBeans, "b1"); err != nil {
		t.Errorf("Repeated delete failed: %v", err)
	}
}

// TestGetMissingRecord tests the (nil, nil) contract.
func TestGetMissingRecord(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get(models.TableBeans, "nope")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil record, got %+v", got)
	}
}

// TestBulkPutAndList tests transactional bulk writes and ordered listing.
func TestBulkPutAndList(t *testing.T) {
	s := openTestStore(t)

	recs := []*models.SyncRecord{
		{ID: "b2", Timestamp: 2, Payload: &models.Bean{ID: "b2", Name: "two", Timestamp: 2}},
		{ID: "b1", Timestamp: 1, Payload: &models.Bean{ID: "b1", Name: "one", Timestamp: 1}},
		{ID: "b3", Timestamp: 3, Payload: &models.Bean{ID: "b3", Name: "three", Timestamp: 3}},
	}
	if err := s.BulkPut(models.TableBeans, recs); err != nil {
		t.Fatalf("Failed to bulk put: %v", err)
	}

	list, err := s.List(models.TableBeans)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(list))
	}
	for i, want := range []string{"b1", "b2", "b3"} {
		if list[i].ID != want {
			t.Errorf("Expected %s at %d, got %s", want, i, list[i].ID)
		}
	}

	// Collections are isolated from each other.
	other, err := s.List(models.TableEquipments)
	if err != nil {
		t.Fatalf("Failed to list other table: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected empty equipments, got %d", len(other))
	}
}

// TestBulkDelete tests transactional bulk deletes.
func TestBulkDelete(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"b1", "b2", "b3"} {
		s.Put(models.TableBeans, &models.SyncRecord{
			ID: id, Timestamp: 1, Payload: &models.Bean{ID: id, Name: id, Timestamp: 1},
		})
	}
	if err := s.BulkDelete(models.TableBeans, []string{"b1", "b3"}); err != nil {
		t.Fatalf("Failed to bulk delete: %v", err)
	}

	list, _ := s.List(models.TableBeans)
	if len(list) != 1 || list[0].ID != "b2" {
		t.Errorf("Expected only b2 to survive, got %+v", list)
	}
}

// TestPendingOpCoalescing tests that a second enqueue for the same
// (table, record) replaces op type and payload but keeps the original
// queue position.
func TestPendingOpCoalescing(t *testing.T) {
	s := openTestStore(t)

	first := &models.PendingOperation{
		ID:         "op1",
		Table:      string(models.TableBeans),
		OpType:     models.OpUpsert,
		RecordID:   "b1",
		Payload:    json.RawMessage(`{"id":"b1","name":"v1","timestamp":100}`),
		EnqueuedAt: 1000,
		RetryCount: 2,
	}
	if err := s.PutPendingOp(first); err != nil {
		t.Fatalf("Failed to put first op: %v", err)
	}

	second := &models.PendingOperation{
		ID:         "op2",
		Table:      string(models.TableBeans),
		OpType:     models.OpDelete,
		RecordID:   "b1",
		EnqueuedAt: 2000,
	}
	if err := s.PutPendingOp(second); err != nil {
		t.Fatalf("Failed to put second op: %v", err)
	}

	n, _ := s.CountPendingOps()
	if n != 1 {
		t.Fatalf("Expected 1 coalesced entry, got %d", n)
	}

	got, err := s.GetPendingOp(models.TableBeans, "b1")
	if err != nil || got == nil {
		t.Fatalf("Failed to get coalesced op: %v", err)
	}
	if got.OpType != models.OpDelete {
		t.Errorf("Expected op type replaced, got %s", got.OpType)
	}
	if got.ID != "op1" || got.EnqueuedAt != 1000 {
		t.Errorf("Expected original id and queue position kept, got id=%s enqueued=%d", got.ID, got.EnqueuedAt)
	}
	if got.RetryCount != 0 {
		t.Errorf("Expected retry count reset by fresh enqueue, got %d", got.RetryCount)
	}
	if len(got.Payload) != 0 {
		t.Errorf("Expected delete op to carry no payload, got %s", got.Payload)
	}
}

// TestPendingOpFIFO tests listing order and retry bookkeeping.
func TestPendingOpFIFO(t *testing.T) {
	s := openTestStore(t)

	for i, id := range []string{"b3", "b1", "b2"} {
		op := &models.PendingOperation{
			ID:         "op-" + id,
			Table:      string(models.TableBeans),
			OpType:     models.OpUpsert,
			RecordID:   id,
			Payload:    json.RawMessage(`{"id":"` + id + `","timestamp":1}`),
			EnqueuedAt: int64(1000 + i),
		}
		if err := s.PutPendingOp(op); err != nil {
			t.Fatalf("Failed to enqueue %s: %v", id, err)
		}
	}

	ops, err := s.ListPendingOps()
	if err != nil {
		t.Fatalf("Failed to list ops: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("Expected 3 ops, got %d", len(ops))
	}
	for i, want := range []string{"b3", "b1", "b2"} {
		if ops[i].RecordID != want {
			t.Errorf("Expected %s at %d, got %s", want, i, ops[i].RecordID)
		}
	}

	if err := s.UpdatePendingOpRetries(ops[0].ID, 2); err != nil {
		t.Fatalf("Failed to update retries: %v", err)
	}
	again, _ := s.ListPendingOps()
	if again[0].RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", again[0].RetryCount)
	}

	if err := s.UpdatePendingOpRetries("missing", 1); err == nil {
		t.Error("Expected error updating a missing op")
	}

	if err := s.DeletePendingOp(ops[0].ID); err != nil {
		t.Fatalf("Failed to delete op: %v", err)
	}
	n, _ := s.CountPendingOps()
	if n != 2 {
		t.Errorf("Expected 2 ops after delete, got %d", n)
	}
}

// TestWatermark tests the persisted sync watermark round trip.
func TestWatermark(t *testing.T) {
	s := openTestStore(t)

	ms, err := s.LastSyncTime()
	if err != nil {
		t.Fatalf("Failed to read fresh watermark: %v", err)
	}
	if ms != 0 {
		t.Errorf("Expected 0 before first sync, got %d", ms)
	}

	if err := s.SetLastSyncTime(1772359200000); err != nil {
		t.Fatalf("Failed to set watermark: %v", err)
	}
	ms, _ = s.LastSyncTime()
	if ms != 1772359200000 {
		t.Errorf("Expected 1772359200000, got %d", ms)
	}

	// Advancing overwrites in place.
	s.SetLastSyncTime(1772359999000)
	ms, _ = s.LastSyncTime()
	if ms != 1772359999000 {
		t.Errorf("Expected advanced watermark, got %d", ms)
	}
}

// TestQueueSurvivesReopen tests durability of queued mutations across a
// store restart.
func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	op := &models.PendingOperation{
		ID:         "op1",
		Table:      string(models.TableBrewNotes),
		OpType:     models.OpUpsert,
		RecordID:   "n1",
		Payload:    json.RawMessage(`{"id":"n1","timestamp":5}`),
		EnqueuedAt: 1000,
	}
	if err := s.PutPendingOp(op); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	s.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	ops, err := reopened.ListPendingOps()
	if err != nil {
		t.Fatalf("Failed to list after reopen: %v", err)
	}
	if len(ops) != 1 || ops[0].RecordID != "n1" {
		t.Errorf("Expected queued op to survive restart, got %+v", ops)
	}
}
