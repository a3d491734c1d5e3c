package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentcore.db")
	db, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_AppendAndReadDecisions(t *testing.T) {
	db := openTestDB(t)

	rec := DecisionRecord{Kind: "unanimous", Action: "compact_memory", Confidence: 0.875, DecisionHash: "abc123", NodeID: "n1"}
	if err := db.AppendDecision(rec); err != nil {
		t.Fatalf("AppendDecision: %v", err)
	}

	got, err := db.ReadDecisions()
	if err != nil {
		t.Fatalf("ReadDecisions: %v", err)
	}
	if len(got) != 1 || got[0].Action != "compact_memory" {
		t.Fatalf("ReadDecisions = %+v, want one compact_memory entry", got)
	}
}

func TestDB_PruneOldDecisions(t *testing.T) {
	db := openTestDB(t)

	old := DecisionRecord{Kind: "unanimous", Timestamp: time.Now().AddDate(0, 0, -60), DecisionHash: "old"}
	recent := DecisionRecord{Kind: "majority", Timestamp: time.Now(), DecisionHash: "new"}
	if err := db.AppendDecision(old); err != nil {
		t.Fatalf("AppendDecision old: %v", err)
	}
	if err := db.AppendDecision(recent); err != nil {
		t.Fatalf("AppendDecision recent: %v", err)
	}

	deleted, err := db.PruneOldDecisions()
	if err != nil {
		t.Fatalf("PruneOldDecisions: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("PruneOldDecisions deleted = %d, want 1", deleted)
	}

	remaining, err := db.ReadDecisions()
	if err != nil {
		t.Fatalf("ReadDecisions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].DecisionHash != "new" {
		t.Fatalf("ReadDecisions after prune = %+v, want one entry with hash new", remaining)
	}
}

func TestDB_PutAndGetModel(t *testing.T) {
	db := openTestDB(t)

	rec := ModelRecord{ID: "m1", Hash: "deadbeef", ContextLength: 2048, VocabSize: 32000}
	if err := db.PutModel(rec); err != nil {
		t.Fatalf("PutModel: %v", err)
	}

	got, err := db.GetModel("m1")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if got == nil || got.ContextLength != 2048 {
		t.Fatalf("GetModel = %+v, want context_length 2048", got)
	}
}

func TestDB_GetModel_NotFound(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetModel("missing")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if got != nil {
		t.Fatalf("GetModel(missing) = %+v, want nil", got)
	}
}

func TestDB_AppendAndReadPredictions(t *testing.T) {
	db := openTestDB(t)
	if err := db.AppendPrediction(PredictionRecord{Confidence: 0.6, Recommendation: "watch"}); err != nil {
		t.Fatalf("AppendPrediction: %v", err)
	}
	got, err := db.ReadPredictions()
	if err != nil {
		t.Fatalf("ReadPredictions: %v", err)
	}
	if len(got) != 1 || got[0].Recommendation != "watch" {
		t.Fatalf("ReadPredictions = %+v, want one watch entry", got)
	}
}
