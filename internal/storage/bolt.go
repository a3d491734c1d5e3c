// Package storage — bolt.go
//
// BoltDB-backed persistent storage for the agentcore kernel.
//
// Schema (BoltDB bucket layout):
//
//	/decisions
//	    key:   RFC3339Nano timestamp + "_" + decision hash prefix [sortable]
//	    value: JSON-encoded DecisionRecord (audited Coordinate outcome)
//
//	/predictions
//	    key:   RFC3339Nano timestamp  [sortable]
//	    value: JSON-encoded PredictionRecord (crash predictor confidence)
//
//	/models
//	    key:   model ID
//	    value: JSON-encoded ModelRecord (loaded LLM model metadata)
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - Meta-page checksum validation on database open (bbolt built-in).
//
// Retention:
//   - Decision and prediction entries older than RetentionDays are pruned
//     on startup.
//   - Model records are never automatically pruned (operator action
//     required).
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/agentcore/agentcore.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default audit retention period.
	DefaultRetentionDays = 30

	bucketDecisions   = "decisions"
	bucketPredictions = "predictions"
	bucketModels      = "models"
	bucketMeta        = "meta"
)

// DecisionRecord is the persisted form of an audited orchestrator outcome.
type DecisionRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Kind             string    `json:"kind"`
	Action           string    `json:"action"`
	Confidence       float64   `json:"confidence"`
	OverriddenBy     string    `json:"overridden_by,omitempty"`
	DeferToHuman     bool      `json:"defer_to_human"`
	DecisionHash     string    `json:"decision_hash"`
	ParentHash       string    `json:"parent_hash"`
	NodeID           string    `json:"node_id"`
}

// PredictionRecord is the persisted form of a crash predictor status read.
type PredictionRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence"`
	Recommendation string    `json:"recommendation"`
	NodeID         string    `json:"node_id"`
}

// ModelRecord is the persisted form of a loaded LLM model's identity.
type ModelRecord struct {
	ID            string    `json:"id"`
	Hash          string    `json:"hash"`
	ContextLength uint32    `json:"context_length"`
	VocabSize     uint32    `json:"vocab_size"`
	LoadedAt      time.Time `json:"loaded_at"`
}

// DB wraps a BoltDB instance with typed accessors for agentcore data.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at the given path.
// Initialises all required buckets and verifies the schema version.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketDecisions, bucketPredictions, bucketModels, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, kernel requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Decision ledger ──────────────────────────────────────────────────────

func decisionKey(t time.Time, hash string) []byte {
	prefix := hash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), prefix))
}

// AppendDecision writes a new coordinated-decision audit record.
func (d *DB) AppendDecision(rec DecisionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("AppendDecision marshal: %w", err)
	}
	key := decisionKey(rec.Timestamp, rec.DecisionHash)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketDecisions)).Put(key, data)
	})
}

// ReadDecisions returns all decision records in chronological order.
func (d *DB) ReadDecisions() ([]DecisionRecord, error) {
	var out []DecisionRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketDecisions)).ForEach(func(_, v []byte) error {
			var rec DecisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// PruneOldDecisions deletes decision records older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldDecisions() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := decisionKey(cutoff, "")
	return d.pruneBefore(bucketDecisions, cutoffKey)
}

// ─── Prediction history ───────────────────────────────────────────────────

func predictionKey(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

// AppendPrediction writes a new crash predictor status record.
func (d *DB) AppendPrediction(rec PredictionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("AppendPrediction marshal: %w", err)
	}
	key := predictionKey(rec.Timestamp)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPredictions)).Put(key, data)
	})
}

// ReadPredictions returns all prediction records in chronological order.
func (d *DB) ReadPredictions() ([]PredictionRecord, error) {
	var out []PredictionRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPredictions)).ForEach(func(_, v []byte) error {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// PruneOldPredictions deletes prediction records older than retentionDays.
func (d *DB) PruneOldPredictions() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	return d.pruneBefore(bucketPredictions, predictionKey(cutoff))
}

func (d *DB) pruneBefore(bucket string, cutoffKey []byte) (int, error) {
	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("pruneBefore(%q) delete: %w", bucket, err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ─── Model registry ───────────────────────────────────────────────────────

// PutModel writes or updates a model's identity record.
func (d *DB) PutModel(rec ModelRecord) error {
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("PutModel marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketModels)).Put([]byte(rec.ID), data)
	})
}

// GetModel retrieves a model's identity record by ID. Returns (nil, nil)
// if no record exists for this ID.
func (d *DB) GetModel(id string) (*ModelRecord, error) {
	var rec ModelRecord
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketModels)).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("GetModel(%q): %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}
