// Package evidence implements the append-only, sequenced, durable event log
// with live-subscriber fan-out.
package evidence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Store persists evidence events in SQLite and artifact blobs as files under
// a per-request directory.
type Store struct {
	db          *sql.DB
	artifactDir string
}

// NewStore opens the evidence database and ensures the schema.
func NewStore(dsn, artifactDir string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	store := &Store{db: db, artifactDir: artifactDir}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			request_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			step_index INTEGER,
			attempt INTEGER,
			payload TEXT,
			artifact_ref TEXT,
			PRIMARY KEY (request_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id, seq)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			artifact_id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			mime TEXT NOT NULL,
			size INTEGER NOT NULL,
			sha256 TEXT,
			path TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_request ON artifacts(request_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AppendEvent persists one sequenced event.
func (s *Store) AppendEvent(ctx context.Context, ev domain.EvidenceEvent) error {
	var stepIndex, attempt sql.NullInt64
	if ev.StepIndex != nil {
		stepIndex = sql.NullInt64{Int64: int64(*ev.StepIndex), Valid: true}
	}
	if ev.Attempt != nil {
		attempt = sql.NullInt64{Int64: int64(*ev.Attempt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (request_id, seq, ts, type, step_index, attempt, payload, artifact_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.Seq, ev.Ts.UnixMilli(), string(ev.Type),
		stepIndex, attempt, nullableJSON(ev.Payload), nullString(ev.ArtifactRef),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsAfter returns the durable events for a request with seq > afterSeq,
// in sequence order.
func (s *Store) EventsAfter(ctx context.Context, requestID string, afterSeq uint64) ([]domain.EvidenceEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, seq, ts, type, step_index, attempt, payload, artifact_ref
		 FROM events WHERE request_id = ? AND seq > ? ORDER BY seq ASC`,
		requestID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.EvidenceEvent
	for rows.Next() {
		var ev domain.EvidenceEvent
		var ts int64
		var typ string
		var stepIndex, attempt sql.NullInt64
		var payload, artifactRef sql.NullString
		if err := rows.Scan(&ev.RequestID, &ev.Seq, &ts, &typ, &stepIndex, &attempt, &payload, &artifactRef); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Ts = time.UnixMilli(ts)
		ev.Type = domain.EventType(typ)
		if stepIndex.Valid {
			v := int(stepIndex.Int64)
			ev.StepIndex = &v
		}
		if attempt.Valid {
			v := int(attempt.Int64)
			ev.Attempt = &v
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		if artifactRef.Valid {
			ev.ArtifactRef = artifactRef.String
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastSeq returns the highest persisted sequence number for a request, zero
// when none exist.
func (s *Store) LastSeq(ctx context.Context, requestID string) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE request_id = ?`, requestID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to query last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// SaveArtifact writes a blob under the per-request artifact directory and
// records its metadata.
func (s *Store) SaveArtifact(ctx context.Context, requestID, kind, mime string, data []byte) (domain.ArtifactRef, error) {
	id := "art_" + uuid.New().String()[:8]
	dir := filepath.Join(s.artifactDir, requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(dir, id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	sum := sha256.Sum256(data)
	ref := domain.ArtifactRef{
		ID:     id,
		Kind:   kind,
		Mime:   mime,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
		Path:   path,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (artifact_id, request_id, kind, mime, size, sha256, path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, requestID, ref.Kind, ref.Mime, ref.Size, ref.SHA256, ref.Path,
	)
	if err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("failed to record artifact: %w", err)
	}
	return ref, nil
}

// Artifact returns the metadata for one stored artifact.
func (s *Store) Artifact(ctx context.Context, artifactID string) (domain.ArtifactRef, error) {
	var ref domain.ArtifactRef
	var sha sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT artifact_id, kind, mime, size, sha256, path FROM artifacts WHERE artifact_id = ?`,
		artifactID,
	).Scan(&ref.ID, &ref.Kind, &ref.Mime, &ref.Size, &sha, &ref.Path)
	if err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("failed to query artifact: %w", err)
	}
	if sha.Valid {
		ref.SHA256 = sha.String
	}
	return ref, nil
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
