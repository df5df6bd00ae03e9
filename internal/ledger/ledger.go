// Package ledger provides a cryptographically verifiable, append-only audit ledger.
// Every entry is hash-chained to the previous entry, making any tampering detectable.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "GENESIS:0000000000000000000000000000000000000000000000000000000000000000"

// Store manages the append-only audit ledger
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Entry represents an immutable audit log entry
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`      // "invitation.issued", "access.revoked", ...
	Actor      string    `json:"actor"`       // identity or "system"
	EntityType string    `json:"entity_type"` // "identity", "invitation"
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`   // JSON blob
	PrevHash   string    `json:"prev_hash"` // Hash of previous entry (chain)
	Hash       string    `json:"hash"`      // Hash of this entry
}

// ActorSystem is recorded for unattended changes such as the expiry sweep.
const ActorSystem = "system"

// Append adds a new entry to the ledger with cryptographic hash chaining.
// This is the ONLY way to add entries.
func (s *Store) Append(ctx context.Context, action, actor, entityType, entityID string, details interface{}) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var detailsJSON string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
		detailsJSON = string(data)
	}

	prevHash, err := s.lastHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get last hash: %w", err)
	}

	entry := &Entry{
		ID:         uuid.New().String(),
		Timestamp:  s.now().UTC(),
		Action:     action,
		Actor:      actor,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    detailsJSON,
		PrevHash:   prevHash,
	}
	entry.Hash = computeHash(entry)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger (id, timestamp, action, actor, entity_type, entity_id, details, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp.UnixNano(), entry.Action, entry.Actor, entry.EntityType, entry.EntityID,
		entry.Details, entry.PrevHash, entry.Hash)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return entry, nil
}

func (s *Store) lastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM ledger ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return GenesisHash, nil
	}
	return hash, err
}

// computeHash creates the SHA-256 hash of an entry's canonical representation
func computeHash(entry *Entry) string {
	canonical := struct {
		ID         string `json:"id"`
		Timestamp  string `json:"timestamp"`
		Action     string `json:"action"`
		Actor      string `json:"actor"`
		EntityType string `json:"entity_type"`
		EntityID   string `json:"entity_id"`
		Details    string `json:"details"`
		PrevHash   string `json:"prev_hash"`
	}{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:     entry.Action,
		Actor:      entry.Actor,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    entry.Details,
		PrevHash:   entry.PrevHash,
	}

	data, _ := json.Marshal(canonical)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

const selectEntry = `SELECT id, timestamp, action, actor, entity_type, entity_id, details, prev_hash, hash FROM ledger`

func scanEntry(scan func(dest ...interface{}) error) (*Entry, error) {
	var entry Entry
	var ts int64
	var entityType, entityID, details sql.NullString

	if err := scan(&entry.ID, &ts, &entry.Action, &entry.Actor,
		&entityType, &entityID, &details, &entry.PrevHash, &entry.Hash); err != nil {
		return nil, err
	}
	entry.Timestamp = time.Unix(0, ts).UTC()
	entry.EntityType = entityType.String
	entry.EntityID = entityID.String
	entry.Details = details.String
	return &entry, nil
}

// VerifyChain verifies the integrity of the entire ledger chain.
// Returns nil if valid, or an error describing the first broken link.
func (s *Store) VerifyChain(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, selectEntry+` ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	expectedPrevHash := GenesisHash
	entryNum := 0

	for rows.Next() {
		entryNum++
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return fmt.Errorf("scan entry %d: %w", entryNum, err)
		}

		if entry.PrevHash != expectedPrevHash {
			return &ChainError{
				EntryNum:     entryNum,
				EntryID:      entry.ID,
				ExpectedHash: expectedPrevHash,
				ActualHash:   entry.PrevHash,
				Type:         "chain_broken",
			}
		}

		expectedHash := computeHash(entry)
		if entry.Hash != expectedHash {
			return &ChainError{
				EntryNum:     entryNum,
				EntryID:      entry.ID,
				ExpectedHash: expectedHash,
				ActualHash:   entry.Hash,
				Type:         "hash_mismatch",
			}
		}

		expectedPrevHash = entry.Hash
	}

	return rows.Err()
}

// ChainError represents a broken chain error
type ChainError struct {
	EntryNum     int
	EntryID      string
	ExpectedHash string
	ActualHash   string
	Type         string // "chain_broken" or "hash_mismatch"
}

func (e *ChainError) Error() string {
	if e.Type == "chain_broken" {
		return fmt.Sprintf("chain broken at entry %d (ID: %s): expected prev_hash %s, got %s",
			e.EntryNum, e.EntryID, short(e.ExpectedHash), short(e.ActualHash))
	}
	return fmt.Sprintf("hash mismatch at entry %d (ID: %s): expected %s, got %s",
		e.EntryNum, e.EntryID, short(e.ExpectedHash), short(e.ActualHash))
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return h
}

// QueryOptions filters ledger listings
type QueryOptions struct {
	Action   string // Filter by action type
	Actor    string // Filter by actor
	EntityID string // Filter by entity ID
	Limit    int    // Maximum entries to return
}

// Query returns entries matching the given criteria, newest first
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]*Entry, error) {
	query := selectEntry + ` WHERE 1=1`
	var args []interface{}

	if opts.Action != "" {
		query += " AND action = ?"
		args = append(args, opts.Action)
	}
	if opts.Actor != "" {
		query += " AND actor = ?"
		args = append(args, opts.Actor)
	}
	if opts.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, opts.EntityID)
	}

	query += " ORDER BY seq DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetRecent returns the most recent entries
func (s *Store) GetRecent(ctx context.Context, limit int) ([]*Entry, error) {
	return s.Query(ctx, QueryOptions{Limit: limit})
}

// Count returns the total number of entries in the ledger
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger").Scan(&count)
	return count, err
}

// Summary statistics
type Summary struct {
	TotalEntries int            `json:"total_entries"`
	ByAction     map[string]int `json:"by_action"`
	ChainValid   bool           `json:"chain_valid"`
	ChainError   string         `json:"chain_error,omitempty"`
}

// GetSummary returns statistics about the ledger
func (s *Store) GetSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByAction: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT action, COUNT(*) FROM ledger GROUP BY action")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		summary.ByAction[action] = count
		summary.TotalEntries += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.VerifyChain(ctx); err != nil {
		summary.ChainError = err.Error()
	} else {
		summary.ChainValid = true
	}

	return summary, nil
}

// Recorder adapts the store to the access gate's auditor
type Recorder struct {
	store *Store
}

// NewRecorder creates a recorder for the given store
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// RecordAccess records an access change against the subject identity
func (r *Recorder) RecordAccess(ctx context.Context, action string, actor, subject core.Identity, details map[string]interface{}) error {
	entityType := "identity"
	if subject == "" {
		entityType = "invitation"
	}
	_, err := r.store.Append(ctx, action, string(actor), entityType, string(subject), details)
	return err
}

// RecordPurge records an expiry sweep that removed tokens
func (r *Recorder) RecordPurge(ctx context.Context, removed int) error {
	_, err := r.store.Append(ctx, "invitation.purged", ActorSystem, "invitation", "", map[string]interface{}{
		"removed": removed,
	})
	return err
}
