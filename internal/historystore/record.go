package historystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/sessionmgr"
)

// Record is the historical counterpart of sessionmgr.SessionState,
// grounded on original_source's Discovery{id, created_at, updated_at,
// base: DiscoveryBase{daemon_id, network_id, name, tags, discovery_type,
// run_type: RunType::Historical{results: session}}}. This settles
// spec.md §8's open question about the historical record schema: it
// does not duplicate the live session schema under a different shape,
// it wraps the session's own terminal snapshot (Session below) inside
// a small header of record-level fields (id, name, tags, timestamps).
type Record struct {
	ID            uuid.UUID
	DaemonID      uuid.UUID
	NetworkID     uuid.UUID
	Name          string
	Tags          []string
	DiscoveryType sessionmgr.DiscoveryType
	Session       sessionmgr.SessionState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordSession builds and inserts a Record from a terminal
// SessionState, implementing sessionmgr.HistoryRecorder. Name is always
// the discovery type's display name ("Network Discovery" etc.):
// SessionState has no name field, so a stalled session's record gets
// the same name as any other and differs only in its Failed phase and
// error string.
func (s *Store) RecordSession(state sessionmgr.SessionState) error {
	rec := Record{
		ID:            uuid.New(),
		DaemonID:      state.DaemonID,
		NetworkID:     state.NetworkID,
		Name:          state.DiscoveryType.Kind.String(),
		Tags:          nil,
		DiscoveryType: state.DiscoveryType,
		Session:       state,
		UpdatedAt:     time.Now(),
	}
	if state.StartedAt != nil {
		rec.CreatedAt = *state.StartedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}

	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	discoveryTypeJSON, err := json.Marshal(rec.DiscoveryType)
	if err != nil {
		return fmt.Errorf("marshal discovery type: %w", err)
	}
	sessionJSON, err := json.Marshal(rec.Session)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_history
			(id, daemon_id, network_id, name, tags, discovery_type, phase, session, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.DaemonID, rec.NetworkID, rec.Name, tagsJSON, discoveryTypeJSON,
		string(rec.Session.Phase), sessionJSON, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert discovery history record: %w", err)
	}
	return nil
}

// ListByNetwork returns historical records for the given networks,
// newest first, mirroring internal/repository/sqlite's "query then
// unmarshal the JSON blob" read pattern. A nil/empty networkIDs
// returns every record, unlike sessionmgr.Manager.GetAllSessions, which
// returns no live sessions for an empty id list.
func (s *Store) ListByNetwork(ctx context.Context, networkIDs []uuid.UUID) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(networkIDs) == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, daemon_id, network_id, name, tags, discovery_type, session, created_at, updated_at
			FROM discovery_history ORDER BY created_at DESC
		`)
	} else {
		placeholders := make([]byte, 0, len(networkIDs)*2)
		args := make([]any, 0, len(networkIDs))
		for i, id := range networkIDs {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id)
		}
		query := fmt.Sprintf(`
			SELECT id, daemon_id, network_id, name, tags, discovery_type, session, created_at, updated_at
			FROM discovery_history WHERE network_id IN (%s) ORDER BY created_at DESC
		`, string(placeholders))
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("query discovery history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                             Record
			tagsJSON, discoveryTypeJSON, sessionJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DaemonID, &rec.NetworkID, &rec.Name,
			&tagsJSON, &discoveryTypeJSON, &sessionJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan discovery history row: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &rec.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		if err := json.Unmarshal(discoveryTypeJSON, &rec.DiscoveryType); err != nil {
			return nil, fmt.Errorf("unmarshal discovery type: %w", err)
		}
		if err := json.Unmarshal(sessionJSON, &rec.Session); err != nil {
			return nil, fmt.Errorf("unmarshal session snapshot: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discovery history: %w", err)
	}
	return records, nil
}

// Get retrieves a single record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, bool, error) {
	var (
		rec                                       Record
		tagsJSON, discoveryTypeJSON, sessionJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, daemon_id, network_id, name, tags, discovery_type, session, created_at, updated_at
		FROM discovery_history WHERE id = ?
	`, id).Scan(&rec.ID, &rec.DaemonID, &rec.NetworkID, &rec.Name,
		&tagsJSON, &discoveryTypeJSON, &sessionJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query discovery history record: %w", err)
	}
	if err := json.Unmarshal(tagsJSON, &rec.Tags); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(discoveryTypeJSON, &rec.DiscoveryType); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal discovery type: %w", err)
	}
	if err := json.Unmarshal(sessionJSON, &rec.Session); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return rec, true, nil
}
