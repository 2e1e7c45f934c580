package journeystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/journey-engine/internal/journey"
)

// PgStore is the Postgres-backed Store, for deployments where the journey
// engine runs server-side against a shared database rather than on-device.
// Journeys are stored as JSON blobs alongside the indexed columns the
// admission/lookup queries filter on; completions are plain rows.
type PgStore struct {
	db    *sql.DB
	cache *Cache
}

// NewPgStore wraps an already-opened *sql.DB. Schema migration is the
// caller's responsibility.
func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: db, cache: NewCache()}
}

// SaveJourney upserts a journey's JSON snapshot.
func (s *PgStore) SaveJourney(ctx context.Context, j journey.Journey) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("journeystore: marshal journey %s: %w", j.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journeys (id, distinct_id, campaign_id, status, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = $4, snapshot = $5, updated_at = $6`,
		j.ID, j.DistinctID, j.CampaignID, j.Status, data, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("journeystore: upsert journey %s: %w", j.ID, err)
	}
	s.cache.Update(j)
	return nil
}

// LoadActiveJourneys reads every row whose status is active or paused.
func (s *PgStore) LoadActiveJourneys(ctx context.Context) ([]journey.Journey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM journeys WHERE status IN ('active', 'paused')`)
	if err != nil {
		return nil, fmt.Errorf("journeystore: query active journeys: %w", err)
	}
	defer rows.Close()

	var out []journey.Journey
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var j journey.Journey
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		s.cache.Update(j)
		out = append(out, j)
	}
	return out, rows.Err()
}

// DeleteJourney removes a journey's row.
func (s *PgStore) DeleteJourney(ctx context.Context, id journey.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM journeys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("journeystore: delete journey %s: %w", id, err)
	}
	s.cache.Remove(id)
	return nil
}

// RecordCompletion appends to the completions ledger table.
func (s *PgStore) RecordCompletion(ctx context.Context, rec journey.CompletionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journey_completions (journey_id, distinct_id, campaign_id, exit_reason, completed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.JourneyID, rec.DistinctID, rec.CampaignID, rec.ExitReason, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("journeystore: record completion for %s: %w", rec.JourneyID, err)
	}
	return nil
}

// HasCompletedCampaign reports whether a completion row exists for
// (distinctID, campaignID).
func (s *PgStore) HasCompletedCampaign(ctx context.Context, distinctID, campaignID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journey_completions WHERE distinct_id = $1 AND campaign_id = $2`,
		distinctID, campaignID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("journeystore: count completions for %s/%s: %w", distinctID, campaignID, err)
	}
	return count > 0, nil
}

// LastCompletionTime returns the most recent completion time, if any.
func (s *PgStore) LastCompletionTime(ctx context.Context, distinctID, campaignID string) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(completed_at) FROM journey_completions WHERE distinct_id = $1 AND campaign_id = $2`,
		distinctID, campaignID).Scan(&t)
	if err == sql.ErrNoRows || t.IsZero() {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("journeystore: last completion for %s/%s: %w", distinctID, campaignID, err)
	}
	return t, true, nil
}

// GetActiveJourneyIDs lists live journey ids for (distinctID, campaignID)
// directly from the journeys table (not the cache), so cross-process
// admission decisions see every writer's state.
func (s *PgStore) GetActiveJourneyIDs(ctx context.Context, distinctID, campaignID string) ([]journey.ID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM journeys WHERE distinct_id = $1 AND campaign_id = $2 AND status IN ('active', 'paused')`,
		distinctID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("journeystore: query active ids for %s/%s: %w", distinctID, campaignID, err)
	}
	defer rows.Close()

	var ids []journey.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, journey.ID(id))
	}
	return ids, rows.Err()
}

// UpdateCache inserts j into the memory-resident lookup cache.
func (s *PgStore) UpdateCache(j journey.Journey) { s.cache.Update(j) }

// ClearCache empties the memory-resident lookup cache.
func (s *PgStore) ClearCache() { s.cache.Clear() }
