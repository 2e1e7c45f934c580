package journeystore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ignite/journey-engine/internal/journey"
)

// FileStore is the on-device Store backend: one file per live journey,
// written with a temp-file-then-rename swap so a crash mid-write never
// leaves a torn journey file, and an append-only ledger for completions.
// A journey file that fails to parse is treated as absent, never as fatal.
type FileStore struct {
	dir    string
	cache  *Cache
	ledger *os.File
	mu     sync.Mutex
}

// NewFileStore opens (creating if needed) a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "journeys"), 0o755); err != nil {
		return nil, fmt.Errorf("journeystore: create journeys dir: %w", err)
	}
	ledger, err := os.OpenFile(filepath.Join(dir, "ledger.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journeystore: open ledger: %w", err)
	}
	return &FileStore{dir: dir, cache: NewCache(), ledger: ledger}, nil
}

func (s *FileStore) journeyPath(id journey.ID) string {
	return filepath.Join(s.dir, "journeys", string(id)+".json")
}

// SaveJourney writes j's snapshot atomically, overwriting any prior copy.
func (s *FileStore) SaveJourney(ctx context.Context, j journey.Journey) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("journeystore: marshal journey %s: %w", j.ID, err)
	}

	path := s.journeyPath(j.ID)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-journey-*")
	if err != nil {
		return fmt.Errorf("journeystore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("journeystore: write journey %s: %w", j.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journeystore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journeystore: rename journey %s into place: %w", j.ID, err)
	}
	s.cache.Update(j)
	return nil
}

// LoadActiveJourneys reads every persisted journey with a live status.
// Files that fail to parse are logged and skipped rather than failing the
// whole load.
func (s *FileStore) LoadActiveJourneys(ctx context.Context) ([]journey.Journey, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "journeys"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journeystore: read journeys dir: %w", err)
	}

	var out []journey.Journey
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, "journeys", entry.Name()))
		if err != nil {
			log.Printf("[journeystore] skip unreadable journey file %s: %v", entry.Name(), err)
			continue
		}
		var j journey.Journey
		if err := json.Unmarshal(data, &j); err != nil {
			log.Printf("[journeystore] skip corrupt journey file %s: %v", entry.Name(), err)
			continue
		}
		if !j.Status.IsLive() {
			continue
		}
		s.cache.Update(j)
		out = append(out, j)
	}
	return out, nil
}

// DeleteJourney removes a journey's persisted copy. A missing file is not an
// error: deletion is idempotent.
func (s *FileStore) DeleteJourney(ctx context.Context, id journey.ID) error {
	if err := os.Remove(s.journeyPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journeystore: delete journey %s: %w", id, err)
	}
	s.cache.Remove(id)
	return nil
}

type ledgerLine struct {
	journey.CompletionRecord
}

// RecordCompletion appends rec to the ledger file.
func (s *FileStore) RecordCompletion(ctx context.Context, rec journey.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(ledgerLine{rec})
	if err != nil {
		return fmt.Errorf("journeystore: marshal completion record: %w", err)
	}
	if _, err := s.ledger.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journeystore: append completion record: %w", err)
	}
	return nil
}

func (s *FileStore) readLedger() ([]journey.CompletionRecord, error) {
	f, err := os.Open(filepath.Join(s.dir, "ledger.jsonl"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journeystore: open ledger for read: %w", err)
	}
	defer f.Close()

	var out []journey.CompletionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		var line ledgerLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			log.Printf("[journeystore] skip corrupt ledger line: %v", err)
			continue
		}
		out = append(out, line.CompletionRecord)
	}
	return out, scanner.Err()
}

// HasCompletedCampaign reports whether any completion record exists for
// (distinctID, campaignID).
func (s *FileStore) HasCompletedCampaign(ctx context.Context, distinctID, campaignID string) (bool, error) {
	records, err := s.readLedger()
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.DistinctID == distinctID && r.CampaignID == campaignID {
			return true, nil
		}
	}
	return false, nil
}

// LastCompletionTime returns the most recent completion time for
// (distinctID, campaignID), if any.
func (s *FileStore) LastCompletionTime(ctx context.Context, distinctID, campaignID string) (time.Time, bool, error) {
	records, err := s.readLedger()
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	found := false
	for _, r := range records {
		if r.DistinctID != distinctID || r.CampaignID != campaignID {
			continue
		}
		if !found || r.CompletedAt.After(latest) {
			latest = r.CompletedAt
			found = true
		}
	}
	return latest, found, nil
}

// GetActiveJourneyIDs returns the cached live journey ids for (distinctID,
// campaignID). It answers from cache only: callers that need a cold-start
// view must first call LoadActiveJourneys.
func (s *FileStore) GetActiveJourneyIDs(ctx context.Context, distinctID, campaignID string) ([]journey.ID, error) {
	return s.cache.ActiveIDs(distinctID, campaignID), nil
}

// UpdateCache inserts j into the memory-resident lookup cache without
// touching disk.
func (s *FileStore) UpdateCache(j journey.Journey) {
	s.cache.Update(j)
}

// ClearCache empties the memory-resident lookup cache.
func (s *FileStore) ClearCache() {
	s.cache.Clear()
}

// Close releases the ledger file handle.
func (s *FileStore) Close() error {
	return s.ledger.Close()
}
