package journeystore

import (
	"sync"

	"github.com/ignite/journey-engine/internal/journey"
)

// Cache is the memory-resident lookup layer shared by every Store backend.
// It is a plain read cache; authoritative state always lives in the backing
// store, but the cache lets hot lookups (e.g. GetActiveJourneyIDs on the
// file and DynamoDB backends) avoid a round trip.
type Cache struct {
	mu       sync.Mutex
	journeys map[journey.ID]journey.Journey
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{journeys: make(map[journey.ID]journey.Journey)}
}

// Update inserts or replaces a journey's cached snapshot.
func (c *Cache) Update(j journey.Journey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.journeys[j.ID] = j
}

// Remove drops a journey's cached snapshot.
func (c *Cache) Remove(id journey.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.journeys, id)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.journeys = make(map[journey.ID]journey.Journey)
}

// Get returns a cached journey by id.
func (c *Cache) Get(id journey.ID) (journey.Journey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.journeys[id]
	return j, ok
}

// All returns a snapshot slice of every cached journey.
func (c *Cache) All() []journey.Journey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]journey.Journey, 0, len(c.journeys))
	for _, j := range c.journeys {
		out = append(out, j)
	}
	return out
}

// ActiveIDs returns the ids of cached live journeys for (distinctID,
// campaignID).
func (c *Cache) ActiveIDs(distinctID, campaignID string) []journey.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []journey.ID
	for _, j := range c.journeys {
		if j.DistinctID == distinctID && j.CampaignID == campaignID && j.Status.IsLive() {
			out = append(out, j.ID)
		}
	}
	return out
}
