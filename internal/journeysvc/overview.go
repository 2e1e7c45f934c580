package journeysvc

// Snapshot is a point-in-time summary of the orchestrator's in-memory
// registry, for the debug HTTP harness to expose.
type Snapshot struct {
	LiveJourneys int            `json:"liveJourneys"`
	ByCampaign   map[string]int `json:"byCampaign"`
	ByStatus     map[string]int `json:"byStatus"`
}

// Overview summarizes the currently registered live journeys.
func (s *Service) Overview() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{ByCampaign: map[string]int{}, ByStatus: map[string]int{}}
	for _, j := range s.live {
		snap.LiveJourneys++
		snap.ByCampaign[j.CampaignID]++
		snap.ByStatus[string(j.Status)]++
	}
	return snap
}
