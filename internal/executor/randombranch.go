package executor

import "hash/maphash"

// seed is fixed once per process so that repeated evaluation of the same
// (journeyId, nodeId) pair within that process -- a multiBranch loop
// revisiting the node -- always samples the same uniform draw and therefore
// selects the same branch. A new seed is drawn on every process start, so a
// journey re-evaluated after a restart can select a different branch.
var seed = maphash.MakeSeed()

// sampleUniform deterministically maps a (journeyId, nodeId) pair to a value
// in [0, 100).
func sampleUniform(journeyID, nodeID string) float64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteString(journeyID)
	h.WriteByte(0)
	h.WriteString(nodeID)
	return float64(h.Sum64()%1_000_000) / 10_000.0
}

// selectRandomBranch walks branches in declared order, returning the next id
// of the option whose cumulative percentage range contains u. Returns the
// last branch if rounding leaves u past the final boundary.
func selectRandomBranch(branches []rangeOption, u float64) string {
	var cumulative float64
	for _, b := range branches {
		cumulative += b.percentage
		if u < cumulative {
			return b.next
		}
	}
	if len(branches) == 0 {
		return ""
	}
	return branches[len(branches)-1].next
}

type rangeOption struct {
	percentage float64
	next       string
}
