package syncbox

// Stats is a read-side snapshot of the outbox and the circuit breaker for
// monitoring consumers. Producing it has no side effects.
type Stats struct {
	// Counts holds the number of items per status.
	Counts map[Status]int `json:"counts"`
	// Total is the number of items across all statuses.
	Total int `json:"total"`
	// IsProcessing is true iff any item currently holds a lease.
	IsProcessing bool `json:"isProcessing"`
	// Breaker is the circuit breaker's current snapshot.
	Breaker BreakerSnapshot `json:"breaker"`
}

// CollectStats derives Stats from outbox contents and a breaker snapshot.
// It is a pure function: the inputs are not mutated.
func CollectStats(items []Item, breaker BreakerSnapshot) Stats {
	counts := make(map[Status]int, len(items))
	for _, item := range items {
		counts[item.Status]++
	}

	return statsFromCounts(counts, breaker)
}

func statsFromCounts(counts map[Status]int, breaker BreakerSnapshot) Stats {
	total := 0
	for _, n := range counts {
		total += n
	}

	return Stats{
		Counts:       counts,
		Total:        total,
		IsProcessing: counts[StatusProcessing] > 0,
		Breaker:      breaker,
	}
}
