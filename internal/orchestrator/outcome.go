package orchestrator

// BatchOutcome is the partial-failure accounting for one batch request.
// Every non-blank input index lands in exactly one of the two maps, so
// len(Successful)+len(Failed) always equals the number of items that
// needed an answer.
type BatchOutcome struct {
	// Successful maps input index to its embedding vector.
	Successful map[int][]float32
	// Failed maps input index to the error that claimed it.
	Failed map[int]error
	// Skipped lists indexes of blank inputs, which get neither a vector
	// nor an error.
	Skipped []int
	// CacheHits counts how many successful items were served from cache.
	CacheHits int
}

func newBatchOutcome() *BatchOutcome {
	return &BatchOutcome{
		Successful: make(map[int][]float32),
		Failed:     make(map[int]error),
	}
}

// Complete reports whether every requested item succeeded.
func (o *BatchOutcome) Complete() bool {
	return len(o.Failed) == 0
}

// AllFailed reports whether nothing succeeded and something failed.
func (o *BatchOutcome) AllFailed() bool {
	return len(o.Successful) == 0 && len(o.Failed) > 0
}
