// Package queue is the durable deferred-work queue and its worker
// pool. Producers enqueue through the dispatch.Queue interface; workers
// claim items, re-enter the orchestrator, and write finished embeddings
// through a ResultSink.
//
// Delivery is at least once: failed items return to pending until their
// attempt budget runs out, and claims abandoned by a dead worker are
// reclaimed after a timeout. Consumers stay idempotent because the
// embedding cache upserts by content address, so redelivered work is
// answered from cache instead of paying the provider again.
package queue
