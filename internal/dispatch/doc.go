// Package dispatch decides, per request, whether embedding work runs
// synchronously through the orchestrator or is handed to the deferred
// queue. Deferred execution requires the global switch, enough
// identifiers to resume the work later, and a collection that has not
// opted out.
//
// The sync path is guarded by an in-flight claim set keyed by content
// hash: a second concurrent request for identical text is skipped and
// logged instead of paying the provider twice. Queue workers share the
// same claim set through Dispatcher.InFlight.
package dispatch
