// Package degrade defines the typed failure value shared by the
// orchestrator, the circuit breaker and the recovery service.
//
// Every failure carries a Kind, and each Kind maps through a closed
// classification table to a severity, a retryability flag and a fallback
// strategy. Code never branches on error string contents or exception
// identity; it branches on Kind:
//
//	vec, err := orch.GenerateEmbedding(ctx, text)
//	if err != nil {
//	    f := degrade.FromError(err)
//	    if f.Fallback == degrade.FallbackKeywordSearch {
//	        return keywordOnlySearch(ctx, text)
//	    }
//	}
//
// The table is closed on purpose: an unclassified kind panics at
// construction so a new failure class cannot slip in with silently
// defaulted handling.
package degrade
