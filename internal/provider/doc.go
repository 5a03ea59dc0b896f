// Package provider holds the embedding provider clients.
//
// Each provider implements the same Client capability: generate one
// embedding, generate a batch (order-preserving), report its dimension
// and configuration state. Providers are deliberately dumb transports;
// caching, retry, circuit breaking and batch splitting all live in the
// orchestrator that wraps them.
//
// Three implementations exist: OpenAI (or any OpenAI-compatible
// endpoint via a custom base URL), Jina AI, and a deterministic Local
// provider for offline use and tests.
//
//	client, err := provider.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := client.GenerateEmbedding(ctx, "hello world")
package provider
