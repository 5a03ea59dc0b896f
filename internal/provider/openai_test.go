package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI("", "", "")
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNewOpenAIDefaults(t *testing.T) {
	o, err := NewOpenAI("sk-test", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, o.Model())
	assert.Equal(t, OpenAIDimension, o.Dimension())
	assert.True(t, o.Configured())
}

func TestOpenAICallsCarryFixedTimeout(t *testing.T) {
	o, err := NewOpenAI("sk-test", "", "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, o.httpClient.Timeout,
		"provider calls must be bounded even without a context deadline")
}

func TestOpenAITimeoutAbortsStalledCall(t *testing.T) {
	// A server that never answers: the request only ends when the
	// client gives up.
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client closing the
		// connection and cancels the request context; otherwise Close
		// deadlocks waiting on this handler.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer stalled.Close()

	o, err := NewOpenAI("sk-test", stalled.URL, "")
	require.NoError(t, err)
	o.httpClient.Timeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := o.GenerateEmbedding(context.Background(), "hello")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProviderFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("call against a stalled endpoint never returned")
	}
}
