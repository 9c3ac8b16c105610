// Package embedding provides clients for the external embedding service.
// The core treats embedding failure as "no embedding available", never as a
// hard error: every consumer of these interfaces fails open.
package embedding

import "context"

// Provider generates a fixed-length vector for a piece of text.
type Provider interface {
	// Embed returns the embedding vector for text. Calls are bounded by ctx;
	// any failure (timeout, open circuit, service error) is returned as an
	// error the caller converts to a skipped embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the embedding model identifier.
	Model() string
}

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
