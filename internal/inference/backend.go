// Package inference coordinates calls to text-generating backends: it
// serializes access to locally hosted models, retries transient failures,
// parses structured replies and records every interaction.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend generates text for a prompt.
type Backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, system, prompt string) (string, error)

func (f BackendFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

var (
	// ErrTransient marks a backend failure worth retrying (rate limits,
	// overloaded servers). Backends wrap it.
	ErrTransient = errors.New("inference: transient backend failure")

	// ErrUnknownBackend is returned for calls naming an unregistered backend.
	ErrUnknownBackend = errors.New("inference: unknown backend")
)

// BackendError is returned by CallText once a call has failed for good.
type BackendError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("inference: backend %s failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Class groups backends that share a serialization slot.
type Class string

const (
	ClassLocal  Class = "local"
	ClassRemote Class = "remote"
)

var localProviders = map[string]bool{
	"ollama":     true,
	"llamacpp":   true,
	"lmstudio":   true,
	"local":      true,
	"vllm-local": true,
}

// ClassOf derives the class from a backend id of the form
// "<provider>:<model>". Ids without a known local provider are remote.
func ClassOf(backendID string) Class {
	provider, _, ok := strings.Cut(backendID, ":")
	if !ok {
		return ClassRemote
	}
	if localProviders[strings.ToLower(strings.TrimSpace(provider))] {
		return ClassLocal
	}
	return ClassRemote
}

// ModelOf returns the model part of a backend id, or the id itself.
func ModelOf(backendID string) string {
	if _, model, ok := strings.Cut(backendID, ":"); ok {
		return model
	}
	return backendID
}
