package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/freeeve/parley/pkg/diplomacy"
)

const (
	DefaultCallTimeout = 60 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1500 * time.Millisecond
)

var tracer = otel.Tracer("github.com/freeeve/parley/internal/inference")

// Call describes one inference request.
type Call struct {
	Backend string
	System  string
	Prompt  string

	// Attribution for the interaction log and traces.
	GameID  string
	Power   diplomacy.Power
	Phase   string
	Purpose string
}

// Options configures a Coordinator. Zero values take the defaults.
type Options struct {
	CallTimeout time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       Sleeper
	Recorder    Recorder
}

// Coordinator is the single entry point for inference calls. It is safe for
// concurrent use.
type Coordinator struct {
	mu       sync.RWMutex
	backends map[string]Backend

	slots map[Class]*semaphore.Weighted

	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	sleep       Sleeper
	recorder    Recorder
}

// NewCoordinator builds a coordinator with no backends registered.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		backends:    make(map[string]Backend),
		slots:       map[Class]*semaphore.Weighted{ClassLocal: semaphore.NewWeighted(1)},
		timeout:     opts.CallTimeout,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		sleep:       opts.Sleep,
		recorder:    opts.Recorder,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultCallTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c
}

// Register adds or replaces a backend under id.
func (c *Coordinator) Register(id string, b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[id] = b
}

// Backends returns the registered ids.
func (c *Coordinator) Backends() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.backends))
	for id := range c.backends {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) backend(id string) (Backend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.backends[id]
	return b, ok
}

// SerialAccess acquires the serialization slot for the backend's class. Local
// backends allow one call at a time across the process; remote backends get
// a no-op release immediately. The returned release is idempotent.
func (c *Coordinator) SerialAccess(ctx context.Context, backendID string) (func(), error) {
	sem, ok := c.slots[ClassOf(backendID)]
	if !ok {
		return func() {}, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// CallText runs a call and returns the generated text, or a *BackendError
// once the call has failed for good.
func (c *Coordinator) CallText(ctx context.Context, call Call) (string, error) {
	in := newInteraction(call)
	text, attempts, err := c.run(ctx, call)
	in.Attempts = attempts
	in.Latency = time.Since(in.Time)
	in.Response = text
	if err != nil {
		in.Kind = KindBackend.String()
		in.Error = err.Error()
	} else {
		in.Success = true
		in.Kind = KindNone.String()
	}
	c.record(ctx, in)
	return text, err
}

// CallStructured runs a call and parses the reply into the required fields.
// It never returns an error: every failure is encoded in the result kind.
func (c *Coordinator) CallStructured(ctx context.Context, call Call, fields []Field) CallResult {
	in := newInteraction(call)
	text, attempts, err := c.run(ctx, call)
	in.Attempts = attempts
	in.Latency = time.Since(in.Time)
	in.Response = text

	res := CallResult{Text: text, Attempts: attempts}
	if err != nil {
		res.Kind = KindBackend
		res.Err = err
		in.Error = err.Error()
	} else {
		res.Payload, res.Missing, res.Kind = ParseStructured(text, fields)
		in.Success = res.Kind == KindNone
		if res.Kind == KindMissingFields {
			in.Error = fmt.Sprintf("missing fields %v", res.Missing)
		}
	}
	in.Kind = res.Kind.String()
	c.record(ctx, in)

	if res.Kind != KindNone {
		log.Warn().Str("backend", call.Backend).Str("power", string(call.Power)).
			Str("phase", call.Phase).Str("purpose", call.Purpose).
			Str("kind", res.Kind.String()).Strs("missing", res.Missing).
			Msg("structured call failed")
	}
	return res
}

// run performs up to maxAttempts attempts. After a recoverable failure on
// attempt n it waits baseDelay*n before continuing.
func (c *Coordinator) run(ctx context.Context, call Call) (string, int, error) {
	ctx, span := tracer.Start(ctx, "inference.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend", call.Backend),
		attribute.String("power", string(call.Power)),
		attribute.String("phase", call.Phase),
		attribute.String("purpose", call.Purpose),
	)

	b, ok := c.backend(call.Backend)
	if !ok {
		err := &BackendError{Backend: call.Backend, Err: ErrUnknownBackend}
		span.SetStatus(codes.Error, err.Error())
		return "", 0, err
	}

	var lastErr error
	attempt := 0
	for attempt < c.maxAttempts {
		attempt++
		text, err := c.attempt(ctx, b, call)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return text, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRecoverable(err) {
			break
		}
		delay := c.baseDelay * time.Duration(attempt)
		log.Debug().Err(err).Str("backend", call.Backend).Int("attempt", attempt).
			Dur("delay", delay).Msg("retrying inference call")
		if serr := c.sleep(ctx, delay); serr != nil {
			lastErr = errors.Join(err, serr)
			break
		}
	}

	span.SetAttributes(attribute.Int("attempts", attempt))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", attempt, &BackendError{Backend: call.Backend, Attempts: attempt, Err: lastErr}
}

func (c *Coordinator) attempt(ctx context.Context, b Backend, call Call) (text string, err error) {
	release, err := c.SerialAccess(ctx, call.Backend)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference: backend %s panicked: %v", call.Backend, r)
		}
	}()
	return b.Complete(ctx, call.System, call.Prompt)
}

func (c *Coordinator) record(ctx context.Context, in Interaction) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), in); err != nil {
		log.Warn().Err(err).Str("backend", in.Backend).Msg("failed to record interaction")
	}
}
