package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Interaction is one logged inference call. The log is for offline analysis
// only; nothing in a running game reads it back.
type Interaction struct {
	ID       string        `json:"id"`
	GameID   string        `json:"game_id,omitempty"`
	Time     time.Time     `json:"time"`
	Backend  string        `json:"backend"`
	Power    string        `json:"power,omitempty"`
	Phase    string        `json:"phase,omitempty"`
	Purpose  string        `json:"purpose,omitempty"`
	Success  bool          `json:"success"` // structured calls: the reply parsed with every field
	Kind     string        `json:"kind"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency_ns"`
	Prompt   string        `json:"prompt,omitempty"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func newInteraction(c Call) Interaction {
	return Interaction{
		ID:      uuid.NewString(),
		GameID:  c.GameID,
		Time:    time.Now().UTC(),
		Backend: c.Backend,
		Power:   string(c.Power),
		Phase:   c.Phase,
		Purpose: c.Purpose,
		Prompt:  c.Prompt,
	}
}

// Recorder persists interactions.
type Recorder interface {
	Record(ctx context.Context, in Interaction) error
}

// MemoryRecorder keeps interactions in memory.
type MemoryRecorder struct {
	mu    sync.Mutex
	items []Interaction
}

func (m *MemoryRecorder) Record(_ context.Context, in Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, in)
	return nil
}

// Interactions returns a copy of everything recorded so far.
func (m *MemoryRecorder) Interactions() []Interaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Interaction(nil), m.items...)
}

// MultiRecorder fans out to several recorders and joins their errors.
type MultiRecorder []Recorder

func (rs MultiRecorder) Record(ctx context.Context, in Interaction) error {
	var first error
	for _, r := range rs {
		if err := r.Record(ctx, in); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// JSONLRecorder appends interactions to zstd-compressed JSONL files, one
// file per UTC hour under dir.
type JSONLRecorder struct {
	dir    string
	prefix string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLRecorder(dir, prefix string) *JSONLRecorder {
	return &JSONLRecorder{dir: dir, prefix: prefix}
}

func (r *JSONLRecorder) Record(_ context.Context, in Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hour := in.Time.UTC().Format("2006-01-02-15")
	if hour != r.curHour {
		if err := r.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *JSONLRecorder) rotateLocked(hour string) error {
	if err := r.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 64*1024)
	r.curHour = hour
	return nil
}

func (r *JSONLRecorder) closeLocked() error {
	var err error
	if r.w != nil {
		_ = r.w.Flush()
	}
	if r.enc != nil {
		err = r.enc.Close()
		r.enc = nil
	}
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	r.w = nil
	r.curHour = ""
	return err
}

func (r *JSONLRecorder) pathForHour(hour string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.jsonl.zst", r.prefix, hour))
}

// ReadJSONL decodes every interaction from one compressed JSONL file.
func ReadJSONL(path string) ([]Interaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Interaction
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var in Interaction
		if err := json.Unmarshal(scanner.Bytes(), &in); err != nil {
			return out, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, in)
	}
	return out, scanner.Err()
}
