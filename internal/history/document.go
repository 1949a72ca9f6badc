package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// Document is the persisted replay form of a game.
type Document struct {
	ID      string            `json:"id"`
	Map     string            `json:"map"`
	Winners []diplomacy.Power `json:"winners,omitempty"`
	Phases  []PhaseRecord     `json:"phases"`
}

// Document converts the history to its replay form.
func (h *GameHistory) Document() Document {
	doc := Document{
		ID:     h.id,
		Map:    h.mapName,
		Phases: make([]PhaseRecord, len(h.phases)),
	}
	if len(h.winners) > 0 {
		doc.Winners = append([]diplomacy.Power(nil), h.winners...)
	}
	for i, rec := range h.phases {
		doc.Phases[i] = copyRecord(rec)
	}
	return doc
}

// FromDocument rebuilds a history from a replay document.
func FromDocument(doc Document) *GameHistory {
	h := New(doc.ID, doc.Map)
	h.SetWinners(doc.Winners)
	for i := range doc.Phases {
		rec := copyRecord(&doc.Phases[i])
		h.index[rec.Name] = len(h.phases)
		h.phases = append(h.phases, &rec)
	}
	return h
}

// Encode writes the document as indented JSON.
func (d Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// DecodeDocument reads a JSON document.
func DecodeDocument(r io.Reader) (Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Document{}, fmt.Errorf("decode history document: %w", err)
	}
	return d, nil
}

// Save writes the document to path. A ".zst" suffix selects zstd
// compression.
func (d Document) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(bw)
		if err != nil {
			return err
		}
		if err := d.Encode(enc); err != nil {
			enc.Close()
			return fmt.Errorf("save %s: %w", path, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
	} else if err := d.Encode(bw); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads a document written by Save.
func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return Document{}, err
		}
		defer dec.Close()
		r = dec
	}
	return DecodeDocument(r)
}
