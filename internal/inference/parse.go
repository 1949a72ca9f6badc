package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Kind classifies the outcome of a structured call.
type Kind int

const (
	KindNone          Kind = iota // parsed, all fields present
	KindBackend                   // the backend failed after retries
	KindUnparsable                // no JSON or YAML object could be recovered
	KindMissingFields             // parsed, but required fields are absent
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindBackend:
		return "backend"
	case KindUnparsable:
		return "unparsable"
	case KindMissingFields:
		return "missing_fields"
	}
	return "unknown"
}

// Field is a required reply field and the alternative keys models use for it.
type Field struct {
	Name    string
	Aliases []string
}

// F is shorthand for a Field.
func F(name string, aliases ...string) Field {
	return Field{Name: name, Aliases: aliases}
}

// CallResult is the outcome of CallStructured. Failures are encoded in Kind;
// Payload holds whatever fields were resolved, even on KindMissingFields.
type CallResult struct {
	Kind     Kind
	Payload  Payload
	Text     string
	Missing  []string
	Attempts int
	Err      error
}

// OK reports whether every required field was resolved.
func (r CallResult) OK() bool { return r.Kind == KindNone }

// Payload is a parsed reply with required fields resolved to their canonical
// names.
type Payload struct {
	raw    string
	fields map[string]gjson.Result
}

// Raw returns the normalized JSON document.
func (p Payload) Raw() string { return p.raw }

// Has reports whether the named field was resolved.
func (p Payload) Has(name string) bool {
	_, ok := p.fields[name]
	return ok
}

// Get returns the resolved field, or a gjson.Result that does not exist.
func (p Payload) Get(name string) gjson.Result {
	if r, ok := p.fields[name]; ok {
		return r
	}
	return gjson.Result{}
}

// Lookup reads an optional key straight from the document.
func (p Payload) Lookup(key string) gjson.Result {
	if p.raw == "" {
		return gjson.Result{}
	}
	return gjson.Get(p.raw, gjson.Escape(key))
}

// String returns the field as a string ("" when absent).
func (p Payload) String(name string) string {
	return p.Get(name).String()
}

// Decode unmarshals the named field into v.
func (p Payload) Decode(name string, v any) error {
	r, ok := p.fields[name]
	if !ok {
		return fmt.Errorf("inference: field %q not present", name)
	}
	return json.Unmarshal([]byte(r.Raw), v)
}

// ParseStructured recovers a JSON document from model text and resolves the
// required fields. It tries a strict parse, then strips markup and takes the
// outermost object or array, then falls back to YAML.
func ParseStructured(text string, fields []Field) (Payload, []string, Kind) {
	doc, ok := recoverDocument(text)
	if !ok {
		return Payload{}, nil, KindUnparsable
	}
	p, missing := resolve(doc, fields)
	if len(missing) > 0 {
		return p, missing, KindMissingFields
	}
	return p, nil, KindNone
}

func recoverDocument(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if isJSONDocument(trimmed) {
		return trimmed, true
	}

	body := stripFences(trimmed)
	if cand := outermost(body); cand != "" && isJSONDocument(cand) {
		return cand, true
	}
	// The fence may hold a note next to a bare document.
	if body != trimmed {
		if cand := outermost(trimmed); cand != "" && isJSONDocument(cand) {
			return cand, true
		}
	}

	var v any
	if err := yaml.Unmarshal([]byte(body), &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			if b, err := json.Marshal(v); err == nil {
				return string(b), true
			}
		}
	}
	return "", false
}

func isJSONDocument(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return gjson.Valid(s)
}

// stripFences removes a surrounding ``` block (with optional language tag)
// and returns its body. Text outside the first fenced block is dropped.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// outermost returns the span from the first opening brace or bracket to the
// last matching closer.
func outermost(s string) string {
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	open, closer := obj, byte('}')
	if obj < 0 || (arr >= 0 && arr < obj) {
		open, closer = arr, ']'
	}
	if open < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, closer)
	if end <= open {
		return ""
	}
	return strings.TrimSpace(s[open : end+1])
}

func resolve(doc string, fields []Field) (Payload, []string) {
	p := Payload{raw: doc, fields: make(map[string]gjson.Result, len(fields))}
	var missing []string
	for _, f := range fields {
		found := false
		for _, key := range append([]string{f.Name}, f.Aliases...) {
			r := gjson.Get(doc, gjson.Escape(key))
			if r.Exists() && r.Type != gjson.Null {
				p.fields[f.Name] = r
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f.Name)
		}
	}
	return p, missing
}
