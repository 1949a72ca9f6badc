package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/freeeve/parley/pkg/diplomacy"
)

//go:embed setup.schema.json
var setupSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func setupSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("setup.schema.json", setupSchemaJSON)
	})
	return schema, schemaErr
}

// Agent kinds.
const (
	KindLLM      = "llm"
	KindScripted = "scripted"
)

// Setup describes one game: who plays which power, through which backend.
type Setup struct {
	GameID            string                `yaml:"game_id"`
	Map               string                `yaml:"map"`
	NegotiationRounds int                   `yaml:"negotiation_rounds"`
	MaxYear           int                   `yaml:"max_year"`
	MaxPhases         int                   `yaml:"max_phases"`
	Out               string                `yaml:"out"`
	Engine            EngineSetup           `yaml:"engine"`
	Diary             DiarySetup            `yaml:"diary"`
	Backends          []BackendSetup        `yaml:"backends"`
	Powers            map[string]PowerSetup `yaml:"powers"`
	Blocs             []BlocSetup           `yaml:"blocs"`
}

// EngineSetup is the adjudicator subprocess.
type EngineSetup struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// DiarySetup bounds agent diaries.
type DiarySetup struct {
	Limit int `yaml:"limit"`
	Keep  int `yaml:"keep"`
}

// BackendSetup configures one OpenAI-compatible endpoint. Secrets are named
// by environment variable, never stored in the file.
type BackendSetup struct {
	ID          string      `yaml:"id"`
	BaseURL     string      `yaml:"base_url"`
	APIKeyEnv   string      `yaml:"api_key_env"`
	MaxTokens   int64       `yaml:"max_tokens"`
	Temperature *float64    `yaml:"temperature"`
	OAuth       *OAuthSetup `yaml:"oauth"`
}

// OAuthSetup is a client-credentials grant for a model gateway.
type OAuthSetup struct {
	TokenURL        string   `yaml:"token_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	Scopes          []string `yaml:"scopes"`
}

// PowerSetup assigns a single power.
type PowerSetup struct {
	Kind    string   `yaml:"kind"`
	Backend string   `yaml:"backend"`
	Goals   []string `yaml:"goals"`
}

// BlocSetup assigns several powers to one agent.
type BlocSetup struct {
	ID      string   `yaml:"id"`
	Members []string `yaml:"members"`
	Backend string   `yaml:"backend"`
}

// LoadSetup reads and validates a setup file.
func LoadSetup(path string) (*Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup: %w", err)
	}
	s, err := ParseSetup(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSetup validates YAML against the setup schema, decodes it and checks
// the cross references the schema cannot express.
func ParseSetup(data []byte) (*Setup, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse setup: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parse setup: empty document")
	}
	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse setup: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("parse setup: %w", err)
	}
	sch, err := setupSchema()
	if err != nil {
		return nil, fmt.Errorf("compile setup schema: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid setup: %w", err)
	}

	var s Setup
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode setup: %w", err)
	}
	s.applyDefaults()
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Setup) applyDefaults() {
	if s.Map == "" {
		s.Map = "standard"
	}
	if s.Diary.Limit == 0 {
		s.Diary.Limit = 30
	}
	if s.Diary.Keep == 0 {
		s.Diary.Keep = 10
	}
}

func (s *Setup) check() error {
	if s.Diary.Keep >= s.Diary.Limit {
		return fmt.Errorf("invalid setup: diary keep (%d) must be below limit (%d)", s.Diary.Keep, s.Diary.Limit)
	}
	known := make(map[string]bool, len(s.Backends))
	for _, b := range s.Backends {
		if known[b.ID] {
			return fmt.Errorf("invalid setup: backend %q declared twice", b.ID)
		}
		known[b.ID] = true
	}

	claimed := make(map[diplomacy.Power]string)
	claim := func(name, by string) error {
		p, ok := diplomacy.ParsePower(name)
		if !ok || p == diplomacy.Global {
			return fmt.Errorf("invalid setup: unknown power %q", name)
		}
		if prev, ok := claimed[p]; ok {
			return fmt.Errorf("invalid setup: %s assigned to both %s and %s", p, prev, by)
		}
		claimed[p] = by
		return nil
	}

	for name, ps := range s.Powers {
		if err := claim(name, "powers."+name); err != nil {
			return err
		}
		if ps.Kind == KindLLM {
			if ps.Backend == "" {
				return fmt.Errorf("invalid setup: %s is an llm power without a backend", name)
			}
			if !known[ps.Backend] {
				return fmt.Errorf("invalid setup: %s uses undeclared backend %q", name, ps.Backend)
			}
		}
	}
	for i, b := range s.Blocs {
		by := b.ID
		if by == "" {
			by = fmt.Sprintf("blocs[%d]", i)
		}
		for _, m := range b.Members {
			if err := claim(m, by); err != nil {
				return err
			}
		}
		if !known[b.Backend] {
			return fmt.Errorf("invalid setup: %s uses undeclared backend %q", by, b.Backend)
		}
	}
	return nil
}

// BlocMembers returns a bloc's members as powers.
func (b BlocSetup) BlocMembers() []diplomacy.Power {
	out := make([]diplomacy.Power, 0, len(b.Members))
	for _, m := range b.Members {
		if p, ok := diplomacy.ParsePower(m); ok && p != diplomacy.Global {
			out = append(out, p)
		}
	}
	return out
}

// APIKey resolves the backend's key from the environment.
func (b BackendSetup) APIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(b.APIKeyEnv))
}
