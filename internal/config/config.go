// Package config loads the VEN configuration from YAML and validates it
// against an embedded CUE schema before anything else touches it.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/gridsignal/oadr2ven/internal/engine"
	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/schedule"
)

//go:embed schema.cue
var schemaSource string

// StringList accepts either a YAML sequence or a comma-separated scalar.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = nil
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				*s = append(*s, p)
			}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("vtn list: expected string or sequence")
	}
}

// Poll configures the pull transport.
type Poll struct {
	URL      string `yaml:"url" json:"url"`
	Interval string `yaml:"interval" json:"interval,omitempty"` // xcal duration
}

// Push configures the push listener.
type Push struct {
	Listen string `yaml:"listen" json:"listen"`
}

// Config is the full VEN configuration.
type Config struct {
	VENID          string     `yaml:"ven_id" json:"ven_id"`
	VTNIDs         StringList `yaml:"vtn_ids" json:"vtn_ids,omitempty"`
	MarketContexts StringList `yaml:"market_contexts" json:"market_contexts,omitempty"`
	GroupID        string     `yaml:"group_id" json:"group_id,omitempty"`
	ResourceID     string     `yaml:"resource_id" json:"resource_id,omitempty"`
	PartyID        string     `yaml:"party_id" json:"party_id,omitempty"`
	Profile        string     `yaml:"profile" json:"profile,omitempty"`
	Database       string     `yaml:"database" json:"database"`
	Poll           *Poll      `yaml:"poll" json:"poll,omitempty"`
	Push           *Push      `yaml:"push" json:"push,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes and validates them against the
// schema. Schema defaults (profile, poll interval) are applied to the
// returned Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	unified := schema.Unify(ctx.Encode(cfg))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// Read back through the schema so defaults land in the struct.
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode validated config: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the poll interval as a duration. Zero when polling
// is not configured.
func (c *Config) PollInterval() (time.Duration, error) {
	if c.Poll == nil {
		return 0, nil
	}
	d, err := schedule.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("poll interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll interval: must be positive, got %s", c.Poll.Interval)
	}
	return d, nil
}

// Engine converts the file configuration into the engine's surface.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		VENID:          c.VENID,
		VTNIDs:         c.VTNIDs,
		MarketContexts: c.MarketContexts,
		GroupID:        c.GroupID,
		ResourceID:     c.ResourceID,
		PartyID:        c.PartyID,
		Profile:        oadr.Profile(c.Profile),
	}
}
