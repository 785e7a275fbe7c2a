package auditconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cosmos/audit-guardian/pkg/advisory"
)

// DefaultConfigName is the conventional name of the audit config file.
const DefaultConfigName = "audit.toml"

// DefaultDatabaseURL is the advisory database cloned when none is configured.
const DefaultDatabaseURL = "https://github.com/RustSec/advisory-db.git"

// Default returns a configuration with every field at its documented
// default. Every key in the document is independently optional; parsing
// layers the document over these values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Advisories: AdvisoriesConfig{
			InformationalWarnings: []advisory.Informational{
				advisory.InformationalUnmaintained,
			},
			SeverityThreshold: advisory.SeverityNone,
		},
		Database: DatabaseConfig{
			Path:  filepath.Join(home, ".advisory-db"),
			URL:   DefaultDatabaseURL,
			Fetch: true,
			Stale: false,
		},
		Output: OutputConfig{
			Format:   FormatTerminal,
			ShowTree: true,
		},
		Yanked: YankedConfig{
			Enabled:     true,
			UpdateIndex: true,
		},
	}
}

// Load loads the audit configuration.
// If a specific configFilePath is provided, it is used; its extension
// selects the codec (.yml/.yaml for YAML, TOML otherwise).
// If configFilePath is empty, it looks for the default config file in dir,
// and a missing default file simply yields the default configuration.
func Load(dir, configFilePath string) (*Config, error) {
	var loadPath string
	explicitPathProvided := configFilePath != ""

	if explicitPathProvided {
		loadPath = configFilePath
	} else {
		loadPath = filepath.Join(dir, DefaultConfigName)
	}

	data, err := os.ReadFile(loadPath)
	if err != nil {
		if os.IsNotExist(err) {
			if explicitPathProvided {
				return nil, fmt.Errorf("config file not found at specified path: %s", loadPath)
			}
			zap.S().Infow("no audit config file found, using default configuration", "path", loadPath)
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", loadPath, err)
	}

	switch strings.ToLower(filepath.Ext(loadPath)) {
	case ".yml", ".yaml":
		return parseYAML(data, loadPath)
	default:
		return parseTOML(data, loadPath)
	}
}

// Parse decodes and validates a TOML audit configuration document. Keys
// absent from the document keep their defaults; unrecognized keys and
// out-of-range values are rejected.
func Parse(data []byte) (*Config, error) {
	return parseTOML(data, "")
}

// ParseYAML is Parse for the YAML rendition of the document.
func ParseYAML(data []byte) (*Config, error) {
	return parseYAML(data, "")
}

func parseTOML(data []byte, path string) (*Config, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, wrapTOMLError(path, err)
	}
	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Advisories.InformationalWarnings = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, wrapTOMLError(path, err)
	}
	cfg.applyListDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseYAML(data []byte, path string) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, wrapYAMLError(path, err)
	}
	if err := checkSchema(raw); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Advisories.InformationalWarnings = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, wrapYAMLError(path, err)
	}
	cfg.applyListDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyListDefaults restores defaults for list keys the document left
// unset. List defaults are cleared before decoding so that a document
// value replaces them instead of layering on top.
func (c *Config) applyListDefaults() {
	if c.Advisories.InformationalWarnings == nil {
		c.Advisories.InformationalWarnings = []advisory.Informational{
			advisory.InformationalUnmaintained,
		}
	}
}

// Marshal serializes the configuration as TOML. Parsing the result yields
// a semantically equivalent configuration, with ignore order preserved.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	return data, nil
}

// Validate checks every enumerated and structured value, naming the
// offending key on failure. It enforces no cross-field consistency.
func (c *Config) Validate() error {
	for i, id := range c.Advisories.Ignore {
		if err := id.Validate(); err != nil {
			return &ValidationError{
				Key:    fmt.Sprintf("advisories.ignore[%d]", i),
				Value:  id.String(),
				Reason: "not a valid advisory identifier",
			}
		}
	}
	for _, w := range c.Advisories.InformationalWarnings {
		if !w.Valid() {
			return &ValidationError{
				Key:    "advisories.informational_warnings",
				Value:  w.String(),
				Reason: "unknown informational warning category",
			}
		}
	}
	if st := c.Advisories.SeverityThreshold; st != "" && !st.Valid() {
		return &ValidationError{
			Key:    "advisories.severity_threshold",
			Value:  st.String(),
			Reason: "unknown severity level",
		}
	}
	if c.Database.URL != "" {
		u, err := url.Parse(c.Database.URL)
		if err != nil || u.Scheme == "" {
			return &ValidationError{
				Key:    "database.url",
				Value:  c.Database.URL,
				Reason: "not an absolute URL",
			}
		}
	}
	for _, d := range c.Output.Deny {
		if !d.Valid() {
			return &ValidationError{
				Key:    "output.deny",
				Value:  d.String(),
				Reason: "unknown deny condition",
			}
		}
	}
	if !c.Output.Format.Valid() {
		return &ValidationError{
			Key:    "output.format",
			Value:  string(c.Output.Format),
			Reason: `must be "terminal" or "json"`,
		}
	}
	return nil
}

// IsIgnored reports whether the given advisory is suppressed.
func (c *Config) IsIgnored(id advisory.Id) bool {
	for _, ignored := range c.Advisories.Ignore {
		if ignored == id {
			return true
		}
	}
	return false
}

// ShouldReport reports whether an advisory of severity s clears the
// configured threshold. A threshold of "none" (or unset) disables
// filtering: every severity is reportable.
func (c *Config) ShouldReport(s advisory.Severity) bool {
	threshold := c.Advisories.SeverityThreshold
	if threshold == "" || threshold == advisory.SeverityNone {
		return true
	}
	return s.AtLeast(threshold)
}

// WarnsInformational reports whether the given informational category is
// configured to be surfaced.
func (c *Config) WarnsInformational(kind advisory.Informational) bool {
	for _, w := range c.Advisories.InformationalWarnings {
		if w == kind {
			return true
		}
	}
	return false
}

// IsDenied reports whether the given condition forces a failing exit.
func (c *Config) IsDenied(cond advisory.DenyCondition) bool {
	for _, d := range c.Output.Deny {
		if d == cond {
			return true
		}
	}
	return false
}
