package auditconfig

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ParseError reports malformed document syntax.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse config")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ", column %d", e.Column)
		}
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports an unrecognized key or an out-of-range value,
// naming the offending key.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid config")
	if e.Key != "" {
		fmt.Fprintf(&b, ": key %q", e.Key)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": value %q", e.Value)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}

// wrapTOMLError maps a go-toml failure onto ParseError, carrying the
// source position when the decoder provides one.
func wrapTOMLError(path string, err error) error {
	var de *toml.DecodeError
	if errors.As(err, &de) {
		line, col := de.Position()
		return &ParseError{Path: path, Line: line, Column: col, Err: err}
	}
	return &ParseError{Path: path, Err: err}
}

// yamlLinePattern matches the "line N" prefix yaml.v3 embeds in its error
// messages; the library exposes no structured position.
var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// wrapYAMLError maps a yaml.v3 failure onto ParseError, recovering the
// line number from the error message when one is present.
func wrapYAMLError(path string, err error) error {
	msg := err.Error()
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return &ParseError{Path: path, Line: line, Err: err}
}

// valueKind is the expected shape of a configuration value.
type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindStringList
)

// schema is the full key contract of the document. Anything outside it is
// rejected before the typed decode runs, so shape errors always name the
// offending key regardless of codec.
var schema = map[string]map[string]valueKind{
	"advisories": {
		"ignore":                 kindStringList,
		"informational_warnings": kindStringList,
		"severity_threshold":     kindString,
	},
	"database": {
		"path":  kindString,
		"url":   kindString,
		"fetch": kindBool,
		"stale": kindBool,
	},
	"output": {
		"deny":      kindStringList,
		"format":    kindString,
		"quiet":     kindBool,
		"show_tree": kindBool,
	},
	"yanked": {
		"enabled":      kindBool,
		"update_index": kindBool,
	},
}

// checkSchema validates a generically-decoded document against the schema.
func checkSchema(raw map[string]interface{}) error {
	for section, val := range raw {
		keys, ok := schema[section]
		if !ok {
			return &ValidationError{Key: section, Reason: "unrecognized key"}
		}
		table, ok := val.(map[string]interface{})
		if !ok {
			return &ValidationError{Key: section, Reason: "expected a table of settings"}
		}
		for key, v := range table {
			fullKey := section + "." + key
			kind, ok := keys[key]
			if !ok {
				return &ValidationError{Key: fullKey, Reason: "unrecognized key"}
			}
			if err := checkKind(fullKey, kind, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkKind(key string, kind valueKind, v interface{}) error {
	switch kind {
	case kindString:
		if _, ok := v.(string); !ok {
			return &ValidationError{Key: key, Reason: "expected a string"}
		}
	case kindBool:
		if _, ok := v.(bool); !ok {
			return &ValidationError{Key: key, Reason: "expected a boolean"}
		}
	case kindStringList:
		items, ok := v.([]interface{})
		if !ok {
			return &ValidationError{Key: key, Reason: "expected a list"}
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return &ValidationError{Key: key, Reason: "expected a list of strings"}
			}
		}
	}
	return nil
}
