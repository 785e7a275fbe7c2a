package advisory

import (
	"fmt"
	"strconv"
	"strings"
)

// Id is a published advisory identifier, e.g. "RUSTSEC-2019-0001".
// Identifiers have the shape PREFIX-YEAR-NUMBER: an upper-case
// alphanumeric namespace prefix, a four digit year and a sequence number.
type Id string

// ParseId validates raw and returns it as an Id.
func ParseId(raw string) (Id, error) {
	id := Id(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the structural shape of the identifier.
func (id Id) Validate() error {
	parts := strings.SplitN(string(id), "-", 3)
	if len(parts) != 3 {
		return fmt.Errorf("advisory id %q: expected PREFIX-YEAR-NUMBER", string(id))
	}
	prefix, year, num := parts[0], parts[1], parts[2]
	if prefix == "" || prefix != strings.ToUpper(prefix) {
		return fmt.Errorf("advisory id %q: prefix must be upper-case", string(id))
	}
	if len(year) != 4 {
		return fmt.Errorf("advisory id %q: year must be four digits", string(id))
	}
	if _, err := strconv.Atoi(year); err != nil {
		return fmt.Errorf("advisory id %q: year must be numeric", string(id))
	}
	if num == "" {
		return fmt.Errorf("advisory id %q: missing sequence number", string(id))
	}
	return nil
}

// Year returns the year component of the identifier, or 0 when the
// identifier is malformed.
func (id Id) Year() int {
	parts := strings.SplitN(string(id), "-", 3)
	if len(parts) != 3 {
		return 0
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return year
}

func (id Id) String() string {
	return string(id)
}

// Severity is a vulnerability severity rating. SeverityNone sorts below
// every other level and, used as a threshold, disables filtering.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all severity levels in ascending order.
var Severities = []Severity{
	SeverityNone,
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity returns the severity named by raw.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// Valid reports whether s names a known severity level.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

func (s Severity) String() string {
	return string(s)
}

// Informational is a category of advisory that carries no severity of its
// own and is surfaced as a warning rather than a vulnerability.
type Informational string

const (
	InformationalNotice       Informational = "notice"
	InformationalUnmaintained Informational = "unmaintained"
	InformationalUnsound      Informational = "unsound"
	InformationalYanked       Informational = "yanked"
)

// Informationals lists all informational warning categories.
var Informationals = []Informational{
	InformationalNotice,
	InformationalUnmaintained,
	InformationalUnsound,
	InformationalYanked,
}

// Valid reports whether i names a known informational category.
func (i Informational) Valid() bool {
	switch i {
	case InformationalNotice, InformationalUnmaintained, InformationalUnsound, InformationalYanked:
		return true
	}
	return false
}

func (i Informational) String() string {
	return string(i)
}

// DenyCondition is a report condition that forces a failing exit status.
type DenyCondition string

const (
	DenyWarnings     DenyCondition = "warnings"
	DenyUnmaintained DenyCondition = "unmaintained"
	DenyUnsound      DenyCondition = "unsound"
	DenyYanked       DenyCondition = "yanked"
)

// DenyConditions lists all deniable conditions.
var DenyConditions = []DenyCondition{
	DenyWarnings,
	DenyUnmaintained,
	DenyUnsound,
	DenyYanked,
}

// Valid reports whether d names a known deny condition.
func (d DenyCondition) Valid() bool {
	switch d {
	case DenyWarnings, DenyUnmaintained, DenyUnsound, DenyYanked:
		return true
	}
	return false
}

func (d DenyCondition) String() string {
	return string(d)
}
