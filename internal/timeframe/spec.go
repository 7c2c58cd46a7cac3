// Package timeframe aggregates 1-minute base series to standard and
// arbitrary custom timeframes, with a tiered TTL cache in front.
package timeframe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quantsignals/signalsd/internal/errs"
)

// Kind distinguishes the seven standard tags from custom minute counts.
type Kind int

const (
	Standard Kind = iota
	Custom
)

// Spec is a parsed timeframe.
type Spec struct {
	Kind    Kind
	Minutes int
}

// standardTags maps the canonical tag to its minute count.
var standardTags = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30, "1h": 60, "4h": 240, "1d": 1440,
}

// standardMinutes is the reverse mapping.
var standardMinutes = map[int]string{
	1: "1m", 5: "5m", 15: "15m", 30: "30m", 60: "1h", 240: "4h", 1440: "1d",
}

// StandardTags returns the seven standard tags ascending by minutes.
func StandardTags() []string {
	tags := make([]string, 0, len(standardTags))
	for tag := range standardTags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return standardTags[tags[i]] < standardTags[tags[j]] })
	return tags
}

// Parse accepts the standard tags, "<n>m" and "custom_<n>" for
// n in [1, 1440].
func Parse(s string) (Spec, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return Spec{}, errs.Validation("empty timeframe")
	}

	if minutes, ok := standardTags[raw]; ok {
		return Spec{Kind: Standard, Minutes: minutes}, nil
	}

	numeric := raw
	if cut, ok := strings.CutPrefix(raw, "custom_"); ok {
		numeric = cut
	} else if cut, ok := strings.CutSuffix(raw, "m"); ok {
		numeric = cut
	} else {
		return Spec{}, errs.Validation("timeframe %q: want a standard tag, <n>m, or custom_<n>", s)
	}

	minutes, err := strconv.Atoi(numeric)
	if err != nil {
		return Spec{}, errs.Validation("timeframe %q: %q is not a minute count", s, numeric)
	}
	return FromMinutes(minutes)
}

// FromMinutes builds a Spec from a raw minute count in [1, 1440].
func FromMinutes(minutes int) (Spec, error) {
	if minutes < 1 || minutes > 1440 {
		return Spec{}, errs.Validation("timeframe minutes %d outside [1, 1440]", minutes)
	}
	if _, ok := standardMinutes[minutes]; ok {
		return Spec{Kind: Standard, Minutes: minutes}, nil
	}
	return Spec{Kind: Custom, Minutes: minutes}, nil
}

// String renders the canonical tag: the standard tag when one exists,
// custom_<n> otherwise. Parse(s.String()) == s for every valid Spec.
func (s Spec) String() string {
	if tag, ok := standardMinutes[s.Minutes]; ok && s.Kind == Standard {
		return tag
	}
	return fmt.Sprintf("custom_%d", s.Minutes)
}
