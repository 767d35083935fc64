package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Trigger categories of the default set.
const (
	CategoryExplicit  = "explicit"
	CategoryTemporal  = "temporal"
	CategoryReference = "reference"
	CategoryQuestion  = "question"
)

// Trigger is one named pattern. A message matching any trigger asks for
// historical retrieval.
type Trigger struct {
	Category string
	Pattern  *regexp.Regexp
}

// TriggerSpec is the uncompiled form of a Trigger.
type TriggerSpec struct {
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
}

// Triggers is an ordered set of triggers.
type Triggers []Trigger

// DefaultTriggers returns the French memory-reference patterns. Matching is
// substring based, so "dit" also matches "dites".
func DefaultTriggers() Triggers {
	t, err := CompileTriggers([]TriggerSpec{
		{CategoryExplicit, `rappelle|souviens|mentionné|dit|parlé`},
		{CategoryTemporal, `avant|précédemment|dernier|semaine|mois|hier`},
		{CategoryReference, `premier|deuxième|troisième|précédent`},
		{CategoryQuestion, `quel était|qu['’]est-ce que j['’]ai|qui était`},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// CompileTriggers compiles specs in order. Patterns are case-insensitive.
func CompileTriggers(specs []TriggerSpec) (Triggers, error) {
	out := make(Triggers, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Category == "" {
			return nil, errors.New("trigger category is empty")
		}
		if seen[s.Category] {
			return nil, fmt.Errorf("duplicate trigger category %q", s.Category)
		}
		if strings.TrimSpace(s.Pattern) == "" {
			return nil, fmt.Errorf("trigger %q: empty pattern", s.Category)
		}
		re, err := regexp.Compile("(?i)" + norm.NFC.String(s.Pattern))
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", s.Category, err)
		}
		seen[s.Category] = true
		out = append(out, Trigger{Category: s.Category, Pattern: re})
	}
	return out, nil
}

// ParseTriggers decodes a JSON list of {"category","pattern"} objects.
func ParseTriggers(data []byte) (Triggers, error) {
	var specs []TriggerSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errors.New("no triggers defined")
	}
	return CompileTriggers(specs)
}

// Match reports whether any trigger matches text.
func (t Triggers) Match(text string) bool {
	text = norm.NFC.String(text)
	for _, tr := range t {
		if tr.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Categories returns the categories matching text, in trigger order.
func (t Triggers) Categories(text string) []string {
	text = norm.NFC.String(text)
	var out []string
	for _, tr := range t {
		if tr.Pattern.MatchString(text) {
			out = append(out, tr.Category)
		}
	}
	return out
}
