// Package clues loads and indexes the rule set used to attribute technologies to pages.
package clues

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// Clue is an immutable rule associating a technology with detection patterns.
type Clue struct {
	Name       string
	Category   string
	Categories []string
	Website    string
	Implies    []string
	Excludes   []string
	Patterns   []*Pattern
	// Index is the clue's position in the rule file.
	Index int
}

// Entry pairs a clue with one of its patterns.
type Entry struct {
	Clue    *Clue
	Pattern *Pattern
}

// RuleSet is the loaded, read-only rule collection. It is safe for concurrent use.
type RuleSet struct {
	clues  []*Clue
	byKind map[model.SignalKind][]Entry
	byName map[string]*Clue
}

func newRuleSet(list []*Clue) *RuleSet {
	rs := &RuleSet{
		clues:  list,
		byKind: make(map[model.SignalKind][]Entry),
		byName: make(map[string]*Clue, len(list)),
	}
	for _, c := range list {
		if _, ok := rs.byName[c.Name]; !ok {
			rs.byName[c.Name] = c
		}
		for _, p := range c.Patterns {
			rs.byKind[p.Kind] = append(rs.byKind[p.Kind], Entry{Clue: c, Pattern: p})
		}
	}
	return rs
}

// PatternsFor returns every (clue, pattern) pair scoped to kind, in rule-file order.
func (rs *RuleSet) PatternsFor(kind model.SignalKind) []Entry {
	return slices.Clone(rs.byKind[kind])
}

// Lookup returns the first clue declared under name.
func (rs *RuleSet) Lookup(name string) (*Clue, bool) {
	c, ok := rs.byName[name]
	return c, ok
}

// Clues returns the clues in rule-file order.
func (rs *RuleSet) Clues() []*Clue {
	return slices.Clone(rs.clues)
}

// Len returns the number of clues.
func (rs *RuleSet) Len() int {
	return len(rs.clues)
}

// LoadError reports a malformed or unreadable clue source.
type LoadError struct {
	Clue  string
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	switch {
	case e.Clue != "" && e.Field != "":
		return fmt.Sprintf("clues: %q: %s: %v", e.Clue, e.Field, e.Err)
	case e.Clue != "":
		return fmt.Sprintf("clues: %q: %v", e.Clue, e.Err)
	}
	return fmt.Sprintf("clues: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var (
	ErrNoPatterns    = errors.New("no patterns declared")
	ErrEmptyName     = errors.New("empty technology name")
	ErrNoCategory    = errors.New("no category")
	ErrDuplicateClue = errors.New("duplicate clue")
	ErrEmptyImplied  = errors.New("empty implied technology name")
)
