// Package match evaluates a rule set against a page snapshot.
package match

import (
	"sort"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/extract"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// hit is one pattern that matched, before deduplication.
type hit struct {
	clue    *clues.Clue
	version string
	origin  model.SignalKind
	conf    int
	seq     int // position in evaluation order
}

// MatchAll returns the unique technologies found on snap. Direct matches come first in rule-file
// order, followed by implied technologies in resolution order. Exclusions declared by a detected
// technology are applied last.
func MatchAll(snap *extract.Snapshot, rules *clues.RuleSet) []model.Match {
	if snap == nil || rules == nil {
		return nil
	}

	hits := direct(snap, rules)
	matches, owners := dedup(hits)
	matches, owners = imply(matches, owners, rules)
	return exclude(matches, owners)
}

func direct(snap *extract.Snapshot, rules *clues.RuleSet) []hit {
	var hits []hit
	seq := 0
	for _, kind := range model.AllSignalKinds() {
		for _, e := range rules.PatternsFor(kind) {
			var matched bool
			var version string
			if e.Pattern.Presence() {
				matched = snap.Has(kind, e.Pattern.Key)
			} else {
				matched, version = evalValues(e.Pattern, snap.Values(kind, e.Pattern.Key))
			}
			if !matched {
				continue
			}
			hits = append(hits, hit{
				clue:    e.Clue,
				version: version,
				origin:  kind,
				conf:    e.Pattern.Confidence,
				seq:     seq,
			})
			seq++
		}
	}
	return hits
}

// evalValues matches p against each value, preferring the first value that yields a version.
func evalValues(p *clues.Pattern, values []string) (bool, string) {
	matched := false
	for _, v := range values {
		ok, ver := p.Eval(v)
		if !ok {
			continue
		}
		if ver != "" {
			return true, ver
		}
		matched = true
	}
	return matched, ""
}

// better reports whether a should win over b for the same technology.
func better(a, b hit) bool {
	if (a.version != "") != (b.version != "") {
		return a.version != ""
	}
	if a.clue.Index != b.clue.Index {
		return a.clue.Index < b.clue.Index
	}
	return a.seq < b.seq
}

// dedup collapses hits per technology name. Confidence is the sum of every matching pattern,
// capped at 100.
func dedup(hits []hit) ([]model.Match, []*clues.Clue) {
	best := make(map[string]hit)
	conf := make(map[string]int)
	for _, h := range hits {
		name := h.clue.Name
		conf[name] += h.conf
		if cur, ok := best[name]; !ok || better(h, cur) {
			best[name] = h
		}
	}

	winners := make([]hit, 0, len(best))
	for _, h := range best {
		winners = append(winners, h)
	}
	sort.Slice(winners, func(i, j int) bool {
		if winners[i].clue.Index != winners[j].clue.Index {
			return winners[i].clue.Index < winners[j].clue.Index
		}
		return winners[i].seq < winners[j].seq
	})

	matches := make([]model.Match, 0, len(winners))
	owners := make([]*clues.Clue, 0, len(winners))
	for _, h := range winners {
		matches = append(matches, model.Match{
			Name:       h.clue.Name,
			Category:   h.clue.Category,
			Version:    h.version,
			Origin:     h.origin,
			Confidence: min(conf[h.clue.Name], 100),
		})
		owners = append(owners, h.clue)
	}
	return matches, owners
}

// imply adds implied technologies until a full pass adds nothing. Names already present are never
// re-added, so cycles terminate.
func imply(matches []model.Match, owners []*clues.Clue, rules *clues.RuleSet) ([]model.Match, []*clues.Clue) {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m.Name] = struct{}{}
	}

	for changed := true; changed; {
		changed = false
		for i := 0; i < len(matches); i++ {
			owner := owners[i]
			if owner == nil {
				continue
			}
			for _, name := range owner.Implies {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				changed = true

				m := model.Match{
					Name:       name,
					Origin:     matches[i].Origin,
					Implied:    true,
					Confidence: matches[i].Confidence,
				}
				c, known := rules.Lookup(name)
				if known {
					m.Category = c.Category
				}
				matches = append(matches, m)
				owners = append(owners, c)
			}
		}
	}
	return matches, owners
}

// exclude drops technologies named in the excludes of a surviving match, visiting matches in
// order. A match that is already excluded contributes no exclusions of its own, and a technology
// never excludes itself.
func exclude(matches []model.Match, owners []*clues.Clue) []model.Match {
	excluded := make(map[string]struct{})
	for i, m := range matches {
		if _, ok := excluded[m.Name]; ok || owners[i] == nil {
			continue
		}
		for _, name := range owners[i].Excludes {
			if name != m.Name {
				excluded[name] = struct{}{}
			}
		}
	}

	out := make([]model.Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := excluded[m.Name]; !ok {
			out = append(out, m)
		}
	}
	return out
}
