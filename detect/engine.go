package detect

import (
	"fmt"
	"sort"
	"strings"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/extract"
	"github.com/Abhaythakor/fingerprintweb/match"
	"github.com/Abhaythakor/fingerprintweb/model"
)

// Engine defines the interface for a technology detection engine.
type Engine interface {
	Name() string
	Detect(snap *extract.Snapshot) []model.Match
}

// ClueEngine matches pages against a loaded rule set.
type ClueEngine struct {
	Rules *clues.RuleSet
}

// NewClueEngine wraps rules. The rule set is shared read-only by every worker.
func NewClueEngine(rules *clues.RuleSet) *ClueEngine {
	return &ClueEngine{Rules: rules}
}

func (e *ClueEngine) Name() string { return "clues" }

func (e *ClueEngine) Detect(snap *extract.Snapshot) []model.Match {
	return match.MatchAll(snap, e.Rules)
}

// wappalyzerClient decouples the engine from the concrete wappalyzergo implementation.
type wappalyzerClient interface {
	Fingerprint(headers map[string][]string, data []byte) map[string]struct{}
}

// WappalyzerEngine supplements clue matches with the wappalyzergo fingerprint database.
type WappalyzerEngine struct {
	client wappalyzerClient
}

// NewWappalyzerEngine creates and initializes a new WappalyzerEngine.
func NewWappalyzerEngine() (*WappalyzerEngine, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize wappalyzer: %w", err)
	}
	return &WappalyzerEngine{client: client}, nil
}

func (e *WappalyzerEngine) Name() string { return "wappalyzer" }

// Detect reports every fingerprint as a direct html match without a category. Names come back
// as "App" or "App:version".
func (e *WappalyzerEngine) Detect(snap *extract.Snapshot) []model.Match {
	headers := make(map[string][]string, len(snap.Headers)+1)
	for k, v := range snap.Headers {
		headers[k] = []string{v}
	}
	for name, value := range snap.Cookies {
		headers["set-cookie"] = append(headers["set-cookie"], name+"="+value)
	}

	fingerprints := e.client.Fingerprint(headers, []byte(snap.HTML))
	found := make([]string, 0, len(fingerprints))
	for tech := range fingerprints {
		found = append(found, tech)
	}
	sort.Strings(found)

	matches := make([]model.Match, 0, len(found))
	for _, tech := range found {
		name, version, _ := strings.Cut(tech, ":")
		matches = append(matches, model.Match{
			Name:       name,
			Version:    version,
			Origin:     model.SignalHTML,
			Confidence: 100,
		})
	}
	return matches
}

// mergeMatches appends the matches of extra whose technology is not already in base.
func mergeMatches(base, extra []model.Match) []model.Match {
	seen := make(map[string]struct{}, len(base))
	for _, m := range base {
		seen[m.Name] = struct{}{}
	}
	for _, m := range extra {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		base = append(base, m)
	}
	return base
}
