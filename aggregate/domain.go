package aggregate

import (
	"sort"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// DomainSummary represents the technologies found across every URL of one host.
type DomainSummary struct {
	Domain       string        `json:"domain"`
	URLs         []string      `json:"urls"`
	Technologies []model.Match `json:"technologies"`
	Failed       int           `json:"failed,omitempty"`
}

// ByDomain groups a batch by host. The first match of a technology wins, except that a
// versioned match replaces an earlier versionless one. Domains and URLs are sorted.
func ByDomain(batch model.Batch) []DomainSummary {
	index := make(map[string]*DomainSummary)
	urlSeen := make(map[string]map[string]struct{}) // domain -> URL
	techPos := make(map[string]map[string]int)      // domain -> technology -> position

	for _, r := range batch {
		domain := r.Domain
		if domain == "" {
			domain = "unknown"
		}
		s, ok := index[domain]
		if !ok {
			s = &DomainSummary{Domain: domain, Technologies: []model.Match{}}
			index[domain] = s
			urlSeen[domain] = make(map[string]struct{})
			techPos[domain] = make(map[string]int)
		}

		if _, ok := urlSeen[domain][r.URL]; !ok {
			urlSeen[domain][r.URL] = struct{}{}
			s.URLs = append(s.URLs, r.URL)
		}
		if r.Failed() {
			s.Failed++
			continue
		}

		for _, m := range r.Matches {
			pos, ok := techPos[domain][m.Name]
			if !ok {
				techPos[domain][m.Name] = len(s.Technologies)
				s.Technologies = append(s.Technologies, m)
				continue
			}
			if s.Technologies[pos].Version == "" && m.Version != "" {
				s.Technologies[pos] = m
			}
		}
	}

	aggregated := make([]DomainSummary, 0, len(index))
	for _, s := range index {
		sort.Strings(s.URLs) // Sort URLs for consistent output
		aggregated = append(aggregated, *s)
	}

	// Sort aggregated domains by name
	sort.Slice(aggregated, func(i, j int) bool {
		return aggregated[i].Domain < aggregated[j].Domain
	})

	return aggregated
}
