// Package group suppresses technologies that every page of a batch shares with its primary URL.
package group

import "github.com/Abhaythakor/fingerprintweb/model"

// Group treats the first result as the site's primary page. A technology found on the primary
// and in every other result of the batch is removed from the non-primary results. A failed result
// reports nothing, so it corroborates nothing and blocks grouping for every technology. Findings
// unique to a subpage are never touched and a failed primary suppresses nothing. The input batch is
// not modified.
func Group(batch model.Batch) model.Batch {
	out := make(model.Batch, len(batch))
	for i, r := range batch {
		r.Matches = append([]model.Match(nil), r.Matches...)
		if r.Matches == nil {
			r.Matches = []model.Match{}
		}
		out[i] = r
	}
	if len(out) < 2 || out[0].Failed() {
		return out
	}

	shared := make(map[string]struct{})
	for _, m := range out[0].Matches {
		everywhere := true
		for _, r := range out[1:] {
			if r.Failed() || !r.Has(m.Name) {
				everywhere = false
				break
			}
		}
		if everywhere {
			shared[m.Name] = struct{}{}
		}
	}
	if len(shared) == 0 {
		return out
	}

	for i := 1; i < len(out); i++ {
		kept := out[i].Matches[:0]
		for _, m := range out[i].Matches {
			if _, ok := shared[m.Name]; !ok {
				kept = append(kept, m)
			}
		}
		out[i].Matches = kept
	}
	return out
}
