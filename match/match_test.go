package match_test

import (
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/extract"
	"github.com/Abhaythakor/fingerprintweb/match"
	"github.com/Abhaythakor/fingerprintweb/model"
)

func mustLoad(t *testing.T, doc string) *clues.RuleSet {
	t.Helper()
	rs, err := clues.Load(strings.NewReader(doc), clues.FormatJSON)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return rs
}

func snapshot(headers map[string]string, html string) *extract.Snapshot {
	h := map[string]string{}
	for k, v := range headers {
		h[strings.ToLower(k)] = v
	}
	return &extract.Snapshot{
		URL:     "https://example.com/",
		Status:  200,
		Headers: h,
		Cookies: map[string]string{},
		Meta:    map[string][]string{},
		HTML:    html,
	}
}

func names(ms []model.Match) string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return strings.Join(out, ",")
}

func find(ms []model.Match, name string) (model.Match, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return model.Match{}, false
}

func TestApacheVersionFromServerHeader(t *testing.T) {
	rs := mustLoad(t, `{"categories": {"22": "web-servers"}, "apps": {
		"Apache": {"cats": [22], "headers": {"Server": "Apache/([\\d.]+)\\;version:$1"}}
	}}`)

	got := match.MatchAll(snapshot(map[string]string{"Server": "Apache/2.4.41"}, ""), rs)

	want := []model.Match{{
		Name:       "Apache",
		Category:   "web-servers",
		Version:    "2.4.41",
		Origin:     model.SignalHeader,
		Confidence: 100,
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestEmptyCaptureLeavesVersionUnset(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"Nginx": {"cats": ["web-servers"], "headers": {"Server": "nginx(?:/([\\d.]+))?\\;version:\\1"}}
	}}`)

	got := match.MatchAll(snapshot(map[string]string{"Server": "nginx"}, ""), rs)
	if len(got) != 1 || got[0].Version != "" {
		t.Errorf("Expected versionless nginx match, got %+v", got)
	}
}

func TestImpliesResolution(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"A": {"cats": ["x"], "html": "alpha", "implies": "B"},
		"B": {"cats": ["y"], "html": "never-present", "implies": ["A", "C"]},
		"C": {"cats": ["z"], "html": "never-present", "implies": "D\\;confidence:50"},
		"D": {"cats": ["w"], "html": "never-present", "implies": "Ghost"}
	}}`)

	got := match.MatchAll(snapshot(nil, "<p>alpha</p>"), rs)

	if names(got) != "A,B,C,D,Ghost" {
		t.Fatalf("Expected A,B,C,D,Ghost, got %s", names(got))
	}
	if got[0].Implied {
		t.Error("A was found directly")
	}
	for _, m := range got[1:] {
		if !m.Implied {
			t.Errorf("%s should be implied", m.Name)
		}
		if m.Origin != model.SignalHTML {
			t.Errorf("%s should inherit the html origin, got %s", m.Name, m.Origin)
		}
	}
	if b, _ := find(got, "B"); b.Category != "y" {
		t.Errorf("Implied category should come from B's clue, got %q", b.Category)
	}
	if ghost, _ := find(got, "Ghost"); ghost.Category != "" {
		t.Errorf("Unknown implied technology should have no category, got %q", ghost.Category)
	}
}

func TestImpliesCycleTerminates(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"A": {"cats": ["x"], "html": "alpha", "implies": "B"},
		"B": {"cats": ["x"], "html": "beta", "implies": "A"}
	}}`)

	for _, body := range []string{"alpha", "beta", "alpha beta"} {
		got := match.MatchAll(snapshot(nil, body), rs)
		if len(got) != 2 {
			t.Errorf("%q: expected A and B once each, got %s", body, names(got))
		}
	}

	got := match.MatchAll(snapshot(nil, "alpha beta"), rs)
	for _, m := range got {
		if m.Implied {
			t.Errorf("%s was found directly and must not be marked implied", m.Name)
		}
	}
}

func TestDedupPreference(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		page        string
		wantVersion string
		wantCat     string
		wantImplied bool
	}{
		{
			name: "Version-bearing wins over earlier versionless",
			doc: `{"apps": {
				"X": {"cats": ["first"], "html": "x-lib"},
				"X": {"cats": ["second"], "html": "x-lib ([\\d.]+)\\;version:\\1"}
			}}`,
			page:        "x-lib 2.1",
			wantVersion: "2.1",
			wantCat:     "second",
		},
		{
			name: "Earliest rule wins among versionless",
			doc: `{"apps": {
				"X": {"cats": ["first"], "html": "x-lib"},
				"X": {"cats": ["second"], "html": "x-lib"}
			}}`,
			page:    "x-lib",
			wantCat: "first",
		},
		{
			name: "Direct wins over implied",
			doc: `{"apps": {
				"Y": {"cats": ["cms"], "html": "y-cms", "implies": "X"},
				"X": {"cats": ["lang"], "html": "x-lang"}
			}}`,
			page:    "y-cms x-lang",
			wantCat: "lang",
		},
		{
			name: "Implied when not found directly",
			doc: `{"apps": {
				"Y": {"cats": ["cms"], "html": "y-cms", "implies": "X"},
				"X": {"cats": ["lang"], "html": "x-lang"}
			}}`,
			page:        "y-cms",
			wantCat:     "lang",
			wantImplied: true,
		},
		{
			name: "Version from a later pattern of the same clue",
			doc: `{"apps": {
				"X": {"cats": ["lib"], "headers": {"X-Lib": ""}, "html": "x-lib/([\\d.]+)\\;version:\\1"}
			}}`,
			page:        "x-lib/4.0",
			wantVersion: "4.0",
			wantCat:     "lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := mustLoad(t, tt.doc)
			got := match.MatchAll(snapshot(map[string]string{"X-Lib": "1"}, tt.page), rs)
			x, ok := find(got, "X")
			if !ok {
				t.Fatalf("Expected X in %s", names(got))
			}
			if strings.Count(names(got), "X") != 1 {
				t.Fatalf("Expected X once, got %s", names(got))
			}
			if x.Version != tt.wantVersion || x.Category != tt.wantCat || x.Implied != tt.wantImplied {
				t.Errorf("Expected version=%q category=%q implied=%v, got %+v", tt.wantVersion, tt.wantCat, tt.wantImplied, x)
			}
		})
	}
}

func TestExcludes(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"WordPress": {"cats": ["cms"], "html": "wp-content", "excludes": ["Drupal", "WordPress"]},
		"Drupal": {"cats": ["cms"], "html": "drupal", "excludes": "WordPress"},
		"PHP": {"cats": ["lang"], "html": "php"}
	}}`)

	got := match.MatchAll(snapshot(nil, "wp-content drupal php"), rs)
	if names(got) != "WordPress,PHP" {
		t.Errorf("Expected WordPress,PHP, got %s", names(got))
	}
}

func TestConfidenceAndPresence(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"Rails": {
			"cats": ["framework"],
			"cookies": {"_session_id": "\\;confidence:40"},
			"meta": {"csrf-param": "^authenticity_token$\\;confidence:40"}
		}
	}}`)

	snap := snapshot(nil, "")
	snap.Cookies["_session_id"] = "abc"
	got := match.MatchAll(snap, rs)
	if len(got) != 1 || got[0].Confidence != 40 || got[0].Origin != model.SignalCookie {
		t.Fatalf("Expected cookie presence match with confidence 40, got %+v", got)
	}

	snap.Meta["csrf-param"] = []string{"authenticity_token"}
	got = match.MatchAll(snap, rs)
	if len(got) != 1 || got[0].Confidence != 80 {
		t.Errorf("Expected confidence to add up to 80, got %+v", got)
	}
}

func TestPresencePatternMatchesEmptyValue(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"Drupal": {"cats": ["cms"], "headers": {"X-Drupal-Cache": ""}},
		"Fastly": {"cats": ["cdn"], "headers": {"X-Served-By": "cache-\\w+"}}
	}}`)

	snap := snapshot(map[string]string{"X-Drupal-Cache": "", "X-Served-By": ""}, "")
	got := match.MatchAll(snap, rs)
	if names(got) != "Drupal" {
		t.Errorf("Expected only the presence pattern to match, got %s", names(got))
	}

	if got := match.MatchAll(snapshot(nil, ""), rs); len(got) != 0 {
		t.Errorf("Expected no match without the headers, got %s", names(got))
	}
}

func TestDefaultRulesOnRealisticPage(t *testing.T) {
	rs, err := clues.Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	raw := &model.RawResponse{
		URL:    "https://blog.example.com/index.php?p=1",
		Status: 200,
		Header: http.Header{
			"Server":       {"Apache/2.4.41 (Ubuntu)"},
			"X-Powered-By": {"PHP/7.4.3"},
			"Content-Type": {"text/html; charset=UTF-8"},
			"Set-Cookie":   {"_ga=GA1.2.3; Path=/"},
		},
		Body: []byte(`<!DOCTYPE html><html><head>
<meta name="generator" content="WordPress 6.4.2">
<link rel='stylesheet' href='/wp-content/themes/x/style.css'>
<script src="/wp-includes/js/jquery/jquery-3.7.1.min.js"></script>
</head><body></body></html>`),
	}
	snap := extract.Extract(raw)

	first := match.MatchAll(snap, rs)
	second := match.MatchAll(snap, rs)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("MatchAll is not idempotent:\n%+v\n%+v", first, second)
	}
	if err := (model.Result{URL: raw.URL, Matches: first}).Validate(); err != nil {
		t.Errorf("Uniqueness violated: %v", err)
	}

	expect := map[string]string{
		"Apache":           "2.4.41",
		"PHP":              "7.4.3",
		"WordPress":        "6.4.2",
		"jQuery":           "3.7.1",
		"Ubuntu":           "",
		"MySQL":            "",
		"Google Analytics": "",
		"HTML5":            "",
	}
	for name, version := range expect {
		m, ok := find(first, name)
		if !ok {
			t.Errorf("Expected %s in %s", name, names(first))
			continue
		}
		if m.Version != version {
			t.Errorf("%s: expected version %q, got %q", name, version, m.Version)
		}
	}
	if mysql, _ := find(first, "MySQL"); !mysql.Implied {
		t.Error("MySQL should be implied by WordPress")
	}
	if php, _ := find(first, "PHP"); php.Implied {
		t.Error("PHP was found directly")
	}
}

func TestDegradedSnapshotMatchesBodyOnly(t *testing.T) {
	rs := mustLoad(t, `{"apps": {
		"Gen": {"cats": ["x"], "meta": {"generator": "Gen"}},
		"Body": {"cats": ["x"], "html": "needle"}
	}}`)
	raw := &model.RawResponse{
		URL:    "https://example.com/data.json",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"a": "<meta name=\"generator\" content=\"Gen\"> needle"}`),
	}

	got := match.MatchAll(extract.Extract(raw), rs)
	if names(got) != "Body" {
		t.Errorf("Expected only Body, got %s", names(got))
	}
}

func TestNilInputs(t *testing.T) {
	if got := match.MatchAll(nil, nil); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}
}
