package detect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/extract"
	"github.com/Abhaythakor/fingerprintweb/metrics"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/util"
)

const testClues = `{"apps": {
	"Hop1": {"cats": ["marker"], "html": "hop1-marker"},
	"Hop2": {"cats": ["marker"], "html": "hop2-marker"},
	"Final": {"cats": ["marker"], "html": "final-marker"},
	"Apache": {"cats": ["web-servers"], "headers": {"Server": "Apache/([\\d.]+)\\;version:$1"}},
	"jQuery": {"cats": ["javascript-libraries"], "script": "jquery"}
}}`

func quietLogger() *util.Logger {
	return util.NewLogger(io.Discard, util.LevelDebug, "test", false)
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	rules, err := clues.Load(strings.NewReader(testClues), clues.FormatJSON)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return &Detector{
		Fetcher: NewHTTPFetcher(FetcherOptions{}),
		Engines: []Engine{NewClueEngine(rules)},
		Timeout: 2 * time.Second,
		Logger:  quietLogger(),
	}
}

func redirectServer() *httptest.Server {
	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, status int, location, body string) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Server", "Apache/2.4.41")
		if location != "" {
			w.Header().Set("Location", location)
		}
		w.WriteHeader(status)
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		page(w, http.StatusFound, "/hop2", "hop1-marker")
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		page(w, http.StatusMovedPermanently, "/final", "hop2-marker")
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		page(w, http.StatusOK, "", `final-marker <script src="/js/jquery.min.js"></script>`)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		page(w, http.StatusFound, "/loop", "hop1-marker")
	})
	return httptest.NewServer(mux)
}

func TestDetectOneRedirectPolicy(t *testing.T) {
	srv := redirectServer()
	defer srv.Close()

	tests := []struct {
		name      string
		limit     string
		exclude   string
		wantFinal string
		wantTech  string
		wantNot   []string
	}{
		{
			name:      "Follows the whole chain",
			wantFinal: "/final",
			wantTech:  "Final",
			wantNot:   []string{"Hop1", "Hop2"},
		},
		{
			name:      "Exclude on hop 2 keeps hop 1",
			exclude:   `/hop2$`,
			wantFinal: "/start",
			wantTech:  "Hop1",
			wantNot:   []string{"Hop2", "Final"},
		},
		{
			name:      "Limit rejects hop 3",
			limit:     `/hop\d`,
			wantFinal: "/hop2",
			wantTech:  "Hop2",
			wantNot:   []string{"Hop1", "Final"},
		},
		{
			name:      "Limit matching everything",
			limit:     `^http://127\.0\.0\.1`,
			wantFinal: "/final",
			wantTech:  "Final",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t)
			if tt.limit != "" {
				d.Limit = regexp.MustCompile(tt.limit)
			}
			if tt.exclude != "" {
				d.Exclude = regexp.MustCompile(tt.exclude)
			}

			res := d.DetectOne(context.Background(), srv.URL+"/start")

			if res.Failed() {
				t.Fatalf("Mask rejection must not be an error, got %q", res.Error)
			}
			if res.FinalURL != srv.URL+tt.wantFinal {
				t.Errorf("Expected final URL %s, got %s", srv.URL+tt.wantFinal, res.FinalURL)
			}
			if res.URL != srv.URL+"/start" {
				t.Errorf("Input URL must be kept, got %s", res.URL)
			}
			if !res.Has(tt.wantTech) {
				t.Errorf("Expected %s in %+v", tt.wantTech, res.Matches)
			}
			for _, name := range tt.wantNot {
				if res.Has(name) {
					t.Errorf("Did not expect %s in %+v", name, res.Matches)
				}
			}
			if err := res.Validate(); err != nil {
				t.Errorf("Invalid result: %v", err)
			}
		})
	}
}

func TestDetectOneStopsAtMaxRedirects(t *testing.T) {
	srv := redirectServer()
	defer srv.Close()

	d := newTestDetector(t)
	d.MaxRedirects = 3
	m := metrics.New()
	d.Metrics = m

	res := d.DetectOne(context.Background(), srv.URL+"/loop")
	if res.Failed() {
		t.Fatalf("Redirect loop must stop quietly, got %q", res.Error)
	}
	if res.Status != http.StatusFound || !res.Has("Hop1") {
		t.Errorf("Expected the last fetched redirect page, got %+v", res)
	}
}

func TestDetectOneVersionFromHeader(t *testing.T) {
	srv := redirectServer()
	defer srv.Close()

	res := newTestDetector(t).DetectOne(context.Background(), srv.URL+"/final")
	for _, m := range res.Matches {
		if m.Name == "Apache" {
			if m.Version != "2.4.41" || m.Origin != model.SignalHeader {
				t.Errorf("Expected Apache 2.4.41 from header, got %+v", m)
			}
			return
		}
	}
	t.Errorf("Apache not detected: %+v", res.Matches)
}

func TestDetectManyTimeoutIsolated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>final-marker</html>")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>hop1-marker</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDetector(t)
	d.Timeout = 200 * time.Millisecond

	batch := d.DetectMany(context.Background(), []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"})

	if len(batch) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(batch))
	}
	if batch[0].Failed() || !batch[0].Has("Final") {
		t.Errorf("URL A should succeed, got %+v", batch[0])
	}
	if !batch[1].Failed() || batch[1].ErrorType != ErrorTimeout {
		t.Errorf("URL B should time out, got %+v", batch[1])
	}
	if len(batch[1].Matches) != 0 {
		t.Errorf("A failed URL carries no matches, got %+v", batch[1].Matches)
	}
	if batch[2].Failed() || !batch[2].Has("Hop1") {
		t.Errorf("URL C should succeed, got %+v", batch[2])
	}
}

func TestDetectManyPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// later paths answer faster
		var n int
		fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/"), "%d", &n)
		time.Sleep(time.Duration(20-n) * 5 * time.Millisecond)
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%d", srv.URL, i)
	}

	d := newTestDetector(t)
	d.Concurrency = 5

	var mu sync.Mutex
	seen := make(map[int]bool)
	d.OnResult = func(i int, r model.Result) {
		mu.Lock()
		defer mu.Unlock()
		seen[i] = true
	}

	batch := d.DetectMany(context.Background(), urls)
	for i, r := range batch {
		if r.URL != urls[i] {
			t.Errorf("Result %d: expected %s, got %s", i, urls[i], r.URL)
		}
		if r.Failed() {
			t.Errorf("Result %d failed: %s", i, r.Error)
		}
	}
	if len(seen) != len(urls) {
		t.Errorf("OnResult called for %d of %d URLs", len(seen), len(urls))
	}
}

func TestDetectManyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDetector(t)
	batch := d.DetectMany(ctx, []string{"http://127.0.0.1:1/a", "http://127.0.0.1:1/b", "http://127.0.0.1:1/c"})
	for _, r := range batch {
		if r.ErrorType != ErrorCanceled {
			t.Errorf("Expected canceled result, got %+v", r)
		}
	}
}

func TestDetectOneFetchErrors(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	badCharset := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=x-klingon")
		fmt.Fprint(w, "<html>final-marker</html>")
	}))
	defer badCharset.Close()

	tests := []struct {
		name     string
		url      string
		wantType string
	}{
		{"Connection refused", closedURL + "/", ErrorNetwork},
		{"Undecodable body", badCharset.URL + "/", ErrorDecode},
		{"Unsupported scheme", "ftp://example.com/", ErrorInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestDetector(t).DetectOne(context.Background(), tt.url)
			if !res.Failed() {
				t.Fatalf("Expected a fetch error, got %+v", res)
			}
			if res.ErrorType != tt.wantType {
				t.Errorf("Expected error type %s, got %s (%s)", tt.wantType, res.ErrorType, res.Error)
			}
		})
	}
}

func TestDetectOneOffline(t *testing.T) {
	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i+1 < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}
	fetcher := NewOfflineFetcher([]*model.RawResponse{
		{URL: "https://example.com/", Status: 301, Header: header("Location", "/login"), Body: []byte("hop1-marker")},
		{URL: "https://example.com/login", Status: 200, Header: header("Content-Type", "text/html"), Body: []byte("<html>final-marker</html>")},
	})

	d := newTestDetector(t)
	d.Fetcher = fetcher

	res := d.DetectOne(context.Background(), "https://example.com/")
	if res.FinalURL != "https://example.com/login" || !res.Has("Final") {
		t.Errorf("Expected offline redirect to be followed, got %+v", res)
	}

	d.Exclude = regexp.MustCompile(`/login`)
	res = d.DetectOne(context.Background(), "https://example.com/")
	if res.FinalURL != "https://example.com/" || !res.Has("Hop1") {
		t.Errorf("Expected excluded redirect to keep the first page, got %+v", res)
	}

	res = d.DetectOne(context.Background(), "https://missing.example.com/")
	if !res.Failed() || res.ErrorType != ErrorNetwork {
		t.Errorf("Expected missing stored response to fail, got %+v", res)
	}
}

type staticEngine []model.Match

func (staticEngine) Name() string                             { return "static" }
func (e staticEngine) Detect(*extract.Snapshot) []model.Match { return e }

func TestLaterEnginesNeverOverride(t *testing.T) {
	srv := redirectServer()
	defer srv.Close()

	d := newTestDetector(t)
	d.Engines = append(d.Engines, staticEngine{
		{Name: "Apache", Version: "9.9", Origin: model.SignalHTML},
		{Name: "Extra", Origin: model.SignalHTML},
	})

	res := d.DetectOne(context.Background(), srv.URL+"/final")
	if !res.Has("Extra") {
		t.Errorf("Expected Extra from the second engine, got %+v", res.Matches)
	}
	for _, m := range res.Matches {
		if m.Name == "Apache" && m.Version != "2.4.41" {
			t.Errorf("Second engine overrode Apache: %+v", m)
		}
	}
	if err := res.Validate(); err != nil {
		t.Errorf("Invalid result: %v", err)
	}
}
