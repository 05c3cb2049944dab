package datacommons

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

const testKey = "test-key"

// fakeDC is an in-memory stand-in for the Data Commons API and the
// indicator search endpoint.
type fakeDC struct {
	resolve    map[string]string
	names      map[string]string
	types      map[string][]string
	members    map[string][]string
	candidates map[string][]Candidate
	existence  map[string][]string
	// observations is returned verbatim for value queries.
	observations string

	mu          sync.Mutex
	paths       []string
	keys        []string
	obsRequests []observationRequest
	searchQuery [][]string
}

func newFakeDC() *fakeDC {
	return &fakeDC{
		resolve:    map[string]string{},
		names:      map[string]string{},
		types:      map[string][]string{},
		members:    map[string][]string{},
		candidates: map[string][]Candidate{},
		existence:  map[string][]string{},
	}
}

// start serves f and returns a client pointed at it.
func (f *fakeDC) start(t *testing.T, opts ...Option) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/resolve", f.handleResolve)
	mux.HandleFunc("/v2/node", f.handleNode)
	mux.HandleFunc("/v2/observation", f.handleObservation)
	mux.HandleFunc("/search", f.handleSearch)

	srv := httptest.NewServer(f.record(mux))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLimiter(rate.NewLimiter(rate.Inf, 1))}, opts...)
	return NewClient(srv.URL+"/v2", srv.URL+"/search", testKey, opts...)
}

func (f *fakeDC) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.keys = append(f.keys, r.Header.Get(apiKeyHeader))
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakeDC) requestCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.paths {
		if p == path {
			n++
		}
	}
	return n
}

func (f *fakeDC) sentKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeDC) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func (f *fakeDC) observationRequests() []observationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]observationRequest(nil), f.obsRequests...)
}

func (f *fakeDC) searchQueries() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.searchQuery...)
}

func (f *fakeDC) handleResolve(w http.ResponseWriter, r *http.Request) {
	type cand struct {
		DCID string `json:"dcid"`
	}
	type entity struct {
		Node       string `json:"node"`
		Candidates []cand `json:"candidates"`
	}
	var out struct {
		Entities []entity `json:"entities"`
	}
	for _, n := range r.URL.Query()["nodes"] {
		e := entity{Node: n, Candidates: []cand{}}
		if d, ok := f.resolve[n]; ok {
			e.Candidates = append(e.Candidates, cand{DCID: d})
		}
		out.Entities = append(out.Entities, e)
	}
	writeJSON(w, out)
}

func (f *fakeDC) handleNode(w http.ResponseWriter, r *http.Request) {
	prop := strings.TrimPrefix(r.URL.Query().Get("property"), "->")
	data := map[string]any{}
	for _, n := range r.URL.Query()["nodes"] {
		var nodes []map[string]string
		switch prop {
		case "name":
			if v, ok := f.names[n]; ok {
				nodes = append(nodes, map[string]string{"value": v})
			}
		case "typeOf":
			for _, t := range f.types[n] {
				nodes = append(nodes, map[string]string{"dcid": t, "name": t})
			}
		case "relevantVariable":
			for _, m := range f.members[n] {
				nodes = append(nodes, map[string]string{"dcid": m})
			}
		}
		if nodes == nil {
			data[n] = map[string]any{}
			continue
		}
		data[n] = map[string]any{"arcs": map[string]any{prop: map[string]any{"nodes": nodes}}}
	}
	writeJSON(w, map[string]any{"data": data})
}

func (f *fakeDC) handleObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req observationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.obsRequests = append(f.obsRequests, req)
	f.mu.Unlock()

	if len(req.Select) == 2 {
		byVar := map[string]any{}
		for _, v := range req.Variable.DCIDs {
			byEntity := map[string]any{}
			for _, p := range f.existence[v] {
				for _, want := range req.Entity.DCIDs {
					if p == want {
						byEntity[p] = map[string]any{}
					}
				}
			}
			byVar[v] = map[string]any{"byEntity": byEntity}
		}
		writeJSON(w, map[string]any{"byVariable": byVar})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	body := f.observations
	if body == "" {
		body = `{"byVariable":{}}`
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeDC) handleSearch(w http.ResponseWriter, r *http.Request) {
	queries := r.URL.Query()["queries"]
	f.mu.Lock()
	f.searchQuery = append(f.searchQuery, queries)
	f.mu.Unlock()

	type indexResult struct {
		Index   string      `json:"index"`
		Results []Candidate `json:"results"`
	}
	type queryResult struct {
		Query        string        `json:"query"`
		IndexResults []indexResult `json:"indexResults"`
	}
	var out struct {
		QueryResults []queryResult `json:"queryResults"`
	}
	for _, q := range queries {
		out.QueryResults = append(out.QueryResults, queryResult{
			Query: q,
			IndexResults: []indexResult{{
				Index:   r.URL.Query().Get("index"),
				Results: f.candidates[q],
			}},
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
