// Package datacommons is a small client for the Data Commons REST v2 API and
// the natural-language indicator search endpoint, plus the two services the
// MCP tools are built on.
package datacommons

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.datacommons.org/v2"
	DefaultSearchURL = "https://datacommons.org/api/nl/search-indicators"

	defSearchIndex   = "base_uae_mem"
	defMaxCandidates = 10
	defTimeout       = 30 * time.Second
	// 600 requests per minute.
	defLimit = rate.Limit(10)
	defBurst = 10

	apiKeyHeader = "X-API-Key"
	maxErrBody   = 512
)

// Client talks to Data Commons. It is safe for concurrent use.
type Client struct {
	baseURL       string
	searchURL     string
	apiKey        string
	httpClient    *http.Client
	limiter       *rate.Limiter
	searchIndex   string
	maxCandidates int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter uses the initialised limiter instead of the built in one.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithSearchIndex selects the indicator search index.
func WithSearchIndex(index string) Option {
	return func(c *Client) {
		if index != "" {
			c.searchIndex = index
		}
	}
}

// WithMaxCandidates caps the number of search candidates per query.
func WithMaxCandidates(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxCandidates = n
		}
	}
}

// NewClient returns a client for the given endpoints. Empty URLs fall back
// to the public Data Commons endpoints.
func NewClient(baseURL, searchURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		searchURL:     searchURL,
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: defTimeout},
		limiter:       rate.NewLimiter(defLimit, defBurst),
		searchIndex:   defSearchIndex,
		maxCandidates: defMaxCandidates,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LimiterFor converts a per-minute budget into a limiter.
func LimiterFor(requestsPerMinute, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(defLimit, defBurst)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), burst)
}

// ---------------------------------------------------------------------------
// REST v2 wire types
// ---------------------------------------------------------------------------

type resolveResponse struct {
	Entities []struct {
		Node       string `json:"node"`
		Candidates []struct {
			DCID         string `json:"dcid"`
			DominantType string `json:"dominantType"`
		} `json:"candidates"`
	} `json:"entities"`
}

type arcNode struct {
	DCID  string `json:"dcid"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type nodeResponse struct {
	Data map[string]struct {
		Arcs map[string]struct {
			Nodes []arcNode `json:"nodes"`
		} `json:"arcs"`
	} `json:"data"`
}

type observationRequest struct {
	Select   []string       `json:"select"`
	Entity   entitySelector `json:"entity"`
	Variable struct {
		DCIDs []string `json:"dcids"`
	} `json:"variable"`
	Date string `json:"date,omitempty"`
}

type entitySelector struct {
	DCIDs      []string `json:"dcids,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

type observationResponse struct {
	ByVariable map[string]struct {
		ByEntity map[string]struct {
			OrderedFacets []orderedFacet `json:"orderedFacets"`
		} `json:"byEntity"`
	} `json:"byVariable"`
	Facets map[string]facetInfo `json:"facets"`
}

type orderedFacet struct {
	FacetID      string `json:"facetId"`
	Observations []struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	} `json:"observations"`
}

type facetInfo struct {
	ImportName        string `json:"importName"`
	MeasurementMethod string `json:"measurementMethod"`
	ObservationPeriod string `json:"observationPeriod"`
	ProvenanceURL     string `json:"provenanceUrl"`
	Unit              string `json:"unit"`
}

type searchResponse struct {
	QueryResults []struct {
		Query        string `json:"query"`
		IndexResults []struct {
			Index   string      `json:"index"`
			Results []Candidate `json:"results"`
		} `json:"indexResults"`
	} `json:"queryResults"`
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// Resolve maps free-text place names to their best DCID. Names that do not
// resolve are absent from the result.
func (c *Client) Resolve(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	q := url.Values{}
	for _, n := range names {
		q.Add("nodes", n)
	}
	q.Set("property", "<-description->dcid")

	var resp resolveResponse
	if err := c.get(ctx, c.baseURL+"/resolve", q, c.apiKey, &resp); err != nil {
		return nil, fmt.Errorf("resolve places: %w", err)
	}
	for _, e := range resp.Entities {
		if len(e.Candidates) > 0 && e.Candidates[0].DCID != "" {
			out[e.Node] = e.Candidates[0].DCID
		}
	}
	return out, nil
}

// Names returns the display name of each DCID that has one.
func (c *Client) Names(ctx context.Context, dcids []string) (map[string]string, error) {
	arcs, err := c.nodeProperty(ctx, dcids, "name")
	if err != nil {
		return nil, fmt.Errorf("fetch names: %w", err)
	}
	out := make(map[string]string, len(arcs))
	for dcid, nodes := range arcs {
		for _, n := range nodes {
			if n.Value != "" {
				out[dcid] = n.Value
				break
			}
		}
	}
	return out, nil
}

// PlaceTypes returns the typeOf values of each DCID.
func (c *Client) PlaceTypes(ctx context.Context, dcids []string) (map[string][]string, error) {
	arcs, err := c.nodeProperty(ctx, dcids, "typeOf")
	if err != nil {
		return nil, fmt.Errorf("fetch place types: %w", err)
	}
	return dcidArcs(arcs), nil
}

// RelevantVariables returns the member variables of each topic DCID.
func (c *Client) RelevantVariables(ctx context.Context, topics []string) (map[string][]string, error) {
	arcs, err := c.nodeProperty(ctx, topics, "relevantVariable")
	if err != nil {
		return nil, fmt.Errorf("fetch topic members: %w", err)
	}
	return dcidArcs(arcs), nil
}

func dcidArcs(arcs map[string][]arcNode) map[string][]string {
	out := make(map[string][]string, len(arcs))
	for dcid, nodes := range arcs {
		for _, n := range nodes {
			if n.DCID != "" {
				out[dcid] = append(out[dcid], n.DCID)
			}
		}
	}
	return out
}

func (c *Client) nodeProperty(ctx context.Context, dcids []string, property string) (map[string][]arcNode, error) {
	out := make(map[string][]arcNode, len(dcids))
	if len(dcids) == 0 {
		return out, nil
	}
	q := url.Values{}
	for _, d := range dcids {
		q.Add("nodes", d)
	}
	q.Set("property", "->"+property)

	var resp nodeResponse
	if err := c.get(ctx, c.baseURL+"/node", q, c.apiKey, &resp); err != nil {
		return nil, err
	}
	for dcid, d := range resp.Data {
		if arc, ok := d.Arcs[property]; ok {
			out[dcid] = arc.Nodes
		}
	}
	return out, nil
}

// ObservationQuery selects observations. Exactly one of Entities and
// EntityExpression should be set. Date is passed through verbatim: "LATEST",
// an explicit date, or "" for all dates. ExistenceOnly asks only which
// entity/variable pairs have data.
type ObservationQuery struct {
	Variables        []string
	Entities         []string
	EntityExpression string
	Date             string
	ExistenceOnly    bool
}

func (c *Client) observations(ctx context.Context, q ObservationQuery) (*observationResponse, error) {
	body := observationRequest{
		Select: []string{"entity", "variable", "date", "value"},
		Entity: entitySelector{DCIDs: q.Entities, Expression: q.EntityExpression},
		Date:   q.Date,
	}
	if q.ExistenceOnly {
		body.Select = []string{"entity", "variable"}
		body.Date = ""
	}
	body.Variable.DCIDs = q.Variables

	var resp observationResponse
	if err := c.post(ctx, c.baseURL+"/observation", body, &resp); err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	return &resp, nil
}

// PlacesWithData reports, per variable, which of the given places have at
// least one observation.
func (c *Client) PlacesWithData(ctx context.Context, variables, places []string) (map[string][]string, error) {
	out := make(map[string][]string, len(variables))
	if len(variables) == 0 || len(places) == 0 {
		return out, nil
	}
	resp, err := c.observations(ctx, ObservationQuery{
		Variables:     variables,
		Entities:      places,
		ExistenceOnly: true,
	})
	if err != nil {
		return nil, err
	}
	for v, byVar := range resp.ByVariable {
		for _, p := range places {
			if _, ok := byVar.ByEntity[p]; ok {
				out[v] = append(out[v], p)
			}
		}
	}
	return out, nil
}

// Candidate is one hit from the indicator search endpoint.
type Candidate struct {
	DCID   string  `json:"dcid"`
	Name   string  `json:"name"`
	TypeOf string  `json:"typeOf"`
	Score  float64 `json:"score"`
}

// IsTopic reports whether the candidate is a topic rather than a variable.
func (c Candidate) IsTopic() bool {
	return c.TypeOf == "Topic" || strings.HasPrefix(c.DCID, "dc/topic/")
}

// SearchCandidates runs the queries against the indicator search index and
// returns the hits in the order the service ranked them, without
// duplicates.
func (c *Client) SearchCandidates(ctx context.Context, queries []string) ([]Candidate, error) {
	if len(queries) == 0 {
		return []Candidate{}, nil
	}
	q := url.Values{}
	for _, s := range queries {
		q.Add("queries", s)
	}
	q.Set("index", c.searchIndex)
	q.Set("limit", strconv.Itoa(c.maxCandidates))

	var resp searchResponse
	if err := c.get(ctx, c.searchURL, q, c.apiKey, &resp); err != nil {
		return nil, fmt.Errorf("search indicators: %w", err)
	}

	seen := make(map[string]bool)
	out := []Candidate{}
	for _, qr := range resp.QueryResults {
		for _, ir := range qr.IndexResults {
			for _, cand := range ir.Results {
				if cand.DCID == "" || seen[cand.DCID] {
					continue
				}
				seen[cand.DCID] = true
				out = append(out, cand)
			}
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, apiKey string, out any) error {
	u := endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, apiKey, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, c.apiKey, out)
}

func (c *Client) do(req *http.Request, apiKey string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &APIError{
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
