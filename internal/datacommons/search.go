package datacommons

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Service implements the search_indicators and get_observations tools on
// top of a Client.
type Service struct {
	client *Client
	log    *slog.Logger
}

// NewService returns a Service backed by c. A nil logger discards output.
func NewService(c *Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{client: c, log: log}
}

// SearchIndicators finds variables (and optionally topics) matching the
// query and reports which of the requested places have data for them.
func (s *Service) SearchIndicators(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.Places = trimAll(req.Places)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	placeDCIDs, err := s.resolvePlaces(ctx, req.Places)
	if err != nil {
		return nil, err
	}

	queries := []string{req.Query}
	if req.MaybeBilateral {
		for _, name := range req.Places {
			queries = append(queries, req.Query+" "+name)
		}
	}
	candidates, err := s.client.SearchCandidates(ctx, queries)
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{
		Status:                StatusSuccess,
		Topics:                []SearchTopic{},
		Variables:             []SearchVariable{},
		DCIDNameMappings:      make(map[string]string),
		DCIDPlaceTypeMappings: make(map[string][]string),
	}

	var topicDCIDs, varDCIDs []string
	for _, c := range candidates {
		if c.Name != "" {
			resp.DCIDNameMappings[c.DCID] = c.Name
		}
		if c.IsTopic() {
			if req.IncludeTopics {
				topicDCIDs = append(topicDCIDs, c.DCID)
			}
			continue
		}
		varDCIDs = append(varDCIDs, c.DCID)
	}

	var (
		members    map[string][]string
		withData   map[string][]string
		names      map[string]string
		placeTypes map[string][]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		members, err = s.client.RelevantVariables(gctx, topicDCIDs)
		return err
	})
	g.Go(func() (err error) {
		withData, err = s.client.PlacesWithData(gctx, varDCIDs, placeDCIDs)
		return err
	})
	g.Go(func() (err error) {
		names, err = s.client.Names(gctx, missingNames(resp.DCIDNameMappings, topicDCIDs, varDCIDs, placeDCIDs))
		return err
	})
	g.Go(func() (err error) {
		placeTypes, err = s.client.PlaceTypes(gctx, placeDCIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range topicDCIDs {
		resp.Topics = append(resp.Topics, SearchTopic{DCID: t, MemberVariables: nonNil(members[t])})
	}
	for _, v := range varDCIDs {
		resp.Variables = append(resp.Variables, SearchVariable{DCID: v, PlacesWithData: nonNil(withData[v])})
	}
	for dcid, name := range names {
		resp.DCIDNameMappings[dcid] = name
	}
	for dcid, types := range placeTypes {
		resp.DCIDPlaceTypeMappings[dcid] = types
	}

	s.log.DebugContext(ctx, "search complete",
		"query", req.Query,
		"topics", len(resp.Topics),
		"variables", len(resp.Variables),
		"places", len(placeDCIDs))
	return resp, nil
}

// resolvePlaces maps names to DCIDs in request order. Names that do not
// resolve are dropped.
func (s *Service) resolvePlaces(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	resolved, err := s.client.Resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(resolved))
	out := make([]string, 0, len(resolved))
	for _, n := range names {
		dcid, ok := resolved[n]
		if !ok {
			s.log.DebugContext(ctx, "place did not resolve", "place", n)
			continue
		}
		if !seen[dcid] {
			seen[dcid] = true
			out = append(out, dcid)
		}
	}
	return out, nil
}

// missingNames returns the DCIDs from groups that have no name yet.
func missingNames(known map[string]string, groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, d := range g {
			if _, ok := known[d]; ok || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
