package datacommons

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoObservations is returned when the query matched no data at all.
var ErrNoObservations = errors.New("no observations found")

// GetObservations fetches the series of one variable for a place, or for
// all children of a place of a given type. One source is selected for all
// places; the others are reported as alternatives.
func (s *Service) GetObservations(ctx context.Context, req ObservationRequest) (*ObservationResponse, error) {
	req = trimObservationRequest(req)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	dr, err := parseDateSelection(req)
	if err != nil {
		return nil, err
	}

	q := ObservationQuery{Variables: []string{req.VariableDCID}, Date: dr.apiDate}
	if req.ChildPlaceType != "" {
		q.EntityExpression = fmt.Sprintf("%s<-containedInPlace+{typeOf:%s}", req.PlaceDCID, req.ChildPlaceType)
	} else {
		q.Entities = []string{req.PlaceDCID}
	}

	raw, err := s.client.observations(ctx, q)
	if err != nil {
		return nil, err
	}

	byEntity := raw.ByVariable[req.VariableDCID].ByEntity
	entities := make([]string, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	slices.Sort(entities)

	// Facets in order of first appearance, with the number of places each
	// one covers.
	var order []string
	counts := make(map[string]int)
	for _, e := range entities {
		for _, f := range byEntity[e].OrderedFacets {
			if len(f.Observations) == 0 {
				continue
			}
			if counts[f.FacetID] == 0 {
				order = append(order, f.FacetID)
			}
			counts[f.FacetID]++
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoObservations, req.VariableDCID, describePlace(req))
	}

	primary := order[0]
	if req.SourceOverride != "" {
		if counts[req.SourceOverride] == 0 {
			return nil, &RequestError{Msg: fmt.Sprintf("source_override %q has no observations for this request", req.SourceOverride)}
		}
		primary = req.SourceOverride
	}

	var placeObs []PlaceObservation
	for _, e := range entities {
		series := seriesFor(byEntity[e].OrderedFacets, primary, dr)
		if len(series) == 0 {
			continue
		}
		placeObs = append(placeObs, PlaceObservation{Place: Node{DCID: e}, TimeSeries: series})
	}
	if len(placeObs) == 0 {
		return nil, fmt.Errorf("%w for %s in %s within the requested dates", ErrNoObservations, req.VariableDCID, describePlace(req))
	}

	ids := make([]string, 0, len(placeObs)+1)
	ids = append(ids, req.VariableDCID)
	for _, po := range placeObs {
		ids = append(ids, po.Place.DCID)
	}
	names, err := s.client.Names(ctx, ids)
	if err != nil {
		// Names are cosmetic; the data is still returned.
		s.log.WarnContext(ctx, "name lookup failed", "error", err)
		names = map[string]string{}
	}
	for i := range placeObs {
		placeObs[i].Place.Name = names[placeObs[i].Place.DCID]
	}

	resp := &ObservationResponse{
		Variable:           Node{DCID: req.VariableDCID, Name: names[req.VariableDCID]},
		PlaceObservations:  placeObs,
		SourceMetadata:     facetMetadata(primary, raw.Facets[primary]),
		AlternativeSources: []AlternativeSource{},
	}
	for _, id := range order {
		if id == primary {
			continue
		}
		resp.AlternativeSources = append(resp.AlternativeSources, AlternativeSource{
			FacetMetadata: facetMetadata(id, raw.Facets[id]),
			PlacesFound:   counts[id],
		})
	}

	s.log.DebugContext(ctx, "observations fetched",
		"variable", req.VariableDCID,
		"places", len(placeObs),
		"source", primary,
		"alternatives", len(resp.AlternativeSources))
	return resp, nil
}

func trimObservationRequest(r ObservationRequest) ObservationRequest {
	r.VariableDCID = strings.TrimSpace(r.VariableDCID)
	r.PlaceDCID = strings.TrimSpace(r.PlaceDCID)
	r.ChildPlaceType = strings.TrimSpace(r.ChildPlaceType)
	r.SourceOverride = strings.TrimSpace(r.SourceOverride)
	r.Date = strings.ToLower(strings.TrimSpace(r.Date))
	r.DateRangeStart = strings.TrimSpace(r.DateRangeStart)
	r.DateRangeEnd = strings.TrimSpace(r.DateRangeEnd)
	return r
}

func describePlace(r ObservationRequest) string {
	if r.ChildPlaceType != "" {
		return fmt.Sprintf("%s places within %s", r.ChildPlaceType, r.PlaceDCID)
	}
	return r.PlaceDCID
}

// dateSelection is the parsed date arguments of a request.
type dateSelection struct {
	apiDate    string
	start, end string
}

func (d dateSelection) contains(date string) bool {
	if d.start != "" && compareDates(date, d.start) < 0 {
		return false
	}
	if d.end != "" && compareDates(date, d.end) > 0 {
		return false
	}
	return true
}

// compareDates compares two dates of possibly different granularity on
// their common prefix, so "2020" is inside a range starting at "2020-06".
func compareDates(a, b string) int {
	n := min(len(a), len(b))
	return strings.Compare(a[:n], b[:n])
}

func parseDateSelection(r ObservationRequest) (dateSelection, error) {
	hasRange := r.DateRangeStart != "" || r.DateRangeEnd != ""
	date := r.Date
	if date == "" {
		date = DateLatest
		if hasRange {
			date = DateRange
		}
	}

	if date != DateRange {
		if hasRange {
			return dateSelection{}, &RequestError{Msg: "date_range_start and date_range_end are only used with date='range'"}
		}
		switch date {
		case DateLatest:
			return dateSelection{apiDate: "LATEST"}, nil
		case DateAll:
			return dateSelection{}, nil
		default:
			return dateSelection{apiDate: date}, nil
		}
	}

	if !hasRange {
		return dateSelection{}, &RequestError{Msg: "date='range' requires date_range_start or date_range_end"}
	}
	if r.DateRangeStart != "" && r.DateRangeEnd != "" && compareDates(r.DateRangeStart, r.DateRangeEnd) > 0 {
		return dateSelection{}, &RequestError{Msg: fmt.Sprintf("date_range_start %s is after date_range_end %s", r.DateRangeStart, r.DateRangeEnd)}
	}
	return dateSelection{start: r.DateRangeStart, end: r.DateRangeEnd}, nil
}

// seriesFor returns the date-sorted observations of one facet that fall in
// the selection.
func seriesFor(facets []orderedFacet, facetID string, dr dateSelection) []Point {
	for _, f := range facets {
		if f.FacetID != facetID {
			continue
		}
		out := make([]Point, 0, len(f.Observations))
		for _, o := range f.Observations {
			if dr.contains(o.Date) {
				out = append(out, Point{Date: o.Date, Value: o.Value})
			}
		}
		slices.SortFunc(out, func(a, b Point) int { return strings.Compare(a.Date, b.Date) })
		return out
	}
	return nil
}

func facetMetadata(id string, f facetInfo) FacetMetadata {
	return FacetMetadata{
		SourceID:          id,
		ImportName:        f.ImportName,
		MeasurementMethod: f.MeasurementMethod,
		ObservationPeriod: f.ObservationPeriod,
		ProvenanceURL:     f.ProvenanceURL,
		Unit:              f.Unit,
	}
}
