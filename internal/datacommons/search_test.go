package datacommons

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearchFake() *fakeDC {
	f := newFakeDC()
	f.resolve["France"] = "country/FRA"
	f.resolve["Germany"] = "country/DEU"
	f.names["country/FRA"] = "France"
	f.names["country/DEU"] = "Germany"
	f.names["Count_Person_Female"] = "Female Population"
	f.types["country/FRA"] = []string{"Country"}
	f.types["country/DEU"] = []string{"Country"}
	f.candidates["population"] = []Candidate{
		{DCID: "Count_Person", Name: "Population", TypeOf: "StatisticalVariable"},
		{DCID: "dc/topic/Demographics", Name: "Demographics", TypeOf: "Topic"},
		{DCID: "Count_Person_Female", TypeOf: "StatisticalVariable"},
	}
	f.members["dc/topic/Demographics"] = []string{"Count_Person", "Median_Age_Person"}
	f.existence["Count_Person"] = []string{"country/FRA", "country/DEU"}
	f.existence["Count_Person_Female"] = []string{"country/DEU"}
	return f
}

func TestSearchIndicators_VariablesAndMappings(t *testing.T) {
	t.Parallel()

	f := newSearchFake()
	svc := NewService(f.start(t), nil)

	resp, err := svc.SearchIndicators(context.Background(), SearchRequest{
		Query:  "  population ",
		Places: []string{"France", "Germany"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Empty(t, resp.Topics, "topics dropped unless requested")
	require.Len(t, resp.Variables, 2)
	assert.Equal(t, SearchVariable{DCID: "Count_Person", PlacesWithData: []string{"country/FRA", "country/DEU"}}, resp.Variables[0])
	assert.Equal(t, SearchVariable{DCID: "Count_Person_Female", PlacesWithData: []string{"country/DEU"}}, resp.Variables[1])

	assert.Equal(t, "Population", resp.DCIDNameMappings["Count_Person"], "candidate names reused")
	assert.Equal(t, "Female Population", resp.DCIDNameMappings["Count_Person_Female"], "missing names looked up")
	assert.Equal(t, "France", resp.DCIDNameMappings["country/FRA"])
	assert.Equal(t, []string{"Country"}, resp.DCIDPlaceTypeMappings["country/DEU"])

	queries := f.searchQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"population"}, queries[0])
}

func TestSearchIndicators_IncludeTopics(t *testing.T) {
	t.Parallel()

	f := newSearchFake()
	svc := NewService(f.start(t), nil)

	resp, err := svc.SearchIndicators(context.Background(), SearchRequest{
		Query:         "population",
		IncludeTopics: true,
	})
	require.NoError(t, err)

	require.Len(t, resp.Topics, 1)
	assert.Equal(t, "dc/topic/Demographics", resp.Topics[0].DCID)
	assert.Equal(t, []string{"Count_Person", "Median_Age_Person"}, resp.Topics[0].MemberVariables)

	for _, v := range resp.Variables {
		assert.NotNil(t, v.PlacesWithData)
		assert.Empty(t, v.PlacesWithData, "no places requested")
	}
	assert.Empty(t, f.observationRequests(), "no existence query without places")
}

func TestSearchIndicators_UnresolvedPlacesAreDropped(t *testing.T) {
	t.Parallel()

	f := newSearchFake()
	svc := NewService(f.start(t), nil)

	resp, err := svc.SearchIndicators(context.Background(), SearchRequest{
		Query:  "population",
		Places: []string{"Atlantis", "France", "France"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"country/FRA"}, resp.Variables[0].PlacesWithData)
	_, ok := resp.DCIDPlaceTypeMappings["Atlantis"]
	assert.False(t, ok)

	reqs := f.observationRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"country/FRA"}, reqs[0].Entity.DCIDs, "resolved places are de-duplicated")
}

func TestSearchIndicators_MaybeBilateral(t *testing.T) {
	t.Parallel()

	f := newSearchFake()
	f.candidates["population Germany"] = []Candidate{{DCID: "Count_Person_Emigrants", TypeOf: "StatisticalVariable"}}
	svc := NewService(f.start(t), nil)

	resp, err := svc.SearchIndicators(context.Background(), SearchRequest{
		Query:          "population",
		Places:         []string{"France", "Germany"},
		MaybeBilateral: true,
	})
	require.NoError(t, err)

	queries := f.searchQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"population", "population France", "population Germany"}, queries[0])

	var dcids []string
	for _, v := range resp.Variables {
		dcids = append(dcids, v.DCID)
	}
	assert.Contains(t, dcids, "Count_Person_Emigrants")
}

func Test_SearchIndicators_InvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     SearchRequest
		wantMsg string
	}{
		{name: "empty query", req: SearchRequest{}, wantMsg: "query: is required"},
		{name: "blank query", req: SearchRequest{Query: "   "}, wantMsg: "query: is required"},
		{name: "blank place", req: SearchRequest{Query: "q", Places: []string{"France", " "}}, wantMsg: "places[1]: is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSearchFake()
			svc := NewService(f.start(t), nil)

			_, err := svc.SearchIndicators(context.Background(), tt.req)
			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Contains(t, reqErr.Msg, tt.wantMsg)
			assert.Zero(t, f.totalRequests(), "invalid requests never reach the API")
		})
	}
}

func TestSearchResponse_JSONShape(t *testing.T) {
	t.Parallel()

	resp := SearchResponse{
		Status:                StatusSuccess,
		Topics:                []SearchTopic{},
		Variables:             []SearchVariable{{DCID: "dc/v/Population_Count", PlacesWithData: []string{"country/FRA"}}},
		DCIDNameMappings:      map[string]string{"country/FRA": "France"},
		DCIDPlaceTypeMappings: map[string][]string{"country/FRA": {"Country"}},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"status": "SUCCESS",
		"topics": [],
		"variables": [{"dcid": "dc/v/Population_Count", "places_with_data": ["country/FRA"]}],
		"dcid_name_mappings": {"country/FRA": "France"},
		"dcid_place_type_mappings": {"country/FRA": ["Country"]}
	}`, string(data))
}
