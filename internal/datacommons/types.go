package datacommons

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StatusSuccess is the status of a completed search.
const StatusSuccess = "SUCCESS"

// Date keywords accepted by GetObservations.
const (
	DateLatest = "latest"
	DateAll    = "all"
	DateRange  = "range"
)

// ---------------------------------------------------------------------------
// search_indicators
// ---------------------------------------------------------------------------

// SearchRequest is the input of SearchIndicators.
type SearchRequest struct {
	Query          string   `json:"query" validate:"required,max=500"`
	Places         []string `json:"places" validate:"max=50,dive,required"`
	IncludeTopics  bool     `json:"include_topics"`
	MaybeBilateral bool     `json:"maybe_bilateral"`
}

// SearchTopic is a topic hit with its member variables.
type SearchTopic struct {
	DCID            string   `json:"dcid"`
	MemberVariables []string `json:"member_variables"`
}

// SearchVariable is a variable hit with the requested places that have data.
type SearchVariable struct {
	DCID           string   `json:"dcid"`
	PlacesWithData []string `json:"places_with_data"`
}

// SearchResponse is the result of SearchIndicators.
type SearchResponse struct {
	Status                string              `json:"status"`
	Topics                []SearchTopic       `json:"topics"`
	Variables             []SearchVariable    `json:"variables"`
	DCIDNameMappings      map[string]string   `json:"dcid_name_mappings"`
	DCIDPlaceTypeMappings map[string][]string `json:"dcid_place_type_mappings"`
}

// ---------------------------------------------------------------------------
// get_observations
// ---------------------------------------------------------------------------

// ObservationRequest is the input of GetObservations.
type ObservationRequest struct {
	VariableDCID   string `json:"variable_dcid" validate:"required"`
	PlaceDCID      string `json:"place_dcid" validate:"required"`
	ChildPlaceType string `json:"child_place_type" validate:"omitempty,alphanum"`
	SourceOverride string `json:"source_override"`
	Date           string `json:"date" validate:"omitempty,obsdate"`
	DateRangeStart string `json:"date_range_start" validate:"omitempty,isodate"`
	DateRangeEnd   string `json:"date_range_end" validate:"omitempty,isodate"`
}

// Node is a DCID with its display name.
type Node struct {
	DCID string `json:"dcid"`
	Name string `json:"name,omitempty"`
}

// Point is one observation. It marshals as a [date, value] pair.
type Point struct {
	Date  string
	Value float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Date, p.Value})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("observation point must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &p.Date); err != nil {
		return fmt.Errorf("observation date: %w", err)
	}
	if err := json.Unmarshal(pair[1], &p.Value); err != nil {
		return fmt.Errorf("observation value: %w", err)
	}
	return nil
}

// PlaceObservation is the time series of one place.
type PlaceObservation struct {
	Place      Node    `json:"place"`
	TimeSeries []Point `json:"time_series"`
}

// FacetMetadata describes the source of a series.
type FacetMetadata struct {
	SourceID          string `json:"source_id"`
	ImportName        string `json:"import_name,omitempty"`
	MeasurementMethod string `json:"measurement_method,omitempty"`
	ObservationPeriod string `json:"observation_period,omitempty"`
	ProvenanceURL     string `json:"provenance_url,omitempty"`
	Unit              string `json:"unit,omitempty"`
}

// AlternativeSource is a source that was not selected, with the number of
// places it has data for.
type AlternativeSource struct {
	FacetMetadata
	PlacesFound int `json:"places_found"`
}

// ObservationResponse is the result of GetObservations.
type ObservationResponse struct {
	Variable           Node                `json:"variable"`
	PlaceObservations  []PlaceObservation  `json:"place_observations"`
	SourceMetadata     FacetMetadata       `json:"source_metadata"`
	AlternativeSources []AlternativeSource `json:"alternative_sources"`
}

// ---------------------------------------------------------------------------
// validation
// ---------------------------------------------------------------------------

var isoDate = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2])(-(0[1-9]|[12]\d|3[01]))?)?$`)

// IsDate reports whether s is YYYY, YYYY-MM or YYYY-MM-DD.
func IsDate(s string) bool { return isoDate.MatchString(s) }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonTagName)
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return IsDate(fl.Field().String())
	})
	_ = v.RegisterValidation("obsdate", func(fl validator.FieldLevel) bool {
		s := strings.ToLower(fl.Field().String())
		return s == DateLatest || s == DateAll || s == DateRange || IsDate(s)
	})
	return v
}

func jsonTagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// validateStruct runs the struct tags and renders failures as one
// "field: reason" list.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), describeTag(fe)))
	}
	return &RequestError{Msg: strings.Join(msgs, "; ")}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must have at most " + fe.Param() + " items or characters"
	case "alphanum":
		return "must be a place type such as County or State"
	case "isodate":
		return fmt.Sprintf("%q is not a date in YYYY, YYYY-MM or YYYY-MM-DD form", fe.Value())
	case "obsdate":
		return fmt.Sprintf("%q must be 'latest', 'all', 'range' or a date in YYYY, YYYY-MM or YYYY-MM-DD form", fe.Value())
	default:
		return "failed " + fe.Tag()
	}
}
