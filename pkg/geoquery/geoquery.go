package geoquery

import (
	"encoding/json"
	"fmt"
)

// Known top-level keys. Everything else is lifted into Filters.
var knownKeys = map[string]bool{
	"variable":    true,
	"time":        true,
	"area":        true,
	"location":    true,
	"vertical":    true,
	"filters":     true,
	"format":      true,
	"format_args": true,
}

// Query is the parsed form of a client-submitted geospatial query.
type Query struct {
	Variable   []string               `json:"-"`
	Time       *TimeSelection         `json:"-"`
	Area       *Area                  `json:"-"`
	Location   *Location              `json:"-"`
	Vertical   *Vertical              `json:"-"`
	Filters    map[string]interface{} `json:"-"`
	Format     string                 `json:"-"`
	FormatArgs map[string]interface{} `json:"-"`
}

// TimeSelection is either a half-open range or a combination of calendar
// components. Exactly one of Range/Combo is non-nil after a successful parse.
type TimeSelection struct {
	Range *TimeRange
	Combo *TimeCombo
}

// TimeRange selects [Start, Stop) with an optional step.
type TimeRange struct {
	Start string `json:"start"`
	Stop  string `json:"stop"`
	Step  string `json:"step,omitempty"`
}

// TimeCombo selects the cross product of the listed calendar components.
type TimeCombo struct {
	Year  []int `json:"year,omitempty"`
	Month []int `json:"month,omitempty"`
	Day   []int `json:"day,omitempty"`
	Hour  []int `json:"hour,omitempty"`
}

// Area is a geographic bounding box.
type Area struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Location selects one or more point coordinates.
type Location struct {
	Latitude  []float64 `json:"latitude"`
	Longitude []float64 `json:"longitude"`
}

// Vertical selects levels either as explicit values or as a range.
// Exactly one of Values/Range is set after a successful parse.
type Vertical struct {
	Values []float64
	Range  *FloatRange
}

// FloatRange is a half-open numeric range [Start, Stop) with optional step.
type FloatRange struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step,omitempty"`
}

// Parse decodes a query document, lifting unknown top-level keys into
// Filters and validating selector exclusivity.
func Parse(data []byte) (*Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks structural constraints that the type system cannot express.
func (q *Query) Validate() error {
	if q.Area != nil && q.Location != nil {
		return fmt.Errorf("query selectors 'area' and 'location' are mutually exclusive")
	}
	if q.Time != nil && q.Time.Range != nil && q.Time.Combo != nil {
		return fmt.Errorf("time selector cannot be both a range and a component list")
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("query is not a JSON object: %w", err)
	}

	for key, val := range raw {
		var err error
		switch key {
		case "variable":
			q.Variable, err = parseStringList(val)
		case "time":
			q.Time = &TimeSelection{}
			err = json.Unmarshal(val, q.Time)
		case "area":
			q.Area = &Area{}
			err = json.Unmarshal(val, q.Area)
		case "location":
			q.Location = &Location{}
			err = json.Unmarshal(val, q.Location)
		case "vertical":
			q.Vertical = &Vertical{}
			err = json.Unmarshal(val, q.Vertical)
		case "format":
			err = json.Unmarshal(val, &q.Format)
		case "format_args":
			err = json.Unmarshal(val, &q.FormatArgs)
		case "filters":
			var extra map[string]interface{}
			if err = json.Unmarshal(val, &extra); err == nil {
				for k, v := range extra {
					q.setFilter(k, v)
				}
			}
		default:
			var v interface{}
			if err = json.Unmarshal(val, &v); err == nil {
				q.setFilter(key, v)
			}
		}
		if err != nil {
			return fmt.Errorf("invalid query key %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Unknown keys captured at parse time
// are emitted under "filters".
func (q Query) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 8)
	if len(q.Variable) == 1 {
		out["variable"] = q.Variable[0]
	} else if len(q.Variable) > 1 {
		out["variable"] = q.Variable
	}
	if q.Time != nil {
		out["time"] = q.Time
	}
	if q.Area != nil {
		out["area"] = q.Area
	}
	if q.Location != nil {
		out["location"] = q.Location
	}
	if q.Vertical != nil {
		out["vertical"] = q.Vertical
	}
	if len(q.Filters) > 0 {
		out["filters"] = q.Filters
	}
	if q.Format != "" {
		out["format"] = q.Format
	}
	if len(q.FormatArgs) > 0 {
		out["format_args"] = q.FormatArgs
	}
	return json.Marshal(out)
}

func (q *Query) setFilter(key string, val interface{}) {
	if q.Filters == nil {
		q.Filters = make(map[string]interface{})
	}
	q.Filters[key] = val
}

// UnmarshalJSON accepts either a {start, stop[, step]} range or a calendar
// component object.
func (t *TimeSelection) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["start"]; ok {
		t.Range = &TimeRange{}
		return json.Unmarshal(data, t.Range)
	}
	if _, ok := probe["stop"]; ok {
		return fmt.Errorf("time range requires 'start'")
	}
	t.Combo = &TimeCombo{}
	return json.Unmarshal(data, t.Combo)
}

// MarshalJSON implements json.Marshaler.
func (t TimeSelection) MarshalJSON() ([]byte, error) {
	if t.Range != nil {
		return json.Marshal(t.Range)
	}
	return json.Marshal(t.Combo)
}

// UnmarshalJSON accepts a scalar, a list of scalars, or a range object.
func (v *Vertical) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		v.Values = []float64{scalar}
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err == nil {
		v.Values = list
		return nil
	}
	v.Range = &FloatRange{}
	if err := json.Unmarshal(data, v.Range); err != nil {
		return fmt.Errorf("vertical must be a number, a list of numbers or a range")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Vertical) MarshalJSON() ([]byte, error) {
	if v.Range != nil {
		return json.Marshal(v.Range)
	}
	if len(v.Values) == 1 {
		return json.Marshal(v.Values[0])
	}
	return json.Marshal(v.Values)
}

// UnmarshalJSON accepts scalar or list coordinates.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if l.Latitude, err = parseFloatList(raw.Latitude); err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	if l.Longitude, err = parseFloatList(raw.Longitude); err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	return nil
}

func parseStringList(data []byte) ([]string, error) {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("expected string or list of strings")
	}
	return many, nil
}

func parseFloatList(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var one float64
	if err := json.Unmarshal(data, &one); err == nil {
		return []float64{one}, nil
	}
	var many []float64
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("expected number or list of numbers")
	}
	return many, nil
}
