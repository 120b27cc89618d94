package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Template references an uploaded base image and the layout that positions
// record fields on it. Immutable once uploaded.
type Template struct {
	TemplateID string    `json:"template_id"`
	Filename   string    `json:"filename"`
	Layout     Layout    `json:"layout"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Point is a pixel position on the template canvas.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry is the tagged variant for a layout position: either a single point
// or a separate label/value pair.
type Geometry struct {
	Point      *Point
	LabelValue *LabelValuePair
}

type LabelValuePair struct {
	Label Point `json:"label"`
	Value Point `json:"value"`
}

// Layout maps logical field names (layout keys ending in "_position", suffix
// stripped) to their geometry, plus the scalar drawing knobs.
type Layout struct {
	Fields        map[string]Geometry
	QRSize        int
	FontSize      int
	FontSizeSmall int
}

// DefaultLayout mirrors the layout merged under every uploaded template so a
// bare upload still renders the standard fields.
func DefaultLayout() Layout {
	return Layout{
		Fields: map[string]Geometry{
			"qr":      {Point: &Point{X: 1000, Y: 800}},
			"name":    {Point: &Point{X: 100, Y: 200}},
			"cert_no": {Point: &Point{X: 100, Y: 260}},
			"date":    {Point: &Point{X: 100, Y: 320}},
		},
		QRSize:        150,
		FontSize:      36,
		FontSizeSmall: 24,
	}
}

// ParseLayout decodes the uploader-supplied JSON layout and merges it over the
// defaults. Keys ending in "_position" become layout fields; a two-element
// array is a point, an object with "label" and "value" arrays is a pair.
// Unrecognized keys are ignored so layout files can carry annotations.
func ParseLayout(raw []byte) (Layout, error) {
	layout := DefaultLayout()
	if len(raw) == 0 {
		return layout, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}

	for key, val := range doc {
		switch key {
		case "qr_size":
			_ = json.Unmarshal(val, &layout.QRSize)
		case "font_size":
			_ = json.Unmarshal(val, &layout.FontSize)
		case "font_size_small":
			_ = json.Unmarshal(val, &layout.FontSizeSmall)
		default:
			name, ok := stripPositionSuffix(key)
			if !ok {
				continue
			}
			geom, err := parseGeometry(val)
			if err != nil {
				return Layout{}, fmt.Errorf("layout key %q: %w", key, err)
			}
			layout.Fields[name] = geom
		}
	}
	return layout, nil
}

func stripPositionSuffix(key string) (string, bool) {
	const suffix = "_position"
	if len(key) <= len(suffix) || key[len(key)-len(suffix):] != suffix {
		return "", false
	}
	return key[:len(key)-len(suffix)], true
}

func parseGeometry(raw json.RawMessage) (Geometry, error) {
	var coords []int
	if err := json.Unmarshal(raw, &coords); err == nil {
		if len(coords) < 2 {
			return Geometry{}, fmt.Errorf("position needs two coordinates")
		}
		return Geometry{Point: &Point{X: coords[0], Y: coords[1]}}, nil
	}

	var pair struct {
		Label []int `json:"label"`
		Value []int `json:"value"`
	}
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Geometry{}, fmt.Errorf("position is neither point nor label/value pair")
	}
	if len(pair.Label) < 2 || len(pair.Value) < 2 {
		return Geometry{}, fmt.Errorf("label/value pair needs two coordinates each")
	}
	return Geometry{LabelValue: &LabelValuePair{
		Label: Point{X: pair.Label[0], Y: pair.Label[1]},
		Value: Point{X: pair.Value[0], Y: pair.Value[1]},
	}}, nil
}

// MarshalJSON flattens the geometry back into the wire shape used on upload.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.LabelValue != nil {
		return json.Marshal(map[string][]int{
			"label": {g.LabelValue.Label.X, g.LabelValue.Label.Y},
			"value": {g.LabelValue.Value.X, g.LabelValue.Value.Y},
		})
	}
	if g.Point != nil {
		return json.Marshal([]int{g.Point.X, g.Point.Y})
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts the same wire shape, so layouts survive a round trip
// through the record store.
func (g *Geometry) UnmarshalJSON(raw []byte) error {
	parsed, err := parseGeometry(raw)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// MarshalJSON keeps stored layouts in the uploader-facing wire format.
func (l Layout) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		"qr_size":         l.QRSize,
		"font_size":       l.FontSize,
		"font_size_small": l.FontSizeSmall,
	}
	for name, geom := range l.Fields {
		doc[name+"_position"] = geom
	}
	return json.Marshal(doc)
}

func (l *Layout) UnmarshalJSON(raw []byte) error {
	parsed, err := ParseLayout(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
