package scoring

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/sepakat-app/sepakat/internal/rubric"
)

// Value is a raw score slot: either a number or free text. Text is carried
// through untouched for display; only values that parse to a finite number
// take part in aggregation.
type Value struct {
	raw json.RawMessage
}

func NumberValue(f float64) Value {
	b, _ := json.Marshal(f)
	return Value{raw: b}
}

func TextValue(s string) Value {
	b, _ := json.Marshal(s)
	return Value{raw: b}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], bytes.TrimSpace(data)...)
	return nil
}

// Float reports the numeric reading of the value. JSON numbers qualify
// directly; strings qualify when their leading field parses as a float.
func (v Value) Float() (float64, bool) {
	s := string(v.raw)
	if s == "" || s == "null" {
		return 0, false
	}
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal(v.raw, &unq); err != nil {
			return 0, false
		}
		s = unq
	}
	return parseFloatLoose(s)
}

// Text reports the display form of the value.
func (v Value) Text() string {
	s := string(v.raw)
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal(v.raw, &unq); err == nil {
			return unq
		}
	}
	if s == "null" {
		return ""
	}
	return s
}

func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, true
		}
	}
	return 0, false
}

// Entry binds a submitted value to a child component of the template.
type Entry struct {
	ComponentID string `json:"component_id"`
	Value       Value  `json:"value"`
}

func index(entries []Entry) map[string]Value {
	m := make(map[string]Value, len(entries))
	for _, e := range entries {
		if _, ok := m[e.ComponentID]; ok {
			continue // first entry per component wins
		}
		m[e.ComponentID] = e.Value
	}
	return m
}

// Aggregate computes the final score with two-level averaging: children
// average into their parent, parent averages average into the result. A
// non-numeric or missing child is omitted from both sum and count rather
// than zeroing anything, and a parent with no numeric children drops out of
// the outer average entirely. Sections with many children therefore cannot
// dominate sections with few, and partial submissions degrade gracefully.
func Aggregate(entries []Entry, tpl rubric.Template) float64 {
	byID := index(entries)

	totalParent := 0.0
	parentCount := 0
	for _, parent := range tpl.Components {
		sum, count := parentSum(byID, parent)
		if count > 0 {
			totalParent += sum / float64(count)
			parentCount++
		}
	}
	if parentCount == 0 {
		return 0
	}
	return totalParent / float64(parentCount)
}

// ParentAverages runs the inner loop of Aggregate and reports each parent's
// average individually, keyed by parent id. Parents with no numeric child
// report 0.
func ParentAverages(entries []Entry, tpl rubric.Template) map[string]float64 {
	byID := index(entries)

	out := make(map[string]float64, len(tpl.Components))
	for _, parent := range tpl.Components {
		sum, count := parentSum(byID, parent)
		if count > 0 {
			out[parent.ID] = sum / float64(count)
		} else {
			out[parent.ID] = 0
		}
	}
	return out
}

func parentSum(byID map[string]Value, parent rubric.ParentComponent) (sum float64, count int) {
	for _, child := range parent.Children {
		v, ok := byID[child.ID]
		if !ok {
			continue
		}
		f, ok := v.Float()
		if !ok {
			continue
		}
		sum += f
		count++
	}
	return sum, count
}
