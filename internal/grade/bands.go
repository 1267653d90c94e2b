package grade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Band operators. Bounds default to inclusive when the payload omits them.
const (
	OpGTE = ">="
	OpGT  = ">"
	OpLTE = "<="
	OpLT  = "<"
)

// Band is a validated, normalized grade band. A matrix of bands maps a
// numeric final score to a qualitative label and recommendation.
type Band struct {
	Min            float64 `json:"min"`
	MinOperator    string  `json:"min_operator"`
	Max            float64 `json:"max"`
	MaxOperator    string  `json:"max_operator"`
	Label          string  `json:"label"`
	Recommendation string  `json:"recommendation"`
}

// Matrix is a named, immutable set of bands attached to assessments at
// grading time.
type Matrix struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Grades   []Band `json:"grades"`
	IsActive bool   `json:"is_active"`
}

// Bound decodes a band bound from either a JSON number or a numeric string
// (form-originated payloads send strings).
type Bound struct {
	raw string
}

func (b *Bound) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if strings.HasPrefix(s, `"`) {
		var unq string
		if err := json.Unmarshal(data, &unq); err != nil {
			return err
		}
		s = unq
	}
	b.raw = strings.TrimSpace(s)
	return nil
}

func (b Bound) float() (float64, bool) {
	if b.raw == "" || b.raw == "null" {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// RawBand is an unvalidated band as submitted by an administrator.
type RawBand struct {
	Min            Bound  `json:"min"`
	MinOperator    string `json:"min_operator,omitempty"`
	Max            Bound  `json:"max"`
	MaxOperator    string `json:"max_operator,omitempty"`
	Label          string `json:"label"`
	Recommendation string `json:"recommendation"`
}

// ValidationError reports the first invalid band found. Index is 1-based and
// refers to the position after sorting for gap/overlap violations.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("grade band %d: %s", e.Index, e.Reason)
	}
	return "grade bands: " + e.Reason
}

// NormalizeAndValidate coerces bounds to numbers, defaults operators, sorts
// ascending by min and enforces the contiguity invariant: every band must
// start exactly where the previous one ends (no gap, no overlap). The first
// violation found is returned; later ones are not collected.
func NormalizeAndValidate(raw []RawBand) ([]Band, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Reason: "at least one band is required"}
	}

	bands := make([]Band, 0, len(raw))
	for i, rb := range raw {
		min, ok := rb.Min.float()
		if !ok {
			return nil, &ValidationError{Index: i + 1, Reason: "min bound is not a finite number"}
		}
		max, ok := rb.Max.float()
		if !ok {
			return nil, &ValidationError{Index: i + 1, Reason: "max bound is not a finite number"}
		}
		if min > max {
			return nil, &ValidationError{Index: i + 1, Reason: fmt.Sprintf("min %v greater than max %v", min, max)}
		}
		minOp := rb.MinOperator
		if minOp == "" {
			minOp = OpGTE
		}
		maxOp := rb.MaxOperator
		if maxOp == "" {
			maxOp = OpLTE
		}
		if minOp != OpGTE && minOp != OpGT {
			return nil, &ValidationError{Index: i + 1, Reason: "invalid min operator " + minOp}
		}
		if maxOp != OpLTE && maxOp != OpLT {
			return nil, &ValidationError{Index: i + 1, Reason: "invalid max operator " + maxOp}
		}
		bands = append(bands, Band{
			Min:            min,
			MinOperator:    minOp,
			Max:            max,
			MaxOperator:    maxOp,
			Label:          rb.Label,
			Recommendation: rb.Recommendation,
		})
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })

	for i := 1; i < len(bands); i++ {
		prev, curr := bands[i-1], bands[i]
		if curr.Min > prev.Max {
			return nil, &ValidationError{Index: i + 1, Reason: fmt.Sprintf("gap between %v and %v", prev.Max, curr.Min)}
		}
		if curr.Min < prev.Max {
			return nil, &ValidationError{Index: i + 1, Reason: fmt.Sprintf("overlap around %v: band min must equal the previous max", curr.Min)}
		}
	}
	return bands, nil
}

// Resolve maps a score to its band, or nil when the score falls outside the
// covered range. Bands are scanned descending by min and the first match
// wins; on validated data at most one band can match, and if overlapping
// bands slipped past validation the higher band is deliberately favored.
func Resolve(score float64, bands []Band) *Band {
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })

	for i := range sorted {
		b := sorted[i]
		minOK := score >= b.Min
		if b.MinOperator == OpGT {
			minOK = score > b.Min
		}
		maxOK := score <= b.Max
		if b.MaxOperator == OpLT {
			maxOK = score < b.Max
		}
		if minOK && maxOK {
			return &b
		}
	}
	return nil
}
