package scoring_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/sepakat-app/sepakat/internal/rubric"
	"github.com/sepakat-app/sepakat/internal/scoring"
)

func twoParentTemplate() rubric.Template {
	return rubric.Template{
		ID:   "tpl-1",
		Name: "Penilaian Kinerja",
		Components: []rubric.ParentComponent{
			{ID: "pA", Name: "Kompetensi Teknis", Children: []rubric.ChildComponent{
				{ID: "c1", Name: "Kualitas Kerja", Type: rubric.TypeRating},
				{ID: "c2", Name: "Ketepatan Waktu", Type: rubric.TypeRating},
			}},
			{ID: "pB", Name: "Kepemimpinan", Children: []rubric.ChildComponent{
				{ID: "c3", Name: "Inisiatif", Type: rubric.TypeRange},
			}},
		},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregateTwoLevelAverage(t *testing.T) {
	tpl := twoParentTemplate()
	entries := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c2", Value: scoring.NumberValue(90)},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
	// parent A avg 85, parent B avg 70, overall 77.5
	if got := scoring.Aggregate(entries, tpl); !approx(got, 77.5) {
		t.Fatalf("Aggregate = %v, want 77.5", got)
	}
}

func TestAggregatePartialSubmission(t *testing.T) {
	tpl := twoParentTemplate()
	entries := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
	// c2 missing: parent A averages over c1 only
	if got := scoring.Aggregate(entries, tpl); !approx(got, 75) {
		t.Fatalf("Aggregate = %v, want 75", got)
	}
}

func TestAggregateOrderInvariance(t *testing.T) {
	tpl := twoParentTemplate()
	fwd := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c2", Value: scoring.NumberValue(90)},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
	rev := []scoring.Entry{fwd[2], fwd[1], fwd[0]}
	if a, b := scoring.Aggregate(fwd, tpl), scoring.Aggregate(rev, tpl); !approx(a, b) {
		t.Fatalf("entry order changed the result: %v vs %v", a, b)
	}

	flipped := tpl
	flipped.Components = []rubric.ParentComponent{tpl.Components[1], tpl.Components[0]}
	if a, b := scoring.Aggregate(fwd, tpl), scoring.Aggregate(fwd, flipped); !approx(a, b) {
		t.Fatalf("component order changed the result: %v vs %v", a, b)
	}
}

func TestAggregateNonNumericOmittedNotZeroed(t *testing.T) {
	tpl := twoParentTemplate()
	withText := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c2", Value: scoring.TextValue("baik sekali")},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
	without := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
	a, b := scoring.Aggregate(withText, tpl), scoring.Aggregate(without, tpl)
	if !approx(a, b) {
		t.Fatalf("text value changed the result: %v vs %v", a, b)
	}
	if !approx(a, 75) {
		t.Fatalf("Aggregate = %v, want 75 (text omitted, not zeroed)", a)
	}
}

func TestAggregateEmpty(t *testing.T) {
	tpl := twoParentTemplate()
	if got := scoring.Aggregate(nil, tpl); got != 0 {
		t.Fatalf("Aggregate(nil) = %v, want 0", got)
	}
	onlyText := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.TextValue("catatan")},
	}
	if got := scoring.Aggregate(onlyText, tpl); got != 0 {
		t.Fatalf("Aggregate(text only) = %v, want 0", got)
	}
}

func TestAggregateNumericStrings(t *testing.T) {
	tpl := twoParentTemplate()
	entries := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.TextValue("80")},
		{ComponentID: "c2", Value: scoring.TextValue("90")},
		{ComponentID: "c3", Value: scoring.TextValue("70")},
	}
	// form payloads submit numbers as strings; they still score
	if got := scoring.Aggregate(entries, tpl); !approx(got, 77.5) {
		t.Fatalf("Aggregate = %v, want 77.5", got)
	}
}

func TestParentAverages(t *testing.T) {
	tpl := twoParentTemplate()
	entries := []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c2", Value: scoring.NumberValue(90)},
	}
	avgs := scoring.ParentAverages(entries, tpl)
	if !approx(avgs["pA"], 85) {
		t.Fatalf("parent A avg = %v, want 85", avgs["pA"])
	}
	if !approx(avgs["pB"], 0) {
		t.Fatalf("parent B avg = %v, want 0 (nothing scored)", avgs["pB"])
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	var e scoring.Entry
	if err := json.Unmarshal([]byte(`{"component_id":"c1","value":87.5}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f, ok := e.Value.Float()
	if !ok || !approx(f, 87.5) {
		t.Fatalf("Float() = %v,%v, want 87.5,true", f, ok)
	}

	if err := json.Unmarshal([]byte(`{"component_id":"c2","value":"perlu bimbingan"}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := e.Value.Float(); ok {
		t.Fatalf("free text must not read as a number")
	}
	if e.Value.Text() != "perlu bimbingan" {
		t.Fatalf("Text() = %q", e.Value.Text())
	}
}
