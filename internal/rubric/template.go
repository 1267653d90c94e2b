package rubric

import "fmt"

// Component value types. Only numeric values ever participate in scoring;
// the declared type is advisory for form rendering and constraint checks.
const (
	TypeText   = "text"
	TypeRating = "rating"
	TypeRange  = "range"
)

type Constraints struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

type ChildComponent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Constraints Constraints `json:"constraints,omitempty"`
}

type ParentComponent struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Children []ChildComponent `json:"children"`
}

type Template struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Components []ParentComponent `json:"components"`
	IsActive   bool              `json:"is_active"`
}

// ShapeError reports a structurally invalid template.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string { return "template shape: " + e.Reason }

// ValidateShape checks the template once, at create/update time. Aggregation
// keys on child ids, so duplicates anywhere in the template are rejected.
func ValidateShape(t Template) error {
	if len(t.Components) == 0 {
		return &ShapeError{Reason: "template has no components"}
	}
	seen := make(map[string]string) // child id -> parent name
	for _, parent := range t.Components {
		for _, child := range parent.Children {
			if child.ID == "" {
				return &ShapeError{Reason: fmt.Sprintf("component %q has a child with no id", parent.Name)}
			}
			if prev, dup := seen[child.ID]; dup {
				return &ShapeError{Reason: fmt.Sprintf("child id %q appears under both %q and %q", child.ID, prev, parent.Name)}
			}
			seen[child.ID] = parent.Name

			switch child.Type {
			case TypeRating, TypeRange:
				c := child.Constraints
				if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
					return &ShapeError{Reason: fmt.Sprintf("child %q: constraint min %v greater than max %v", child.ID, *c.Min, *c.Max)}
				}
			}
		}
	}
	return nil
}
