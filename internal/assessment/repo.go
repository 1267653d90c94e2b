package assessment

import (
	"context"

	"github.com/sepakat-app/sepakat/internal/grade"
	"github.com/sepakat-app/sepakat/internal/rubric"
)

// ListOpts filters assessment listings. At most one of the role filters is
// normally set; TemplateID may combine with any of them.
type ListOpts struct {
	Candidate    string
	MainReviewer string
	PeerReviewer string
	Validator    string
	AdminPeer    string
	TemplateID   string
	Limit        int
	Offset       int
}

// Store persists assessments as whole entities. Every workflow operation is
// one get-mutate-put unit against a single record; the store is expected to
// serialize concurrent writes to the same record (row lock or equivalent).
type Store interface {
	Put(ctx context.Context, a Assessment) error
	Get(ctx context.Context, id string) (Assessment, error)
	List(ctx context.Context, opts ListOpts) ([]Assessment, error)
	Delete(ctx context.Context, id string) error
}

// TemplateSource resolves the rubric template an assessment references.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (rubric.Template, error)
}

// MatrixSource resolves the weight matrix an assessment references, when any.
type MatrixSource interface {
	GetMatrix(ctx context.Context, id string) (grade.Matrix, error)
}
