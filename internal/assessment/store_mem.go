package assessment

import (
	"context"
	"fmt"
	"sync"

	"github.com/sepakat-app/sepakat/internal/grade"
	"github.com/sepakat-app/sepakat/internal/rubric"
)

// MemoryStore keeps everything in maps. It backs tests and offline trials;
// production runs on the SQL store.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]Assessment
	templates   map[string]rubric.Template
	matrices    map[string]grade.Matrix
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: map[string]Assessment{},
		templates:   map[string]rubric.Template{},
		matrices:    map[string]grade.Matrix{},
	}
}

func (m *MemoryStore) Put(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.ID] = a
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Assessment{}
	for _, a := range m.assessments {
		if opts.Candidate != "" && a.Candidate != opts.Candidate {
			continue
		}
		if opts.MainReviewer != "" && a.MainReviewer != opts.MainReviewer {
			continue
		}
		if opts.PeerReviewer != "" && !a.HasPeer(opts.PeerReviewer) {
			continue
		}
		if opts.Validator != "" && a.Validator != opts.Validator {
			continue
		}
		if opts.AdminPeer != "" && a.AdminPeer != opts.AdminPeer {
			continue
		}
		if opts.TemplateID != "" && a.TemplateID != opts.TemplateID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assessments[id]; !ok {
		return fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	delete(m.assessments, id)
	return nil
}

func (m *MemoryStore) PutTemplate(t rubric.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
}

func (m *MemoryStore) GetTemplate(_ context.Context, id string) (rubric.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return rubric.Template{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) PutMatrix(x grade.Matrix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matrices[x.ID] = x
}

func (m *MemoryStore) GetMatrix(_ context.Context, id string) (grade.Matrix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	x, ok := m.matrices[id]
	if !ok {
		return grade.Matrix{}, fmt.Errorf("weight matrix %s: %w", id, ErrNotFound)
	}
	return x, nil
}
