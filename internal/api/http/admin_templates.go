package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sepakat-app/sepakat/internal/assessment"
	"github.com/sepakat-app/sepakat/internal/rubric"
)

var validate = validator.New()

type templatePayload struct {
	Name       string                   `json:"name" validate:"required"`
	Components []rubric.ParentComponent `json:"components" validate:"required"`
	IsActive   *bool                    `json:"is_active,omitempty"`
}

// fillComponentIDs assigns ids to components the admin submitted without
// one. Existing ids are kept so templates can be edited in place.
func fillComponentIDs(components []rubric.ParentComponent) {
	for i := range components {
		if components[i].ID == "" {
			components[i].ID = uuid.NewString()
		}
		for j := range components[i].Children {
			if components[i].Children[j].ID == "" {
				components[i].Children[j].ID = uuid.NewString()
			}
		}
	}
}

// GET /admin/templates
func ListTemplatesHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		templates, err := store.ListTemplates(r.Context(), activeOnly)
		if err != nil {
			http.Error(w, "list templates: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(templates)
	}
}

// POST /admin/templates
func CreateTemplateHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templatePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		fillComponentIDs(req.Components)
		t := rubric.Template{
			ID:         uuid.NewString(),
			Name:       req.Name,
			Components: req.Components,
			IsActive:   req.IsActive == nil || *req.IsActive,
		}
		if err := rubric.ValidateShape(t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutTemplate(r.Context(), t); err != nil {
			http.Error(w, "save template: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(t)
	}
}

// GET /admin/templates/{templateID}
func GetTemplateHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "templateID"))
		t, err := store.GetTemplate(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		_ = json.NewEncoder(w).Encode(t)
	}
}

// PUT /admin/templates/{templateID}
func UpdateTemplateHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "templateID"))
		existing, err := store.GetTemplate(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		var req templatePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		fillComponentIDs(req.Components)
		existing.Name = req.Name
		existing.Components = req.Components
		if req.IsActive != nil {
			existing.IsActive = *req.IsActive
		}
		if err := rubric.ValidateShape(existing); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutTemplate(r.Context(), existing); err != nil {
			http.Error(w, "save template: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(existing)
	}
}

// DELETE /admin/templates/{templateID}
func DeleteTemplateHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "templateID"))
		if err := store.DeleteTemplate(r.Context(), id); err != nil {
			http.Error(w, "delete template: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
