package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sepakat-app/sepakat/internal/assessment"
	"github.com/sepakat-app/sepakat/internal/grade"
)

type matrixPayload struct {
	Name     string          `json:"name" validate:"required"`
	Grades   []grade.RawBand `json:"grades" validate:"required"`
	IsActive *bool           `json:"is_active,omitempty"`
}

func writeBandError(w http.ResponseWriter, err error) bool {
	var verr *grade.ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return true
	}
	return false
}

// GET /admin/weights
func ListMatricesHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		matrices, err := store.ListMatrices(r.Context(), activeOnly)
		if err != nil {
			http.Error(w, "list weight matrices: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(matrices)
	}
}

// POST /admin/weights
func CreateMatrixHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req matrixPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		bands, err := grade.NormalizeAndValidate(req.Grades)
		if err != nil {
			if !writeBandError(w, err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		m := grade.Matrix{
			ID:       uuid.NewString(),
			Name:     req.Name,
			Grades:   bands,
			IsActive: req.IsActive == nil || *req.IsActive,
		}
		if err := store.PutMatrix(r.Context(), m); err != nil {
			http.Error(w, "save weight matrix: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(m)
	}
}

// PUT /admin/weights/{matrixID}
func UpdateMatrixHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "matrixID"))
		existing, err := store.GetMatrix(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		var req matrixPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		bands, err := grade.NormalizeAndValidate(req.Grades)
		if err != nil {
			if !writeBandError(w, err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		existing.Name = req.Name
		existing.Grades = bands
		if req.IsActive != nil {
			existing.IsActive = *req.IsActive
		}
		if err := store.PutMatrix(r.Context(), existing); err != nil {
			http.Error(w, "save weight matrix: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(existing)
	}
}

// DELETE /admin/weights/{matrixID}
func DeleteMatrixHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "matrixID"))
		if err := store.DeleteMatrix(r.Context(), id); err != nil {
			http.Error(w, "delete weight matrix: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
