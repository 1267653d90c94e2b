package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sepakat-app/sepakat/internal/assessment"
)

type assignmentPayload struct {
	Candidate    string `json:"candidate" validate:"required"`
	MainReviewer string `json:"main_reviewer" validate:"required"`
	TemplateID   string `json:"template_id" validate:"required"`
	Validator    string `json:"validator,omitempty"`
	AdminPeer    string `json:"admin_peer,omitempty"`
	WeightMatrix string `json:"weight_matrix_id,omitempty"`
}

// POST /admin/assignments
// Creates an assessment in PENDING with its reviewers, template and
// optional validator/admin peer/weight matrix.
func CreateAssignmentHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignmentPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := store.GetTemplate(r.Context(), req.TemplateID); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		if req.WeightMatrix != "" {
			if _, err := store.GetMatrix(r.Context(), req.WeightMatrix); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, assessment.ErrNotFound) {
					status = http.StatusBadRequest
				}
				http.Error(w, err.Error(), status)
				return
			}
		}
		a := assessment.Assessment{
			ID:              uuid.NewString(),
			Candidate:       req.Candidate,
			MainReviewer:    req.MainReviewer,
			PeerReviewers:   []string{},
			TemplateID:      req.TemplateID,
			WeightMatrixID:  req.WeightMatrix,
			Validator:       req.Validator,
			AdminPeer:       req.AdminPeer,
			Status:          assessment.StatusPending,
			ValidatorStatus: assessment.ValidatorPending,
			PeerAssessments: assessment.EntrySet{},
			CreatedAt:       time.Now().Unix(),
		}
		if err := store.Put(r.Context(), a); err != nil {
			http.Error(w, "save assessment: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(a)
	}
}

// GET /admin/assignments
func ListAssignmentsHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := assessment.ListOpts{TemplateID: r.URL.Query().Get("template")}
		list, err := store.List(r.Context(), opts)
		if err != nil {
			http.Error(w, "list assessments: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(list)
	}
}

// GET /admin/assignments/{assessmentID}/details
func AssignmentDetailsHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		a, err := store.Get(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// DELETE /admin/assignments/{assessmentID}
func DeleteAssignmentHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		if err := store.Delete(r.Context(), id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assessment.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /admin/dashboard
func AdminDashboardHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var users, templates, assessments int
		if err := db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM users WHERE role='user'`).Scan(&users); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM templates WHERE is_active`).Scan(&templates); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := db.QueryRowContext(r.Context(), `SELECT COUNT(*) FROM assessments`).Scan(&assessments); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{
			"user_count":       users,
			"template_count":   templates,
			"assessment_count": assessments,
		})
	}
}

// GET /admin/assignments/export?template=<id|all>
// Streams all assessments (optionally filtered by template) as CSV.
func ExportAssignmentsHandler(store *assessment.SQLStore, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := assessment.ListOpts{}
		if t := r.URL.Query().Get("template"); t != "" && t != "all" {
			opts.TemplateID = t
		}
		list, err := store.List(r.Context(), opts)
		if err != nil {
			http.Error(w, "list assessments: "+err.Error(), http.StatusInternalServerError)
			return
		}

		names, nips, err := userDirectory(r.Context(), db)
		if err != nil {
			http.Error(w, "load users: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="assessments_export.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"Candidate Name", "Candidate NIP", "Reviewer Name", "Template", "Status", "Final Score", "Submitted Date"})

		for _, a := range list {
			tplName := a.TemplateID
			if t, err := store.GetTemplate(r.Context(), a.TemplateID); err == nil {
				tplName = t.Name
			}
			submitted := "-"
			if a.MainAssessment != nil && a.MainAssessment.SubmittedAt > 0 {
				submitted = time.Unix(a.MainAssessment.SubmittedAt, 0).UTC().Format("2006-01-02")
			}
			nip := nips[a.Candidate]
			if nip == "" {
				nip = "-"
			}
			_ = cw.Write([]string{
				orID(names, a.Candidate),
				nip,
				orID(names, a.MainReviewer),
				tplName,
				string(a.Status),
				fmt.Sprintf("%.2f", a.FinalScore),
				submitted,
			})
		}
		cw.Flush()
	}
}

func orID(names map[string]string, id string) string {
	if n := names[id]; n != "" {
		return n
	}
	return id
}

func userDirectory(ctx context.Context, db *sql.DB) (names map[string]string, nips map[string]string, err error) {
	rows, err := db.QueryContext(ctx, `SELECT id, nama, nip FROM users`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	names = map[string]string{}
	nips = map[string]string{}
	for rows.Next() {
		var id, nama, nip string
		if err := rows.Scan(&id, &nama, &nip); err != nil {
			return nil, nil, err
		}
		names[id] = nama
		nips[id] = nip
	}
	return names, nips, rows.Err()
}
