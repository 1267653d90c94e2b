package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sepakat-app/sepakat/internal/assessment"
	authmw "github.com/sepakat-app/sepakat/internal/auth/middleware"
	"github.com/sepakat-app/sepakat/internal/grade"
	"github.com/sepakat-app/sepakat/internal/scoring"
)

func writeWorkflowError(w http.ResponseWriter, err error) {
	var authErr *assessment.AuthorizationError
	var preErr *assessment.PreconditionError
	switch {
	case errors.As(err, &authErr):
		http.Error(w, authErr.Error(), http.StatusForbidden)
	case errors.As(err, &preErr):
		http.Error(w, preErr.Error(), http.StatusBadRequest)
	case errors.Is(err, assessment.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /cockpit
// Lists the caller's assessments grouped by the role they hold on each.
func CockpitHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())

		asMain, err := store.List(r.Context(), assessment.ListOpts{MainReviewer: userID})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		asPeer, err := store.List(r.Context(), assessment.ListOpts{PeerReviewer: userID})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		asValidator, err := store.List(r.Context(), assessment.ListOpts{Validator: userID})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		asAdminPeer, err := store.List(r.Context(), assessment.ListOpts{AdminPeer: userID})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]assessment.Assessment{
			"main_assessments":       asMain,
			"peer_assessments":       asPeer,
			"validator_assessments":  asValidator,
			"admin_peer_assessments": asAdminPeer,
		})
	}
}

type progressStep struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Done     bool   `json:"done"`
}

type assessmentView struct {
	Assessment     assessment.Assessment `json:"assessment"`
	IsMainReviewer bool                  `json:"is_main_reviewer"`
	IsPeerReviewer bool                  `json:"is_peer_reviewer"`
	IsValidator    bool                  `json:"is_validator"`
	IsAdminPeer    bool                  `json:"is_admin_peer"`
	// ActiveScores is the score set the viewer is working on: the main
	// entry for the main reviewer and validator, the viewer's own entry
	// for a peer.
	ActiveScores   []scoring.Entry    `json:"active_scores"`
	PreviewScore   float64            `json:"preview_score"`
	ParentAverages map[string]float64 `json:"parent_averages"`
	FinalScore     float64            `json:"final_score"`
	FinalGrade     *grade.Band        `json:"final_grade,omitempty"`
	ProgressSteps  []progressStep     `json:"progress_steps"`
}

// GET /cockpit/assessment/{assessmentID}
func AssessmentViewHandler(store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))

		a, err := store.Get(r.Context(), id)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		view := assessmentView{
			Assessment:     a,
			IsMainReviewer: a.MainReviewer == userID,
			IsPeerReviewer: a.HasPeer(userID),
			IsValidator:    a.Validator != "" && a.Validator == userID,
			IsAdminPeer:    a.AdminPeer != "" && a.AdminPeer == userID,
		}
		if !view.IsMainReviewer && !view.IsPeerReviewer && !view.IsValidator && !view.IsAdminPeer {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		tpl, err := store.GetTemplate(r.Context(), a.TemplateID)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		switch {
		case view.IsMainReviewer, view.IsValidator:
			if a.MainAssessment != nil {
				view.ActiveScores = a.MainAssessment.Scores
			}
		case view.IsPeerReviewer:
			if entry, ok := a.PeerAssessments[userID]; ok {
				view.ActiveScores = entry.Scores
			}
		}
		if view.ActiveScores == nil {
			view.ActiveScores = []scoring.Entry{}
		}
		view.PreviewScore = scoring.Aggregate(view.ActiveScores, tpl)
		view.ParentAverages = scoring.ParentAverages(view.ActiveScores, tpl)

		// Stored final score, with a recompute fallback for assessments
		// persisted before the score was derived.
		view.FinalScore = a.FinalScore
		if view.FinalScore == 0 && a.MainAssessment != nil {
			view.FinalScore = scoring.Aggregate(a.MainAssessment.Scores, tpl)
		}

		if a.WeightMatrixID != "" {
			if m, err := store.GetMatrix(r.Context(), a.WeightMatrixID); err == nil {
				view.FinalGrade = grade.Resolve(view.FinalScore, m.Grades)
			}
		}

		view.ProgressSteps = []progressStep{
			{Key: "peer", Label: "Testimoni Peer", Required: a.AdminPeer != "", Done: assessment.PeerTestimonyDone(&a)},
			{Key: "main", Label: "Pejabat Penilai", Required: true, Done: assessment.MainDone(&a)},
			{Key: "validator", Label: "Validator", Required: a.Validator != "", Done: assessment.ValidatorDone(&a)},
		}
		_ = json.NewEncoder(w).Encode(view)
	}
}

// POST /cockpit/assessment/{assessmentID}/assign-peer  { "peer_id": "..." }
func AssignPeerHandler(wf *assessment.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		var req struct {
			PeerID string `json:"peer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerID == "" {
			http.Error(w, "peer_id required", http.StatusBadRequest)
			return
		}
		a, err := wf.AssignPeer(r.Context(), userID, id, req.PeerID)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /cockpit/assessment/{assessmentID}/remove-peer  { "peer_id": "..." }
func RemovePeerHandler(wf *assessment.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		var req struct {
			PeerID string `json:"peer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerID == "" {
			http.Error(w, "peer_id required", http.StatusBadRequest)
			return
		}
		a, err := wf.RemovePeer(r.Context(), userID, id, req.PeerID)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

type submitPayload struct {
	// Scores maps child component id to its raw value (number or text).
	Scores map[string]scoring.Value `json:"scores"`
	Note   string                   `json:"note"`
}

func (p submitPayload) entries() []scoring.Entry {
	out := make([]scoring.Entry, 0, len(p.Scores))
	for id, v := range p.Scores {
		out = append(out, scoring.Entry{ComponentID: id, Value: v})
	}
	return out
}

// POST /cockpit/assessment/{assessmentID}/submit
// The main reviewer's submission sets the final score; a peer's submission
// upserts their own entry. Which path runs is decided by the caller's role
// on the assessment.
func SubmitHandler(wf *assessment.Workflow, store *assessment.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		var req submitPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}

		a, err := store.Get(r.Context(), id)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		switch {
		case a.MainReviewer == userID:
			a, err = wf.SubmitMain(r.Context(), userID, id, req.entries(), req.Note)
		case a.HasPeer(userID):
			a, err = wf.SubmitPeer(r.Context(), userID, id, req.entries(), req.Note)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /cockpit/assessment/{assessmentID}/validator-action  { "action": "approve|reject", "note": "..." }
func ValidatorActionHandler(wf *assessment.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		var req struct {
			Action string `json:"action"`
			Note   string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Action != assessment.ActionApprove && req.Action != assessment.ActionReject {
			http.Error(w, "action must be approve or reject", http.StatusBadRequest)
			return
		}
		a, err := wf.ValidatorAction(r.Context(), userID, id, req.Action, req.Note)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// POST /cockpit/assessment/{assessmentID}/admin-peer-submit
// { "feedback": "...", "approved": true|false|null }
func AdminPeerSubmitHandler(wf *assessment.Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))
		var req struct {
			Feedback string `json:"feedback"`
			Approved *bool  `json:"approved"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		a, err := wf.AdminPeerSubmit(r.Context(), userID, id, req.Feedback, req.Approved)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	}
}

// GET /cockpit/assessment/{assessmentID}/print
// Full populated payload for the printable report. Candidates may fetch
// their own report here, unlike the working view.
func PrintAssessmentHandler(store *assessment.SQLStore, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "assessmentID"))

		a, err := store.Get(r.Context(), id)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		if !a.IsParticipant(userID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		tpl, err := store.GetTemplate(r.Context(), a.TemplateID)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		names, _, err := userDirectory(r.Context(), db)
		if err != nil {
			http.Error(w, "load users: "+err.Error(), http.StatusInternalServerError)
			return
		}

		var finalGrade *grade.Band
		if a.WeightMatrixID != "" {
			if m, err := store.GetMatrix(r.Context(), a.WeightMatrixID); err == nil {
				finalGrade = grade.Resolve(a.FinalScore, m.Grades)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"assessment":  a,
			"template":    tpl,
			"final_grade": finalGrade,
			"names": map[string]string{
				"candidate":     orID(names, a.Candidate),
				"main_reviewer": orID(names, a.MainReviewer),
				"validator":     orID(names, a.Validator),
				"admin_peer":    orID(names, a.AdminPeer),
			},
		})
	}
}
