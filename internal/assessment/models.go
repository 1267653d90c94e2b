package assessment

import (
	"encoding/json"
	"sort"

	"github.com/sepakat-app/sepakat/internal/scoring"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

type ValidatorStatus string

const (
	ValidatorPending  ValidatorStatus = "PENDING"
	ValidatorApproved ValidatorStatus = "APPROVED"
	ValidatorRejected ValidatorStatus = "REJECTED"
)

const (
	EntryMain = "MAIN"
	EntryPeer = "PEER"
)

// Entry is one reviewer's score submission.
type Entry struct {
	Reviewer    string          `json:"reviewer"`
	Type        string          `json:"type"`
	Scores      []scoring.Entry `json:"scores"`
	Note        string          `json:"note,omitempty"`
	SubmittedAt int64           `json:"submitted_at"`
}

// EntrySet holds peer entries keyed by reviewer id, which makes the
// replace-on-resubmit rule trivially correct: two submissions by the same
// peer can only ever occupy one slot. It serializes as a slice ordered by
// reviewer id.
type EntrySet map[string]Entry

func (s EntrySet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, s[id])
	}
	return json.Marshal(entries)
}

func (s *EntrySet) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m := make(EntrySet, len(entries))
	for _, e := range entries {
		m[e.Reviewer] = e
	}
	*s = m
	return nil
}

// AdminPeerInput is the admin peer's testimony. Approved is tri-state:
// nil means the question was left unanswered.
type AdminPeerInput struct {
	Feedback    string `json:"feedback"`
	Approved    *bool  `json:"approved"`
	SubmittedAt int64  `json:"submitted_at"`
}

// Assessment is one candidate's review for one assignment. All principal
// fields reference user ids; the template and weight matrix are referenced,
// never embedded.
type Assessment struct {
	ID           string `json:"id"`
	Candidate    string `json:"candidate"`
	MainReviewer string `json:"main_reviewer"`
	// PeerReviewers is a set: order-insensitive, no duplicates.
	PeerReviewers  []string `json:"peer_reviewers"`
	TemplateID     string   `json:"template_id"`
	WeightMatrixID string   `json:"weight_matrix_id,omitempty"`

	Status Status `json:"status"`

	Validator       string          `json:"validator,omitempty"`
	ValidatorStatus ValidatorStatus `json:"validator_status"`
	ValidatorNote   string          `json:"validator_note,omitempty"`

	AdminPeer      string          `json:"admin_peer,omitempty"`
	AdminPeerInput *AdminPeerInput `json:"admin_peer_input,omitempty"`

	// MainReviewerNote mirrors MainAssessment.Note for top-level display.
	// It is recomputed on every main submission, never set independently.
	MainReviewerNote string `json:"main_reviewer_note,omitempty"`

	MainAssessment  *Entry   `json:"main_assessment,omitempty"`
	PeerAssessments EntrySet `json:"peer_assessments"`

	FinalScore float64 `json:"final_score"`
	CreatedAt  int64   `json:"created_at"`
}

// HasPeer reports whether id is currently one of the peer reviewers.
func (a *Assessment) HasPeer(id string) bool {
	for _, p := range a.PeerReviewers {
		if p == id {
			return true
		}
	}
	return false
}

// IsParticipant reports whether id holds any role on this assessment.
func (a *Assessment) IsParticipant(id string) bool {
	return a.MainReviewer == id ||
		a.Candidate == id ||
		a.HasPeer(id) ||
		(a.Validator != "" && a.Validator == id) ||
		(a.AdminPeer != "" && a.AdminPeer == id)
}
