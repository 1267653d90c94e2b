package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/sepakat-app/sepakat/internal/scoring"
)

// Validator actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// EventSink receives an audit record after every successful mutation.
type EventSink interface {
	Record(ctx context.Context, typ, key string, data interface{})
}

// Workflow implements the six mutation operations of the assessment state
// machine. Each operation loads the assessment, authorizes the caller
// against the relevant reference field, mutates, re-derives the status and
// persists the whole entity. Status is never set directly by callers.
type Workflow struct {
	store     Store
	templates TemplateSource
	events    EventSink
	now       func() time.Time
}

type Option func(*Workflow)

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithEvents attaches an audit sink.
func WithEvents(sink EventSink) Option {
	return func(w *Workflow) { w.events = sink }
}

func NewWorkflow(store Store, templates TemplateSource, opts ...Option) *Workflow {
	w := &Workflow{store: store, templates: templates, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Stage predicates. Each is re-evaluated from current facts on demand,
// never cached.

// MainDone reports whether the main reviewer has submitted scores.
func MainDone(a *Assessment) bool {
	return a.MainAssessment != nil && len(a.MainAssessment.Scores) > 0
}

// PeerTestimonyDone reports whether the admin-peer stage is satisfied. An
// assessment without an admin peer has no testimony stage to wait on.
func PeerTestimonyDone(a *Assessment) bool {
	if a.AdminPeer == "" {
		return true
	}
	return a.AdminPeerInput != nil && a.AdminPeerInput.Feedback != ""
}

// ValidatorDone reports whether the validator stage is satisfied. A
// rejection completes the stage just like an approval.
func ValidatorDone(a *Assessment) bool {
	if a.Validator == "" {
		return true
	}
	return a.ValidatorStatus != ValidatorPending
}

// DeriveStatus recomputes the workflow status from the three stage
// predicates: COMPLETED when all hold, PENDING when none do, IN_PROGRESS
// otherwise. Peer (non-admin) submissions never gate the status.
func DeriveStatus(a *Assessment) Status {
	main := MainDone(a)
	testimony := PeerTestimonyDone(a)
	validator := ValidatorDone(a)

	switch {
	case main && testimony && validator:
		return StatusCompleted
	case !main && !testimony && !validator:
		return StatusPending
	default:
		return StatusInProgress
	}
}

// AssignPeer adds a peer reviewer. Only the main reviewer may assign peers;
// assigning an already-present peer is a no-op.
func (w *Workflow) AssignPeer(ctx context.Context, callerID, assessmentID, peerID string) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if a.MainReviewer != callerID {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "main reviewer"}
	}
	if !a.HasPeer(peerID) {
		a.PeerReviewers = append(a.PeerReviewers, peerID)
	}
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.assign_peer", a.ID, map[string]string{"peer": peerID})
	return a, nil
}

// RemovePeer removes a peer reviewer together with any entry they already
// submitted. Peer submissions never gate the status, so none is recomputed
// away by this.
func (w *Workflow) RemovePeer(ctx context.Context, callerID, assessmentID, peerID string) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if a.MainReviewer != callerID {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "main reviewer"}
	}
	kept := a.PeerReviewers[:0]
	for _, p := range a.PeerReviewers {
		if p != peerID {
			kept = append(kept, p)
		}
	}
	a.PeerReviewers = kept
	delete(a.PeerAssessments, peerID)
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.remove_peer", a.ID, map[string]string{"peer": peerID})
	return a, nil
}

// SubmitMain replaces the main assessment wholesale, recomputes the final
// score from the referenced template and mirrors the note to the top-level
// display field.
func (w *Workflow) SubmitMain(ctx context.Context, callerID, assessmentID string, scores []scoring.Entry, note string) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if a.MainReviewer != callerID {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "main reviewer"}
	}
	tpl, err := w.templates.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return Assessment{}, err
	}

	a.MainAssessment = &Entry{
		Reviewer:    callerID,
		Type:        EntryMain,
		Scores:      scores,
		Note:        note,
		SubmittedAt: w.now().Unix(),
	}
	a.MainReviewerNote = note
	a.FinalScore = scoring.Aggregate(scores, tpl)
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.submit_main", a.ID, map[string]interface{}{"reviewer": callerID, "final_score": a.FinalScore})
	return a, nil
}

// SubmitPeer upserts the caller's entry by reviewer identity: a resubmission
// replaces the previous entry, never appends. This keeps concurrent peer
// submissions commutative.
func (w *Workflow) SubmitPeer(ctx context.Context, callerID, assessmentID string, scores []scoring.Entry, note string) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if !a.HasPeer(callerID) {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "peer reviewer"}
	}
	if a.PeerAssessments == nil {
		a.PeerAssessments = EntrySet{}
	}
	a.PeerAssessments[callerID] = Entry{
		Reviewer:    callerID,
		Type:        EntryPeer,
		Scores:      scores,
		Note:        note,
		SubmittedAt: w.now().Unix(),
	}
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.submit_peer", a.ID, map[string]string{"reviewer": callerID})
	return a, nil
}

// ValidatorAction approves or rejects the main reviewer's result. It cannot
// run before the main reviewer has scored.
func (w *Workflow) ValidatorAction(ctx context.Context, callerID, assessmentID, action, note string) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if a.Validator == "" || a.Validator != callerID {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "validator"}
	}
	if !MainDone(&a) {
		return Assessment{}, &PreconditionError{Reason: "main reviewer has not submitted scores yet"}
	}

	switch action {
	case ActionApprove:
		a.ValidatorStatus = ValidatorApproved
	case ActionReject:
		a.ValidatorStatus = ValidatorRejected
	default:
		return Assessment{}, fmt.Errorf("unknown validator action %q", action)
	}
	a.ValidatorNote = note
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.validator_action", a.ID, map[string]string{"action": action})
	return a, nil
}

// AdminPeerSubmit replaces the admin peer's testimony wholesale. Approved is
// tri-state and may stay nil.
func (w *Workflow) AdminPeerSubmit(ctx context.Context, callerID, assessmentID, feedback string, approved *bool) (Assessment, error) {
	a, err := w.store.Get(ctx, assessmentID)
	if err != nil {
		return Assessment{}, err
	}
	if a.AdminPeer == "" || a.AdminPeer != callerID {
		return Assessment{}, &AuthorizationError{Caller: callerID, Required: "admin peer"}
	}
	a.AdminPeerInput = &AdminPeerInput{
		Feedback:    feedback,
		Approved:    approved,
		SubmittedAt: w.now().Unix(),
	}
	if err := w.save(ctx, &a); err != nil {
		return Assessment{}, err
	}
	w.record(ctx, "assessment.admin_peer_submit", a.ID, map[string]string{"admin_peer": callerID})
	return a, nil
}

func (w *Workflow) save(ctx context.Context, a *Assessment) error {
	a.Status = DeriveStatus(a)
	return w.store.Put(ctx, *a)
}

func (w *Workflow) record(ctx context.Context, typ, key string, data interface{}) {
	if w.events == nil {
		return
	}
	w.events.Record(ctx, typ, key, data)
}
