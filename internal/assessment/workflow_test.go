package assessment_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sepakat-app/sepakat/internal/assessment"
	"github.com/sepakat-app/sepakat/internal/rubric"
	"github.com/sepakat-app/sepakat/internal/scoring"
)

const (
	candidateID = "u-candidate"
	mainID      = "u-main"
	peerID      = "u-peer"
	peer2ID     = "u-peer-2"
	validatorID = "u-validator"
	adminPeerID = "u-admin-peer"
)

func testTemplate() rubric.Template {
	return rubric.Template{
		ID:   "tpl-1",
		Name: "Penilaian Kinerja",
		Components: []rubric.ParentComponent{
			{ID: "pA", Name: "Kompetensi", Children: []rubric.ChildComponent{
				{ID: "c1", Name: "Kualitas", Type: rubric.TypeRating},
				{ID: "c2", Name: "Waktu", Type: rubric.TypeRating},
			}},
			{ID: "pB", Name: "Kepemimpinan", Children: []rubric.ChildComponent{
				{ID: "c3", Name: "Inisiatif", Type: rubric.TypeRating},
			}},
		},
	}
}

func fullScores() []scoring.Entry {
	return []scoring.Entry{
		{ComponentID: "c1", Value: scoring.NumberValue(80)},
		{ComponentID: "c2", Value: scoring.NumberValue(90)},
		{ComponentID: "c3", Value: scoring.NumberValue(70)},
	}
}

// newFixture seeds a store with the template and one assessment that has a
// validator and an admin peer assigned.
func newFixture(t *testing.T) (*assessment.Workflow, *assessment.MemoryStore) {
	t.Helper()
	store := assessment.NewInMemoryStore()
	store.PutTemplate(testTemplate())

	a := assessment.Assessment{
		ID:              "as-1",
		Candidate:       candidateID,
		MainReviewer:    mainID,
		PeerReviewers:   []string{peerID},
		TemplateID:      "tpl-1",
		Status:          assessment.StatusPending,
		Validator:       validatorID,
		ValidatorStatus: assessment.ValidatorPending,
		AdminPeer:       adminPeerID,
		PeerAssessments: assessment.EntrySet{},
	}
	if err := store.Put(context.Background(), a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}

	clock := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	wf := assessment.NewWorkflow(store, store, assessment.WithClock(func() time.Time { return clock }))
	return wf, store
}

func TestStatusProgression(t *testing.T) {
	wf, store := newFixture(t)
	ctx := context.Background()

	a, _ := store.Get(ctx, "as-1")
	if got := assessment.DeriveStatus(&a); got != assessment.StatusPending {
		t.Fatalf("initial status = %s, want PENDING", got)
	}

	a, err := wf.SubmitMain(ctx, mainID, "as-1", fullScores(), "catatan utama")
	if err != nil {
		t.Fatalf("SubmitMain: %v", err)
	}
	if a.Status != assessment.StatusInProgress {
		t.Fatalf("after main: status = %s, want IN_PROGRESS", a.Status)
	}

	approved := true
	a, err = wf.AdminPeerSubmit(ctx, adminPeerID, "as-1", "testimoni positif", &approved)
	if err != nil {
		t.Fatalf("AdminPeerSubmit: %v", err)
	}
	if a.Status != assessment.StatusInProgress {
		t.Fatalf("after testimony: status = %s, want IN_PROGRESS (validator pending)", a.Status)
	}

	a, err = wf.ValidatorAction(ctx, validatorID, "as-1", assessment.ActionApprove, "ok")
	if err != nil {
		t.Fatalf("ValidatorAction: %v", err)
	}
	if a.Status != assessment.StatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED", a.Status)
	}
}

func TestRejectionStillCompletes(t *testing.T) {
	wf, _ := newFixture(t)
	ctx := context.Background()

	if _, err := wf.SubmitMain(ctx, mainID, "as-1", fullScores(), ""); err != nil {
		t.Fatalf("SubmitMain: %v", err)
	}
	if _, err := wf.AdminPeerSubmit(ctx, adminPeerID, "as-1", "testimoni", nil); err != nil {
		t.Fatalf("AdminPeerSubmit: %v", err)
	}
	a, err := wf.ValidatorAction(ctx, validatorID, "as-1", assessment.ActionReject, "perlu revisi")
	if err != nil {
		t.Fatalf("ValidatorAction: %v", err)
	}
	if a.ValidatorStatus != assessment.ValidatorRejected {
		t.Fatalf("validator status = %s, want REJECTED", a.ValidatorStatus)
	}
	if a.Status != assessment.StatusCompleted {
		t.Fatalf("a rejected workflow is still COMPLETED, got %s", a.Status)
	}
}

func TestSubmitMainDerivesScoreAndMirrorsNote(t *testing.T) {
	wf, _ := newFixture(t)

	a, err := wf.SubmitMain(context.Background(), mainID, "as-1", fullScores(), "catatan utama")
	if err != nil {
		t.Fatalf("SubmitMain: %v", err)
	}
	if math.Abs(a.FinalScore-77.5) > 1e-9 {
		t.Fatalf("FinalScore = %v, want 77.5", a.FinalScore)
	}
	if a.MainReviewerNote != "catatan utama" {
		t.Fatalf("top-level note = %q, not mirrored", a.MainReviewerNote)
	}
	if a.MainAssessment == nil || a.MainAssessment.Reviewer != mainID || a.MainAssessment.SubmittedAt == 0 {
		t.Fatalf("main entry not recorded: %+v", a.MainAssessment)
	}
}

func TestSubmitMainReplacesWholesale(t *testing.T) {
	wf, _ := newFixture(t)
	ctx := context.Background()

	if _, err := wf.SubmitMain(ctx, mainID, "as-1", fullScores(), "pertama"); err != nil {
		t.Fatalf("SubmitMain: %v", err)
	}
	second := []scoring.Entry{{ComponentID: "c1", Value: scoring.NumberValue(100)}}
	a, err := wf.SubmitMain(ctx, mainID, "as-1", second, "kedua")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(a.MainAssessment.Scores) != 1 {
		t.Fatalf("resubmit appended instead of replacing: %d scores", len(a.MainAssessment.Scores))
	}
	if a.MainReviewerNote != "kedua" {
		t.Fatalf("note = %q after resubmit", a.MainReviewerNote)
	}
	if math.Abs(a.FinalScore-100) > 1e-9 {
		t.Fatalf("FinalScore = %v after resubmit, want 100", a.FinalScore)
	}
}

func TestSubmitPeerUpsertIdempotent(t *testing.T) {
	wf, _ := newFixture(t)
	ctx := context.Background()

	if _, err := wf.SubmitPeer(ctx, peerID, "as-1", fullScores(), "penilaian rekan"); err != nil {
		t.Fatalf("SubmitPeer: %v", err)
	}
	a, err := wf.SubmitPeer(ctx, peerID, "as-1", fullScores(), "penilaian rekan")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if len(a.PeerAssessments) != 1 {
		t.Fatalf("peer entries = %d after double submit, want 1", len(a.PeerAssessments))
	}
	entry, ok := a.PeerAssessments[peerID]
	if !ok || entry.Type != assessment.EntryPeer {
		t.Fatalf("peer entry missing or wrong type: %+v", entry)
	}
	// peer submissions never gate status and never touch the final score
	if a.FinalScore != 0 {
		t.Fatalf("peer submission set FinalScore = %v", a.FinalScore)
	}
}

func TestAssignAndRemovePeer(t *testing.T) {
	wf, _ := newFixture(t)
	ctx := context.Background()

	a, err := wf.AssignPeer(ctx, mainID, "as-1", peer2ID)
	if err != nil {
		t.Fatalf("AssignPeer: %v", err)
	}
	if !a.HasPeer(peer2ID) {
		t.Fatalf("peer not added: %v", a.PeerReviewers)
	}
	a, err = wf.AssignPeer(ctx, mainID, "as-1", peer2ID)
	if err != nil {
		t.Fatalf("re-AssignPeer: %v", err)
	}
	if len(a.PeerReviewers) != 2 {
		t.Fatalf("duplicate assign grew the set: %v", a.PeerReviewers)
	}

	if _, err := wf.SubmitPeer(ctx, peer2ID, "as-1", fullScores(), ""); err != nil {
		t.Fatalf("SubmitPeer: %v", err)
	}
	a, err = wf.RemovePeer(ctx, mainID, "as-1", peer2ID)
	if err != nil {
		t.Fatalf("RemovePeer: %v", err)
	}
	if a.HasPeer(peer2ID) {
		t.Fatalf("peer still present: %v", a.PeerReviewers)
	}
	if _, ok := a.PeerAssessments[peer2ID]; ok {
		t.Fatalf("removed peer's entry survived")
	}
}

func TestValidatorPrecondition(t *testing.T) {
	wf, _ := newFixture(t)

	_, err := wf.ValidatorAction(context.Background(), validatorID, "as-1", assessment.ActionApprove, "")
	var preErr *assessment.PreconditionError
	if !errors.As(err, &preErr) {
		t.Fatalf("ValidatorAction before main submit: err = %v, want PreconditionError", err)
	}

	_, err = wf.ValidatorAction(context.Background(), validatorID, "as-1", assessment.ActionReject, "")
	if !errors.As(err, &preErr) {
		t.Fatalf("reject before main submit: err = %v, want PreconditionError", err)
	}
}

func TestAuthorization(t *testing.T) {
	wf, _ := newFixture(t)
	ctx := context.Background()
	var authErr *assessment.AuthorizationError

	if _, err := wf.SubmitMain(ctx, peerID, "as-1", fullScores(), ""); !errors.As(err, &authErr) {
		t.Errorf("SubmitMain by peer: err = %v, want AuthorizationError", err)
	}
	if _, err := wf.SubmitPeer(ctx, mainID, "as-1", fullScores(), ""); !errors.As(err, &authErr) {
		t.Errorf("SubmitPeer by non-peer: err = %v, want AuthorizationError", err)
	}
	if _, err := wf.AssignPeer(ctx, peerID, "as-1", peer2ID); !errors.As(err, &authErr) {
		t.Errorf("AssignPeer by peer: err = %v, want AuthorizationError", err)
	}
	if _, err := wf.RemovePeer(ctx, validatorID, "as-1", peerID); !errors.As(err, &authErr) {
		t.Errorf("RemovePeer by validator: err = %v, want AuthorizationError", err)
	}
	if _, err := wf.ValidatorAction(ctx, mainID, "as-1", assessment.ActionApprove, ""); !errors.As(err, &authErr) {
		t.Errorf("ValidatorAction by main: err = %v, want AuthorizationError", err)
	}
	if _, err := wf.AdminPeerSubmit(ctx, peerID, "as-1", "testimoni", nil); !errors.As(err, &authErr) {
		t.Errorf("AdminPeerSubmit by peer: err = %v, want AuthorizationError", err)
	}
}

func TestNotFound(t *testing.T) {
	wf, _ := newFixture(t)
	_, err := wf.SubmitMain(context.Background(), mainID, "as-missing", fullScores(), "")
	if !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStatusWithoutOptionalRoles(t *testing.T) {
	// No validator and no admin peer: their stages are vacuously done, so
	// the assessment completes on the main submission alone.
	store := assessment.NewInMemoryStore()
	store.PutTemplate(testTemplate())
	a := assessment.Assessment{
		ID:              "as-solo",
		Candidate:       candidateID,
		MainReviewer:    mainID,
		TemplateID:      "tpl-1",
		ValidatorStatus: assessment.ValidatorPending,
		PeerAssessments: assessment.EntrySet{},
	}
	if err := store.Put(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	wf := assessment.NewWorkflow(store, store)

	got, err := wf.SubmitMain(context.Background(), mainID, "as-solo", fullScores(), "")
	if err != nil {
		t.Fatalf("SubmitMain: %v", err)
	}
	if got.Status != assessment.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
}
