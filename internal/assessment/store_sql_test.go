package assessment_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sepakat-app/sepakat/internal/assessment"
	"github.com/sepakat-app/sepakat/internal/db"
	"github.com/sepakat-app/sepakat/internal/grade"
)

func openTestStore(t *testing.T) *assessment.SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return assessment.NewSQLStore(dbh, string(db.DriverSQLite))
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	approved := true
	in := assessment.Assessment{
		ID:              "as-sql-1",
		Candidate:       candidateID,
		MainReviewer:    mainID,
		PeerReviewers:   []string{peerID, peer2ID},
		TemplateID:      "tpl-1",
		Status:          assessment.StatusInProgress,
		Validator:       validatorID,
		ValidatorStatus: assessment.ValidatorApproved,
		ValidatorNote:   "ok",
		AdminPeer:       adminPeerID,
		AdminPeerInput: &assessment.AdminPeerInput{
			Feedback:    "testimoni",
			Approved:    &approved,
			SubmittedAt: 1715331600,
		},
		MainReviewerNote: "catatan",
		MainAssessment: &assessment.Entry{
			Reviewer:    mainID,
			Type:        assessment.EntryMain,
			Scores:      fullScores(),
			Note:        "catatan",
			SubmittedAt: 1715331500,
		},
		PeerAssessments: assessment.EntrySet{
			peerID: {Reviewer: peerID, Type: assessment.EntryPeer, Scores: fullScores(), SubmittedAt: 1715331550},
		},
		FinalScore: 77.5,
		CreatedAt:  1715331000,
	}
	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := store.Get(ctx, "as-sql-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Candidate != in.Candidate || out.MainReviewer != in.MainReviewer {
		t.Fatalf("identity fields differ: %+v", out)
	}
	if len(out.PeerReviewers) != 2 {
		t.Fatalf("peer reviewers = %v", out.PeerReviewers)
	}
	if out.MainAssessment == nil || len(out.MainAssessment.Scores) != 3 {
		t.Fatalf("main entry lost: %+v", out.MainAssessment)
	}
	if out.AdminPeerInput == nil || out.AdminPeerInput.Approved == nil || !*out.AdminPeerInput.Approved {
		t.Fatalf("admin peer input lost: %+v", out.AdminPeerInput)
	}
	if _, ok := out.PeerAssessments[peerID]; !ok {
		t.Fatalf("peer entry lost: %+v", out.PeerAssessments)
	}
	if out.FinalScore != 77.5 || out.Status != assessment.StatusInProgress {
		t.Fatalf("score/status = %v/%s", out.FinalScore, out.Status)
	}

	// upsert: same id, changed status
	in.Status = assessment.StatusCompleted
	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	out, err = store.Get(ctx, "as-sql-1")
	if err != nil {
		t.Fatalf("get after re-put: %v", err)
	}
	if out.Status != assessment.StatusCompleted {
		t.Fatalf("upsert did not replace: status = %s", out.Status)
	}
}

func TestSQLStoreListFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := []assessment.Assessment{
		{ID: "a1", Candidate: "user-a", MainReviewer: mainID, PeerReviewers: []string{peerID}, TemplateID: "tpl-1", Status: assessment.StatusPending, ValidatorStatus: assessment.ValidatorPending},
		{ID: "a2", Candidate: "user-b", MainReviewer: mainID, PeerReviewers: []string{peer2ID}, TemplateID: "tpl-1", Status: assessment.StatusPending, ValidatorStatus: assessment.ValidatorPending},
		{ID: "a3", Candidate: "user-c", MainReviewer: "other-main", Validator: validatorID, TemplateID: "tpl-2", Status: assessment.StatusPending, ValidatorStatus: assessment.ValidatorPending},
	}
	for _, a := range seed {
		if err := store.Put(ctx, a); err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
	}

	byMain, err := store.List(ctx, assessment.ListOpts{MainReviewer: mainID})
	if err != nil {
		t.Fatalf("list by main: %v", err)
	}
	if len(byMain) != 2 {
		t.Fatalf("by main reviewer: got %d, want 2", len(byMain))
	}

	byPeer, err := store.List(ctx, assessment.ListOpts{PeerReviewer: peerID})
	if err != nil {
		t.Fatalf("list by peer: %v", err)
	}
	if len(byPeer) != 1 || byPeer[0].ID != "a1" {
		t.Fatalf("by peer reviewer: %+v", byPeer)
	}

	byValidator, err := store.List(ctx, assessment.ListOpts{Validator: validatorID})
	if err != nil {
		t.Fatalf("list by validator: %v", err)
	}
	if len(byValidator) != 1 || byValidator[0].ID != "a3" {
		t.Fatalf("by validator: %+v", byValidator)
	}

	byCandidate, err := store.List(ctx, assessment.ListOpts{Candidate: "user-b"})
	if err != nil {
		t.Fatalf("list by candidate: %v", err)
	}
	if len(byCandidate) != 1 || byCandidate[0].ID != "a2" {
		t.Fatalf("by candidate: %+v", byCandidate)
	}

	limited, err := store.List(ctx, assessment.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: got %d", len(limited))
	}
}

func TestSQLStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, assessment.Assessment{ID: "a-del", Candidate: "x", MainReviewer: "y", Status: assessment.StatusPending, ValidatorStatus: assessment.ValidatorPending}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "a-del"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "a-del"); !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("get after delete: %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "a-del"); !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("double delete: %v, want ErrNotFound", err)
	}
}

func TestSQLStoreTemplateAndMatrixCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tpl := testTemplate()
	tpl.IsActive = true
	if err := store.PutTemplate(ctx, tpl); err != nil {
		t.Fatalf("put template: %v", err)
	}
	got, err := store.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.Name != tpl.Name || len(got.Components) != 2 || len(got.Components[0].Children) != 2 {
		t.Fatalf("template shape lost: %+v", got)
	}

	inactive := tpl
	inactive.ID = "tpl-off"
	inactive.IsActive = false
	if err := store.PutTemplate(ctx, inactive); err != nil {
		t.Fatalf("put inactive: %v", err)
	}
	active, err := store.ListTemplates(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != tpl.ID {
		t.Fatalf("active filter: %+v", active)
	}
	all, err := store.ListTemplates(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list all: got %d, want 2", len(all))
	}
	if err := store.DeleteTemplate(ctx, "tpl-off"); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if _, err := store.GetTemplate(ctx, "tpl-off"); !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("get deleted template: %v, want ErrNotFound", err)
	}

	var raw []grade.RawBand
	if err := json.Unmarshal([]byte(`[
		{"min":0,"max":60,"max_operator":"<","label":"Kurang"},
		{"min":60,"max":80,"max_operator":"<","label":"Baik"},
		{"min":80,"max":100,"label":"Sangat Baik"}
	]`), &raw); err != nil {
		t.Fatalf("unmarshal bands: %v", err)
	}
	bands, err := grade.NormalizeAndValidate(raw)
	if err != nil {
		t.Fatalf("normalize bands: %v", err)
	}
	mx := grade.Matrix{ID: "mx-1", Name: "Standar", Grades: bands, IsActive: true}
	if err := store.PutMatrix(ctx, mx); err != nil {
		t.Fatalf("put matrix: %v", err)
	}
	gotMx, err := store.GetMatrix(ctx, "mx-1")
	if err != nil {
		t.Fatalf("get matrix: %v", err)
	}
	if len(gotMx.Grades) != 3 || gotMx.Grades[0].Label != "Kurang" {
		t.Fatalf("matrix bands lost: %+v", gotMx.Grades)
	}
	if b := grade.Resolve(85, gotMx.Grades); b == nil || b.Label != "Sangat Baik" {
		t.Fatalf("resolve on stored bands: %+v", b)
	}
	if err := store.DeleteMatrix(ctx, "mx-1"); err != nil {
		t.Fatalf("delete matrix: %v", err)
	}
	if _, err := store.GetMatrix(ctx, "mx-1"); !errors.Is(err, assessment.ErrNotFound) {
		t.Fatalf("get deleted matrix: %v, want ErrNotFound", err)
	}
}
