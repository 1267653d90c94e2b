package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sepakat-app/sepakat/internal/grade"
	"github.com/sepakat-app/sepakat/internal/rubric"
)

// SQLStore persists assessments, templates and weight matrices. Nested
// structures live in JSON document columns; the row is the unit of
// persistence and of write serialization.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

const assessmentCols = `id,candidate,main_reviewer,peer_reviewers,template_id,weight_matrix_id,status,
	validator,validator_status,validator_note,admin_peer,admin_peer_input,
	main_reviewer_note,main_json,peers_json,final_score,created_at`

func (s *SQLStore) Put(ctx context.Context, a Assessment) error {
	peers, err := json.Marshal(a.PeerReviewers)
	if err != nil {
		return err
	}
	if a.PeerAssessments == nil {
		a.PeerAssessments = EntrySet{}
	}
	peerEntries, err := json.Marshal(a.PeerAssessments)
	if err != nil {
		return err
	}
	var mainJSON sql.NullString
	if a.MainAssessment != nil {
		b, err := json.Marshal(a.MainAssessment)
		if err != nil {
			return err
		}
		mainJSON = sql.NullString{String: string(b), Valid: true}
	}
	var adminPeerJSON sql.NullString
	if a.AdminPeerInput != nil {
		b, err := json.Marshal(a.AdminPeerInput)
		if err != nil {
			return err
		}
		adminPeerJSON = sql.NullString{String: string(b), Valid: true}
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	if a.ValidatorStatus == "" {
		a.ValidatorStatus = ValidatorPending
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO assessments (`+assessmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			candidate=EXCLUDED.candidate,
			main_reviewer=EXCLUDED.main_reviewer,
			peer_reviewers=EXCLUDED.peer_reviewers,
			template_id=EXCLUDED.template_id,
			weight_matrix_id=EXCLUDED.weight_matrix_id,
			status=EXCLUDED.status,
			validator=EXCLUDED.validator,
			validator_status=EXCLUDED.validator_status,
			validator_note=EXCLUDED.validator_note,
			admin_peer=EXCLUDED.admin_peer,
			admin_peer_input=EXCLUDED.admin_peer_input,
			main_reviewer_note=EXCLUDED.main_reviewer_note,
			main_json=EXCLUDED.main_json,
			peers_json=EXCLUDED.peers_json,
			final_score=EXCLUDED.final_score`,
		a.ID, a.Candidate, a.MainReviewer, string(peers), a.TemplateID, a.WeightMatrixID,
		string(a.Status), a.Validator, string(a.ValidatorStatus), a.ValidatorNote,
		a.AdminPeer, adminPeerJSON, a.MainReviewerNote, mainJSON, string(peerEntries),
		a.FinalScore, a.CreatedAt)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Assessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id=$1`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(r rowScanner) (Assessment, error) {
	var a Assessment
	var peers, peerEntries, status, validatorStatus string
	var mainJSON, adminPeerJSON sql.NullString
	if err := r.Scan(&a.ID, &a.Candidate, &a.MainReviewer, &peers, &a.TemplateID, &a.WeightMatrixID,
		&status, &a.Validator, &validatorStatus, &a.ValidatorNote,
		&a.AdminPeer, &adminPeerJSON, &a.MainReviewerNote, &mainJSON, &peerEntries,
		&a.FinalScore, &a.CreatedAt); err != nil {
		return Assessment{}, err
	}
	a.Status = Status(status)
	a.ValidatorStatus = ValidatorStatus(validatorStatus)
	if err := json.Unmarshal([]byte(peers), &a.PeerReviewers); err != nil {
		return Assessment{}, err
	}
	if err := json.Unmarshal([]byte(peerEntries), &a.PeerAssessments); err != nil {
		return Assessment{}, err
	}
	if mainJSON.Valid {
		a.MainAssessment = &Entry{}
		if err := json.Unmarshal([]byte(mainJSON.String), a.MainAssessment); err != nil {
			return Assessment{}, err
		}
	}
	if adminPeerJSON.Valid {
		a.AdminPeerInput = &AdminPeerInput{}
		if err := json.Unmarshal([]byte(adminPeerJSON.String), a.AdminPeerInput); err != nil {
			return Assessment{}, err
		}
	}
	return a, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Assessment, error) {
	q := `SELECT ` + assessmentCols + ` FROM assessments WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Candidate != "" {
		q += ` AND candidate=` + arg(opts.Candidate)
	}
	if opts.MainReviewer != "" {
		q += ` AND main_reviewer=` + arg(opts.MainReviewer)
	}
	if opts.PeerReviewer != "" {
		// peer_reviewers is a JSON array of quoted ids
		q += ` AND peer_reviewers LIKE ` + arg(`%"`+opts.PeerReviewer+`"%`)
	}
	if opts.Validator != "" {
		q += ` AND validator=` + arg(opts.Validator)
	}
	if opts.AdminPeer != "" {
		q += ` AND admin_peer=` + arg(opts.AdminPeer)
	}
	if opts.TemplateID != "" {
		q += ` AND template_id=` + arg(opts.TemplateID)
	}
	q += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ` + arg(opts.Limit)
		if opts.Offset > 0 {
			q += ` OFFSET ` + arg(opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- templates ---

func (s *SQLStore) PutTemplate(ctx context.Context, t rubric.Template) error {
	cj, err := json.Marshal(t.Components)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO templates (id,name,components_json,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, components_json=EXCLUDED.components_json, is_active=EXCLUDED.is_active`,
		t.ID, t.Name, string(cj), t.IsActive, time.Now().Unix())
	return err
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (rubric.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,components_json,is_active FROM templates WHERE id=$1`, id)
	var t rubric.Template
	var cj string
	if err := row.Scan(&t.ID, &t.Name, &cj, &t.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rubric.Template{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
		}
		return rubric.Template{}, err
	}
	if err := json.Unmarshal([]byte(cj), &t.Components); err != nil {
		return rubric.Template{}, err
	}
	return t, nil
}

func (s *SQLStore) ListTemplates(ctx context.Context, activeOnly bool) ([]rubric.Template, error) {
	q := `SELECT id,name,components_json,is_active FROM templates`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []rubric.Template{}
	for rows.Next() {
		var t rubric.Template
		var cj string
		if err := rows.Scan(&t.ID, &t.Name, &cj, &t.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cj), &t.Components); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id=$1`, id)
	return err
}

// --- weight matrices ---

func (s *SQLStore) PutMatrix(ctx context.Context, m grade.Matrix) error {
	gj, err := json.Marshal(m.Grades)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO weight_matrices (id,name,grades_json,is_active,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, grades_json=EXCLUDED.grades_json, is_active=EXCLUDED.is_active`,
		m.ID, m.Name, string(gj), m.IsActive, time.Now().Unix())
	return err
}

func (s *SQLStore) GetMatrix(ctx context.Context, id string) (grade.Matrix, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,grades_json,is_active FROM weight_matrices WHERE id=$1`, id)
	var m grade.Matrix
	var gj string
	if err := row.Scan(&m.ID, &m.Name, &gj, &m.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grade.Matrix{}, fmt.Errorf("weight matrix %s: %w", id, ErrNotFound)
		}
		return grade.Matrix{}, err
	}
	if err := json.Unmarshal([]byte(gj), &m.Grades); err != nil {
		return grade.Matrix{}, err
	}
	return m, nil
}

func (s *SQLStore) ListMatrices(ctx context.Context, activeOnly bool) ([]grade.Matrix, error) {
	q := `SELECT id,name,grades_json,is_active FROM weight_matrices`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []grade.Matrix{}
	for rows.Next() {
		var m grade.Matrix
		var gj string
		if err := rows.Scan(&m.ID, &m.Name, &gj, &m.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(gj), &m.Grades); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteMatrix(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM weight_matrices WHERE id=$1`, id)
	return err
}
