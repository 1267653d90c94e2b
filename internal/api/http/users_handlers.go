package http

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type userRow struct {
	ID        string `json:"id,omitempty"`
	Nama      string `json:"nama"`
	NIP       string `json:"nip"`
	NRK       string `json:"nrk"`
	Jabatan   string `json:"jabatan"`
	UnitKerja string `json:"unit_kerja"`
	Wilayah   string `json:"wilayah"`
	Role      string `json:"role"`            // usually "user"
	Token     string `json:"token,omitempty"` // issued, never imported
}

// newLoginToken mints the short opaque access token an administrator hands
// to a reviewer.
func newLoginToken() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

// POST /admin/users/bulk
// Accepts either multipart file= (CSV/JSON) or a raw JSON array in the body.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			// sniff simple CSV vs JSON by first non-space byte
			buf := make([]byte, 1)
			if _, err := f.Read(buf); err != nil {
				http.Error(w, "empty file", http.StatusBadRequest)
				return
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				http.Error(w, "seek: "+err.Error(), http.StatusInternalServerError)
				return
			}
			if buf[0] == '[' || buf[0] == '{' {
				if err := json.NewDecoder(f).Decode(&rows); err != nil {
					http.Error(w, "bad json", http.StatusBadRequest)
					return
				}
			} else {
				rs, err := parseUsersCSV(f)
				if err != nil {
					http.Error(w, "bad csv: "+err.Error(), http.StatusBadRequest)
					return
				}
				rows = rs
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
				http.Error(w, "expected JSON array or multipart file", http.StatusBadRequest)
				return
			}
		}
		if len(rows) == 0 {
			_ = json.NewEncoder(w).Encode(map[string]any{"inserted": 0, "updated": 0})
			return
		}

		ins, upd, err := upsertUsers(r.Context(), db, rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"inserted": ins, "updated": upd})
	}
}

// GET /admin/users?role=user
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		var rows *sql.Rows
		var err error
		if role == "" {
			rows, err = db.QueryContext(r.Context(), `SELECT id,nama,nip,nrk,jabatan,unit_kerja,wilayah,role,token FROM users ORDER BY nama`)
		} else {
			rows, err = db.QueryContext(r.Context(), `SELECT id,nama,nip,nrk,jabatan,unit_kerja,wilayah,role,token FROM users WHERE role=$1 ORDER BY nama`, role)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Nama, &u.NIP, &u.NRK, &u.Jabatan, &u.UnitKerja, &u.Wilayah, &u.Role, &u.Token); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

// POST /admin/users/{userID}/refresh-token
func RefreshTokenHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "userID"))
		token := newLoginToken()
		res, err := db.ExecContext(r.Context(), `UPDATE users SET token=$1 WHERE id=$2`, token, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "token": token})
	}
}

// POST /admin/users/refresh-all-tokens
func RefreshAllTokensHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(), `SELECT id FROM users WHERE role='user'`)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ids := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, id := range ids {
			if _, err := db.ExecContext(r.Context(), `UPDATE users SET token=$1 WHERE id=$2`, newLoginToken(), id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"refreshed": len(ids)})
	}
}

func parseUsersCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	required := []string{"nama", "nip", "nrk", "jabatan", "unit_kerja", "wilayah"}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{
			Nama:      rec[idx["nama"]],
			NIP:       rec[idx["nip"]],
			NRK:       rec[idx["nrk"]],
			Jabatan:   rec[idx["jabatan"]],
			UnitKerja: rec[idx["unit_kerja"]],
			Wilayah:   rec[idx["wilayah"]],
		}
		if i, ok := idx["id"]; ok {
			row.ID = rec[i]
		}
		if i, ok := idx["role"]; ok {
			row.Role = strings.ToLower(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	for _, r := range rows {
		if r.Role == "" {
			r.Role = "user"
		}
		if r.Role != "user" && r.Role != "admin" {
			return inserted, updated, errors.New("invalid role: " + r.Role)
		}
		if r.NIP == "" {
			return inserted, updated, errors.New("nip required for user: " + r.Nama)
		}

		// Match existing users by id or the unique NIP.
		var existingID string
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR nip=$2`, r.ID, r.NIP).Scan(&existingID)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET nama=$1, nip=$2, nrk=$3, jabatan=$4, unit_kerja=$5, wilayah=$6, role=$7 WHERE id=$8`,
				r.Nama, r.NIP, r.NRK, r.Jabatan, r.UnitKerja, r.Wilayah, r.Role, existingID)
			if err != nil {
				return inserted, updated, err
			}
			updated++
		case errors.Is(err, sql.ErrNoRows):
			id := r.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, nama, nip, nrk, jabatan, unit_kerja, wilayah, role, token) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				id, r.Nama, r.NIP, r.NRK, r.Jabatan, r.UnitKerja, r.Wilayah, r.Role, newLoginToken())
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		default:
			return inserted, updated, err
		}
	}
	return
}

// GET /seed
// Bootstraps a demo installation: one admin row plus thirty reviewers with
// predictable tokens (user1..user30). Re-running skips rows that exist.
func SeedHandler(db *sql.DB) http.HandlerFunc {
	jabatans := []string{"Guru", "Kepala Sekolah", "Pengawas", "Staff TU"}
	units := []string{"SMAN 1", "SMAN 2", "SMAN 3", "SMPN 1", "SMPN 2"}
	wilayahs := []string{"Jakarta Pusat", "Jakarta Selatan", "Jakarta Barat", "Jakarta Timur", "Jakarta Utara"}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		created := 0

		var adminCount int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role='admin'`).Scan(&adminCount); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if adminCount == 0 {
			_, err := db.ExecContext(ctx,
				`INSERT INTO users (id, nama, nip, nrk, jabatan, unit_kerja, wilayah, role, token)
				 VALUES ($1,'Administrator','ADMIN001','ADMIN001','System Admin','IT','Pusat','admin','admin-secret-token')`,
				uuid.NewString())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			created++
		}

		for i := 1; i <= 30; i++ {
			nip := fmt.Sprintf("198001012000%04d", i)
			var exists int
			err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE nip=$1`, nip).Scan(&exists)
			if err == nil {
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			_, err = db.ExecContext(ctx,
				`INSERT INTO users (id, nama, nip, nrk, jabatan, unit_kerja, wilayah, role, token)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,'user',$8)`,
				uuid.NewString(),
				fmt.Sprintf("User Peserta %d", i),
				nip,
				fmt.Sprintf("NRK%04d", i),
				jabatans[i%len(jabatans)],
				units[i%len(units)],
				wilayahs[i%len(wilayahs)],
				fmt.Sprintf("user%d", i))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			created++
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"created": created})
	}
}
