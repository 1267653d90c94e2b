package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventRepo appends workflow mutations to the audit log. Append failures are
// logged, not propagated: the log is an observer of the workflow, not a
// participant in it.
type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db, siteID: "local"} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Record satisfies the workflow's event sink.
func (r *EventRepo) Record(ctx context.Context, typ, key string, data interface{}) {
	buf, err := json.Marshal(data)
	if err != nil {
		buf = []byte("{}")
	}
	if err := r.Append(ctx, Event{SiteID: r.siteID, Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		log.Printf("event log append %s %s: %v", typ, key, err)
	}
}
