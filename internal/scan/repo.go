package scan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"admission/internal/errs"
	"admission/internal/store"
)

// Repository persists scan data in Postgres.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

var _ Repo = (*Repository)(nil)

// VolunteerAssigned reports whether the volunteer is assigned to the event.
func (r *Repository) VolunteerAssigned(ctx context.Context, eventID, volunteerID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM event_volunteers WHERE event_id = $1 AND volunteer_id = $2
		)
	`, eventID, volunteerID).Scan(&exists)
	return exists, err
}

// HasConfirmedRegistration reports whether the subject holds a CONFIRMED
// registration for the event.
func (r *Repository) HasConfirmedRegistration(ctx context.Context, subjectKey, eventID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM registrations
			WHERE subject_key = $1 AND event_id = $2 AND status = 'CONFIRMED'
		)
	`, subjectKey, eventID).Scan(&exists)
	return exists, err
}

// EventAllowsWalkIn reports the event's walk-in policy.
func (r *Repository) EventAllowsWalkIn(ctx context.Context, eventID string) (bool, error) {
	var allow bool
	err := r.db.Pool.QueryRow(ctx, `SELECT allow_walk_in FROM events WHERE id = $1`, eventID).Scan(&allow)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, errs.ErrNotFound
	}
	return allow, err
}

// Append classifies and inserts the next scan for (subject, event) inside a
// transaction. The pair's latest row is locked, the new row takes seq+1, and
// the UNIQUE(subject_key, event_id, seq) constraint backstops any concurrent
// insert that slipped past the lock; a violation maps to ErrOrderingConflict
// so the caller re-reads state instead of guessing a transition.
func (r *Repository) Append(ctx context.Context, subjectKey, eventID, volunteerID string, at time.Time) (rec Record, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const last = `
		SELECT seq, kind, scanned_at FROM scan_records
		WHERE subject_key = $1 AND event_id = $2
		ORDER BY seq DESC LIMIT 1
		FOR UPDATE`

	rec = Record{
		ID:          uuid.NewString(),
		SubjectKey:  subjectKey,
		EventID:     eventID,
		VolunteerID: volunteerID,
		Seq:         1,
		Kind:        KindEntry,
		ScannedAt:   at.UTC(),
	}

	var (
		prevSeq  int64
		prevKind Kind
		prevAt   time.Time
	)
	scanErr := tx.QueryRow(ctx, last, subjectKey, eventID).Scan(&prevSeq, &prevKind, &prevAt)
	switch {
	case scanErr == nil:
		rec.Seq = prevSeq + 1
		if prevKind == KindEntry {
			rec.Kind = KindExit
			d := int64(rec.ScannedAt.Sub(prevAt) / time.Second)
			rec.DurationSeconds = &d
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		// first scan for the pair
	default:
		return Record{}, scanErr
	}

	const ins = `
		INSERT INTO scan_records (id, subject_key, event_id, volunteer_id, seq, kind, scanned_at, duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`
	if err = tx.QueryRow(ctx, ins,
		rec.ID, rec.SubjectKey, rec.EventID, rec.VolunteerID,
		rec.Seq, rec.Kind, rec.ScannedAt, rec.DurationSeconds,
	).Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, errs.ErrOrderingConflict
		}
		return Record{}, err
	}

	if err = r.bumpTotals(ctx, tx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// bumpTotals maintains the per-pair aggregates: visits on the first ENTRY,
// accumulated seconds on every EXIT.
func (r *Repository) bumpTotals(ctx context.Context, tx pgx.Tx, rec Record) error {
	switch {
	case rec.Kind == KindEntry && rec.Seq == 1:
		_, err := tx.Exec(ctx, `
			INSERT INTO attendance_totals (subject_key, event_id, total_seconds, visits)
			VALUES ($1, $2, 0, 1)
			ON CONFLICT (subject_key, event_id)
			DO UPDATE SET visits = attendance_totals.visits + 1
		`, rec.SubjectKey, rec.EventID)
		return err
	case rec.Kind == KindExit:
		_, err := tx.Exec(ctx, `
			INSERT INTO attendance_totals (subject_key, event_id, total_seconds, visits)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (subject_key, event_id)
			DO UPDATE SET total_seconds = attendance_totals.total_seconds + $3
		`, rec.SubjectKey, rec.EventID, *rec.DurationSeconds)
		return err
	}
	return nil
}

// ListRecords returns scan records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, subjectKey, eventID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, subject_key, event_id, volunteer_id, seq, kind, scanned_at, duration_seconds, created_at
		FROM scan_records
		WHERE ($1 = '' OR subject_key = $1)
		  AND ($2 = '' OR event_id = $2)
		ORDER BY scanned_at DESC
		LIMIT $3 OFFSET $4
	`, subjectKey, eventID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SubjectKey, &rec.EventID, &rec.VolunteerID,
			&rec.Seq, &rec.Kind, &rec.ScannedAt, &rec.DurationSeconds, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Totals returns the running aggregate for a (subject, event) pair.
func (r *Repository) Totals(ctx context.Context, subjectKey, eventID string) (Totals, error) {
	var t Totals
	err := r.db.Pool.QueryRow(ctx, `
		SELECT subject_key, event_id, total_seconds, visits
		FROM attendance_totals WHERE subject_key = $1 AND event_id = $2
	`, subjectKey, eventID).Scan(&t.SubjectKey, &t.EventID, &t.TotalSeconds, &t.Visits)
	if errors.Is(err, pgx.ErrNoRows) {
		return Totals{}, errs.ErrNotFound
	}
	return t, err
}

// SaveStallCredential stores an issued static credential so the warmer can
// re-render it. Re-issuing a stall replaces the printed credential.
func (r *Repository) SaveStallCredential(ctx context.Context, stallKey, credential string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO stalls (stall_key, credential)
		VALUES ($1, $2)
		ON CONFLICT (stall_key) DO UPDATE SET credential = EXCLUDED.credential
	`, stallKey, credential)
	return err
}

// StallCredentials returns every issued static credential.
func (r *Repository) StallCredentials(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT credential FROM stalls ORDER BY stall_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var creds []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// RegisteredSubjects returns the distinct subject keys with a confirmed
// registration for any event; the warmer pre-renders their current tokens.
func (r *Repository) RegisteredSubjects(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT subject_key FROM registrations WHERE status = 'CONFIRMED' ORDER BY subject_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
