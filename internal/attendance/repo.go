package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"geoattend/internal/geo"
	"geoattend/internal/store"
)

// Repository persists attendance data through sqlx. Queries are written with
// ? placeholders and rebound for the driver in use.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type sheetRow struct {
	ID          string    `db:"id"`
	ReportID    string    `db:"report_id"`
	ClassName   string    `db:"class_name"`
	DateCreated string    `db:"date_created"`
	SecretKey   string    `db:"secret_key"`
	IsActive    bool      `db:"is_active"`
	CenterLat   *float64  `db:"center_lat"`
	CenterLng   *float64  `db:"center_lng"`
	MaxRadius   *float64  `db:"max_radius_m"`
	OwnerID     string    `db:"owner_id"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r sheetRow) sheet() Sheet {
	s := Sheet{
		ID:              r.ID,
		ReportID:        r.ReportID,
		ClassName:       r.ClassName,
		DateCreated:     r.DateCreated,
		SecretKey:       r.SecretKey,
		IsActive:        r.IsActive,
		MaxRadiusMeters: r.MaxRadius,
		OwnerID:         r.OwnerID,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	s.Center = coordinate(r.CenterLat, r.CenterLng)
	return s
}

type recordRow struct {
	ID             string    `db:"id"`
	SheetID        string    `db:"sheet_id"`
	StudentID      string    `db:"student_id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	SignedInAt     time.Time `db:"signed_in_at"`
	Lat            *float64  `db:"lat"`
	Lng            *float64  `db:"lng"`
	LocationDenied bool      `db:"location_denied"`
	Fingerprint    string    `db:"fingerprint"`
}

func (r recordRow) record() Record {
	return Record{
		ID:             r.ID,
		SheetID:        r.SheetID,
		Identity:       Identity{FirstName: r.FirstName, LastName: r.LastName, StudentID: r.StudentID},
		SignedInAt:     r.SignedInAt.UTC(),
		Location:       coordinate(r.Lat, r.Lng),
		LocationDenied: r.LocationDenied,
		Fingerprint:    r.Fingerprint,
	}
}

type denialRow struct {
	SheetID     string    `db:"sheet_id"`
	StudentID   string    `db:"student_id"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	Fingerprint string    `db:"fingerprint"`
	DeniedAt    time.Time `db:"denied_at"`
}

type flagRow struct {
	SheetID     string    `db:"sheet_id"`
	Fingerprint string    `db:"fingerprint"`
	StudentIDs  string    `db:"student_ids"`
	FlaggedAt   time.Time `db:"flagged_at"`
}

const sheetColumns = `id, report_id, class_name, date_created, secret_key, is_active, center_lat, center_lng, max_radius_m, owner_id, created_at`

const recordColumns = `id, sheet_id, student_id, first_name, last_name, signed_in_at, lat, lng, location_denied, fingerprint`

// InsertSheet writes a new sheet, filling ID and CreatedAt when empty. An
// active sheet closes the owner's other sheets in the same transaction.
func (r *Repository) InsertSheet(ctx context.Context, s Sheet) (Sheet, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Sheet{}, err
	}
	defer tx.Rollback()

	if s.IsActive {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE sheets SET is_active = ? WHERE owner_id = ?
		`), false, s.OwnerID); err != nil {
			return Sheet{}, err
		}
	}
	lat, lng := split(s.Center)
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sheets (`+sheetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.ReportID, s.ClassName, s.DateCreated, s.SecretKey, s.IsActive, lat, lng, s.MaxRadiusMeters, s.OwnerID, s.CreatedAt)
	if err != nil {
		return Sheet{}, err
	}
	if err := tx.Commit(); err != nil {
		return Sheet{}, err
	}
	return s, nil
}

// GetSheet returns a single sheet by id.
func (r *Repository) GetSheet(ctx context.Context, id string) (Sheet, error) {
	var row sheetRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+sheetColumns+` FROM sheets WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sheet{}, ErrSheetNotFound
		}
		return Sheet{}, err
	}
	return row.sheet(), nil
}

// ListSheets returns the owner's sheets, newest first.
func (r *Repository) ListSheets(ctx context.Context, ownerID string) ([]Sheet, error) {
	var rows []sheetRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+sheetColumns+` FROM sheets
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`), ownerID)
	if err != nil {
		return nil, err
	}
	sheets := make([]Sheet, 0, len(rows))
	for _, row := range rows {
		sheets = append(sheets, row.sheet())
	}
	return sheets, nil
}

// UpdateSheet overwrites the editable columns.
func (r *Repository) UpdateSheet(ctx context.Context, s Sheet) error {
	lat, lng := split(s.Center)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sheets
		SET class_name = ?, date_created = ?, secret_key = ?, center_lat = ?, center_lng = ?, max_radius_m = ?
		WHERE id = ?
	`), s.ClassName, s.DateCreated, s.SecretKey, lat, lng, s.MaxRadiusMeters, s.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// DeleteSheet removes the sheet and everything recorded against it.
func (r *Repository) DeleteSheet(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"fingerprint_flags", "location_denials", "attendance_records"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE sheet_id = ?`), id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sheets WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ActivateSheet marks id active and closes the owner's other sheets.
func (r *Repository) ActivateSheet(ctx context.Context, ownerID, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE sheets SET is_active = ? WHERE owner_id = ? AND id <> ?
	`), false, ownerID, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE sheets SET is_active = ? WHERE owner_id = ? AND id = ?
	`), true, ownerID, id)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// SetSheetActive flips a single sheet's flag.
func (r *Repository) SetSheetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE sheets SET is_active = ? WHERE id = ?`), active, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// StudentKeys returns the (sheet, student) pairs already admitted for a sheet.
func (r *Repository) StudentKeys(ctx context.Context, sheetID string) (KeySet, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT student_id FROM attendance_records WHERE sheet_id = ?`), sheetID)
	if err != nil {
		return nil, err
	}
	ks := make(KeySet, len(ids))
	for _, id := range ids {
		ks.Add(Key{SheetID: sheetID, StudentID: id})
	}
	return ks, nil
}

// InsertRecord writes an admitted record, filling ID and SignedInAt when
// empty. The UNIQUE (sheet_id, student_id) constraint turns a concurrent
// duplicate into ErrDuplicateSubmission.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SignedInAt.IsZero() {
		rec.SignedInAt = time.Now().UTC()
	}
	lat, lng := split(rec.Location)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.SheetID, rec.StudentID, rec.FirstName, rec.LastName, rec.SignedInAt, lat, lng, rec.LocationDenied, rec.Fingerprint)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, ErrDuplicateSubmission
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns a sheet's records in sign-in order.
func (r *Repository) ListRecords(ctx context.Context, sheetID string) ([]Record, error) {
	return r.selectRecords(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE sheet_id = ? ORDER BY signed_in_at ASC`, sheetID)
}

// RecordsByFingerprint returns a sheet's records submitted from one device.
func (r *Repository) RecordsByFingerprint(ctx context.Context, sheetID, fingerprint string) ([]Record, error) {
	return r.selectRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE sheet_id = ? AND fingerprint = ?
		ORDER BY signed_in_at ASC
	`, sheetID, fingerprint)
}

func (r *Repository) selectRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

// SaveDenial upserts the denial marker for a (sheet, student) pair.
func (r *Repository) SaveDenial(ctx context.Context, d Denial) (Denial, error) {
	if d.DeniedAt.IsZero() {
		d.DeniedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO location_denials (sheet_id, student_id, first_name, last_name, fingerprint, denied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sheet_id, student_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			fingerprint = EXCLUDED.fingerprint,
			denied_at = EXCLUDED.denied_at
	`), d.SheetID, d.StudentID, d.FirstName, d.LastName, d.Fingerprint, d.DeniedAt)
	if err != nil {
		return Denial{}, err
	}
	return d, nil
}

// ListDenials returns a sheet's denial markers, latest first.
func (r *Repository) ListDenials(ctx context.Context, sheetID string) ([]Denial, error) {
	var rows []denialRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT sheet_id, student_id, first_name, last_name, fingerprint, denied_at
		FROM location_denials WHERE sheet_id = ?
		ORDER BY denied_at DESC
	`), sheetID)
	if err != nil {
		return nil, err
	}
	out := make([]Denial, 0, len(rows))
	for _, row := range rows {
		out = append(out, Denial{
			SheetID:     row.SheetID,
			Identity:    Identity{FirstName: row.FirstName, LastName: row.LastName, StudentID: row.StudentID},
			Fingerprint: row.Fingerprint,
			DeniedAt:    row.DeniedAt.UTC(),
		})
	}
	return out, nil
}

// SaveFlag upserts a fingerprint flag.
func (r *Repository) SaveFlag(ctx context.Context, f FingerprintFlag) error {
	if f.FlaggedAt.IsZero() {
		f.FlaggedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO fingerprint_flags (sheet_id, fingerprint, student_ids, flagged_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (sheet_id, fingerprint) DO UPDATE SET
			student_ids = EXCLUDED.student_ids,
			flagged_at = EXCLUDED.flagged_at
	`), f.SheetID, f.Fingerprint, strings.Join(f.StudentIDs, ","), f.FlaggedAt)
	return err
}

// ListFlags returns a sheet's fingerprint flags.
func (r *Repository) ListFlags(ctx context.Context, sheetID string) ([]FingerprintFlag, error) {
	var rows []flagRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT sheet_id, fingerprint, student_ids, flagged_at
		FROM fingerprint_flags WHERE sheet_id = ?
		ORDER BY flagged_at DESC
	`), sheetID)
	if err != nil {
		return nil, err
	}
	out := make([]FingerprintFlag, 0, len(rows))
	for _, row := range rows {
		out = append(out, FingerprintFlag{
			SheetID:     row.SheetID,
			Fingerprint: row.Fingerprint,
			StudentIDs:  strings.Split(row.StudentIDs, ","),
			FlaggedAt:   row.FlaggedAt.UTC(),
		})
	}
	return out, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSheetNotFound
	}
	return nil
}

func coordinate(lat, lng *float64) *geo.Coordinate {
	if lat == nil || lng == nil {
		return nil
	}
	return &geo.Coordinate{Lat: *lat, Lng: *lng}
}

func split(c *geo.Coordinate) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lng
}
