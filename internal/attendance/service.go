package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/geo"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// Queue event types published after a sign-in is stored.
const (
	EventAdmitted = "signin.admitted"
	EventDenied   = "signin.denied"
)

// ErrInvalidSheet wraps validation failures on sheet input.
var ErrInvalidSheet = errors.New("invalid sheet")

const (
	dateLayout    = "2006-01-02"
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	reportIDChars = 5
)

// SheetStore persists sheets.
type SheetStore interface {
	// InsertSheet stores s. When s.IsActive it also closes the owner's other
	// sheets, atomically with the insert.
	InsertSheet(ctx context.Context, s Sheet) (Sheet, error)
	GetSheet(ctx context.Context, id string) (Sheet, error)
	ListSheets(ctx context.Context, ownerID string) ([]Sheet, error)
	UpdateSheet(ctx context.Context, s Sheet) error
	DeleteSheet(ctx context.Context, id string) error
	// ActivateSheet marks id active and every other sheet of ownerID inactive.
	ActivateSheet(ctx context.Context, ownerID, id string) error
	SetSheetActive(ctx context.Context, id string, active bool) error
}

// RecordStore persists admitted records, denial markers and fingerprint flags.
type RecordStore interface {
	StudentKeys(ctx context.Context, sheetID string) (KeySet, error)
	// InsertRecord returns ErrDuplicateSubmission when the pair already exists.
	InsertRecord(ctx context.Context, r Record) (Record, error)
	ListRecords(ctx context.Context, sheetID string) ([]Record, error)
	RecordsByFingerprint(ctx context.Context, sheetID, fingerprint string) ([]Record, error)
	SaveDenial(ctx context.Context, d Denial) (Denial, error)
	ListDenials(ctx context.Context, sheetID string) ([]Denial, error)
	SaveFlag(ctx context.Context, f FingerprintFlag) error
	ListFlags(ctx context.Context, sheetID string) ([]FingerprintFlag, error)
}

// Publisher hands events to the worker.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// SignInEvent is the body of EventAdmitted and EventDenied messages.
type SignInEvent struct {
	SheetID     string    `json:"sheet_id"`
	RecordID    string    `json:"record_id,omitempty"`
	StudentID   string    `json:"student_id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Status      Status    `json:"status,omitempty"`
	At          time.Time `json:"at"`
}

// SheetInput is what an instructor submits to create a sheet.
type SheetInput struct {
	ClassName       string
	DateCreated     string
	SecretKey       string
	IsActive        bool
	Center          *geo.Coordinate
	MaxRadiusMeters *float64
}

// SheetPatch changes selected fields of a sheet. ClearGeofence wins over
// Center and MaxRadiusMeters.
type SheetPatch struct {
	ClassName       *string
	DateCreated     *string
	SecretKey       *string
	Center          *geo.Coordinate
	MaxRadiusMeters *float64
	ClearGeofence   bool
}

// SheetLog is everything the instructor log page shows for one sheet.
type SheetLog struct {
	Sheet   Sheet             `json:"sheet"`
	Summary Summary           `json:"summary"`
	Entries []Entry           `json:"entries"`
	Denials []Denial          `json:"denials"`
	Flags   []FingerprintFlag `json:"flags"`
}

// Service coordinates sheets, sign-ins and logs.
type Service struct {
	sheets       SheetStore
	records      RecordStore
	pub          Publisher
	logger       *zap.Logger
	secretKeyLen int
	now          func() time.Time
}

// NewService creates a service. pub may be nil when no worker is running.
func NewService(sheets SheetStore, records RecordStore, pub Publisher, logger *zap.Logger, secretKeyLen int) *Service {
	if secretKeyLen <= 0 {
		secretKeyLen = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sheets:       sheets,
		records:      records,
		pub:          pub,
		logger:       logger,
		secretKeyLen: secretKeyLen,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateSheet validates input and stores a new sheet for ownerID.
func (s *Service) CreateSheet(ctx context.Context, ownerID string, in SheetInput) (Sheet, error) {
	if ownerID == "" {
		return Sheet{}, fmt.Errorf("%w: owner required", ErrInvalidSheet)
	}
	sh := Sheet{
		ClassName:       strings.TrimSpace(in.ClassName),
		DateCreated:     strings.TrimSpace(in.DateCreated),
		SecretKey:       strings.TrimSpace(in.SecretKey),
		IsActive:        in.IsActive,
		Center:          in.Center,
		MaxRadiusMeters: in.MaxRadiusMeters,
		OwnerID:         ownerID,
	}
	if sh.DateCreated == "" {
		sh.DateCreated = s.now().Format(dateLayout)
	}
	if sh.SecretKey == "" {
		key, err := randomCode(s.secretKeyLen)
		if err != nil {
			return Sheet{}, fmt.Errorf("generate secret key: %w", err)
		}
		sh.SecretKey = key
	}
	if err := validateSheet(sh); err != nil {
		return Sheet{}, err
	}
	rid, err := randomCode(reportIDChars)
	if err != nil {
		return Sheet{}, fmt.Errorf("generate report id: %w", err)
	}
	sh.ReportID = "RPT-" + rid

	created, err := s.sheets.InsertSheet(ctx, sh)
	if err != nil {
		return Sheet{}, fmt.Errorf("insert sheet: %w", err)
	}
	metrics.SheetsCreated.Inc()
	s.logger.Info("sheet created",
		zap.String("sheet_id", created.ID),
		zap.String("owner_id", ownerID),
		zap.Bool("geofenced", created.Geofence() != nil),
		zap.Bool("active", created.IsActive))
	return created, nil
}

// ListSheets returns ownerID's sheets.
func (s *Service) ListSheets(ctx context.Context, ownerID string) ([]Sheet, error) {
	return s.sheets.ListSheets(ctx, ownerID)
}

// OwnedSheet returns the sheet if ownerID owns it, ErrSheetNotFound otherwise.
func (s *Service) OwnedSheet(ctx context.Context, ownerID, id string) (Sheet, error) {
	sh, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return Sheet{}, err
	}
	if sh.OwnerID != ownerID {
		return Sheet{}, ErrSheetNotFound
	}
	return sh, nil
}

// PublicSheet returns a sheet students may sign in to. Inactive sheets are hidden.
func (s *Service) PublicSheet(ctx context.Context, id string) (Sheet, error) {
	sh, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return Sheet{}, err
	}
	if !sh.IsActive {
		return Sheet{}, ErrSheetNotFound
	}
	return sh, nil
}

// UpdateSheet applies patch to an owned sheet.
func (s *Service) UpdateSheet(ctx context.Context, ownerID, id string, patch SheetPatch) (Sheet, error) {
	sh, err := s.OwnedSheet(ctx, ownerID, id)
	if err != nil {
		return Sheet{}, err
	}
	if patch.ClassName != nil {
		sh.ClassName = strings.TrimSpace(*patch.ClassName)
	}
	if patch.DateCreated != nil {
		sh.DateCreated = strings.TrimSpace(*patch.DateCreated)
	}
	if patch.SecretKey != nil {
		sh.SecretKey = strings.TrimSpace(*patch.SecretKey)
	}
	if patch.Center != nil {
		sh.Center = patch.Center
	}
	if patch.MaxRadiusMeters != nil {
		sh.MaxRadiusMeters = patch.MaxRadiusMeters
	}
	if patch.ClearGeofence {
		sh.Center, sh.MaxRadiusMeters = nil, nil
	}
	if err := validateSheet(sh); err != nil {
		return Sheet{}, err
	}
	if err := s.sheets.UpdateSheet(ctx, sh); err != nil {
		return Sheet{}, fmt.Errorf("update sheet: %w", err)
	}
	return sh, nil
}

// DeleteSheet removes an owned sheet along with its records.
func (s *Service) DeleteSheet(ctx context.Context, ownerID, id string) error {
	if _, err := s.OwnedSheet(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.sheets.DeleteSheet(ctx, id); err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	s.logger.Info("sheet deleted", zap.String("sheet_id", id), zap.String("owner_id", ownerID))
	return nil
}

// SetActive opens or closes an owned sheet. Opening one closes the owner's others.
func (s *Service) SetActive(ctx context.Context, ownerID, id string, active bool) (Sheet, error) {
	sh, err := s.OwnedSheet(ctx, ownerID, id)
	if err != nil {
		return Sheet{}, err
	}
	if active {
		err = s.sheets.ActivateSheet(ctx, ownerID, id)
	} else {
		err = s.sheets.SetSheetActive(ctx, id, false)
	}
	if err != nil {
		return Sheet{}, fmt.Errorf("set sheet active: %w", err)
	}
	sh.IsActive = active
	return sh, nil
}

// SignIn evaluates a student's attempt and stores the outcome. A rejection is
// returned as a *Rejection; anything else is an infrastructure error.
func (s *Service) SignIn(ctx context.Context, sheetID string, attempt SubmissionAttempt) (Admission, error) {
	sh, err := s.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return Admission{}, err
	}
	existing, err := s.records.StudentKeys(ctx, sh.ID)
	if err != nil {
		return Admission{}, fmt.Errorf("load student keys: %w", err)
	}

	adm, err := EvaluateSubmission(attempt, sh, existing)
	if err != nil {
		if errors.Is(err, ErrLocationRequired) {
			s.recordDenial(ctx, DenialFor(attempt, sh))
		}
		s.rejected(sh.ID, attempt.StudentID, err)
		return Admission{}, err
	}

	rec, err := s.records.InsertRecord(ctx, adm.Record)
	if err != nil {
		// Lost a race with a concurrent submission for the same student.
		if errors.Is(err, ErrDuplicateSubmission) {
			s.rejected(sh.ID, attempt.StudentID, ErrDuplicateSubmission)
			return Admission{}, ErrDuplicateSubmission
		}
		return Admission{}, fmt.Errorf("insert record: %w", err)
	}
	adm.Record = rec

	metrics.Submissions.WithLabelValues("admitted").Inc()
	metrics.AdmittedByStatus.WithLabelValues(string(adm.Status)).Inc()
	s.logger.Info("sign-in admitted",
		zap.String("sheet_id", sh.ID),
		zap.String("student_id", rec.StudentID),
		zap.String("status", string(adm.Status)),
		zap.String("fingerprint", rec.Fingerprint))

	s.publish(ctx, EventAdmitted, SignInEvent{
		SheetID:     sh.ID,
		RecordID:    rec.ID,
		StudentID:   rec.StudentID,
		Fingerprint: rec.Fingerprint,
		Status:      adm.Status,
		At:          rec.SignedInAt,
	})
	return adm, nil
}

// Log builds the instructor view of an owned sheet, classifying every record
// against the sheet as it is now.
func (s *Service) Log(ctx context.Context, ownerID, id string) (SheetLog, error) {
	sh, err := s.OwnedSheet(ctx, ownerID, id)
	if err != nil {
		return SheetLog{}, err
	}
	recs, err := s.records.ListRecords(ctx, sh.ID)
	if err != nil {
		return SheetLog{}, fmt.Errorf("list records: %w", err)
	}
	denials, err := s.records.ListDenials(ctx, sh.ID)
	if err != nil {
		return SheetLog{}, fmt.Errorf("list denials: %w", err)
	}
	flags, err := s.records.ListFlags(ctx, sh.ID)
	if err != nil {
		return SheetLog{}, fmt.Errorf("list flags: %w", err)
	}
	return SheetLog{
		Sheet:   sh,
		Summary: Summarize(recs, sh),
		Entries: Review(recs, sh),
		Denials: denials,
		Flags:   flags,
	}, nil
}

// CheckFingerprint flags fp when more than one student on the sheet signed in
// with it. The flag is informational and does not change any status.
func (s *Service) CheckFingerprint(ctx context.Context, sheetID, fp string) (*FingerprintFlag, error) {
	if fp == "" {
		return nil, nil
	}
	recs, err := s.records.RecordsByFingerprint(ctx, sheetID, fp)
	if err != nil {
		return nil, fmt.Errorf("records by fingerprint: %w", err)
	}
	seen := make(map[string]bool)
	var students []string
	for _, r := range recs {
		if !seen[r.StudentID] {
			seen[r.StudentID] = true
			students = append(students, r.StudentID)
		}
	}
	if len(students) < 2 {
		return nil, nil
	}
	flag := FingerprintFlag{SheetID: sheetID, Fingerprint: fp, StudentIDs: students, FlaggedAt: s.now()}
	if err := s.records.SaveFlag(ctx, flag); err != nil {
		return nil, fmt.Errorf("save flag: %w", err)
	}
	metrics.FingerprintFlags.Inc()
	s.logger.Warn("fingerprint shared by several students",
		zap.String("sheet_id", sheetID),
		zap.String("fingerprint", fp),
		zap.Strings("student_ids", students))
	return &flag, nil
}

func (s *Service) recordDenial(ctx context.Context, d Denial) {
	saved, err := s.records.SaveDenial(ctx, d)
	if err != nil {
		s.logger.Error("save denial failed", zap.String("sheet_id", d.SheetID), zap.Error(err))
		return
	}
	s.publish(ctx, EventDenied, SignInEvent{
		SheetID:     saved.SheetID,
		StudentID:   saved.StudentID,
		Fingerprint: saved.Fingerprint,
		At:          saved.DeniedAt,
	})
}

func (s *Service) rejected(sheetID, studentID string, err error) {
	reason := "unknown"
	if r, ok := AsRejection(err); ok {
		reason = string(r.Reason)
	}
	metrics.Submissions.WithLabelValues(reason).Inc()
	s.logger.Info("sign-in rejected",
		zap.String("sheet_id", sheetID),
		zap.String("student_id", studentID),
		zap.String("reason", reason))
}

func (s *Service) publish(ctx context.Context, typ string, evt SignInEvent) {
	if s.pub == nil {
		return
	}
	msg, err := queue.NewMessage(typ, evt)
	if err == nil {
		err = s.pub.Publish(ctx, msg)
	}
	if err != nil {
		s.logger.Error("queue publish failed", zap.String("type", typ), zap.Error(err))
	}
}

func validateSheet(sh Sheet) error {
	if sh.ClassName == "" {
		return fmt.Errorf("%w: class_name is required", ErrInvalidSheet)
	}
	if _, err := time.Parse(dateLayout, sh.DateCreated); err != nil {
		return fmt.Errorf("%w: date_created must be YYYY-MM-DD", ErrInvalidSheet)
	}
	if sh.SecretKey == "" {
		return fmt.Errorf("%w: secret_key is required", ErrInvalidSheet)
	}
	if sh.Center != nil && !sh.Center.Valid() {
		return fmt.Errorf("%w: center is out of range", ErrInvalidSheet)
	}
	if r := sh.MaxRadiusMeters; r != nil && !validRadius(*r) {
		return fmt.Errorf("%w: max_radius_meters must be a non-negative number", ErrInvalidSheet)
	}
	return nil
}

func randomCode(n int) (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
