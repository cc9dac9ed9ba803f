package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/console"
	tenancy "axiapac.com/workforce/core"
	"axiapac.com/workforce/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenants resolves companies and their databases.
type Tenants interface {
	PoolProvider
	Company(ctx context.Context, code string) (*console.Company, error)
}

// ImageStore keeps captured face images. Put returns the URI of the stored object.
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, uri string) error
}

type Config struct {
	SkipAssignmentCheck bool
	EnforceFace         bool
	MatchThreshold      float64
	VerifyTimeout       time.Duration
	QueryTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MatchThreshold: DefaultMatchThreshold,
		VerifyTimeout:  10 * time.Second,
		QueryTimeout:   10 * time.Second,
	}
}

// Processor turns clock requests into clock events, attendance entries and
// attendance days.
type Processor struct {
	tenants     Tenants
	verifier    FaceVerifier
	assignments AssignmentOracle
	images      ImageStore
	config      Config
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

type Option func(*Processor)

func WithImageStore(store ImageStore) Option {
	return func(p *Processor) { p.images = store }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func WithIDs(newID func() string) Option {
	return func(p *Processor) { p.newID = newID }
}

// NewProcessor wires the processor. A nil assignments oracle reads assignments
// from the company database; a nil verifier rejects every face clock as
// service-unavailable.
func NewProcessor(tenants Tenants, verifier FaceVerifier, assignments AssignmentOracle, config Config, opts ...Option) *Processor {
	if config.MatchThreshold <= 0 {
		config.MatchThreshold = DefaultMatchThreshold
	}
	if config.VerifyTimeout <= 0 {
		config.VerifyTimeout = DefaultConfig().VerifyTimeout
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if assignments == nil {
		assignments = NewTenantAssignments(tenants)
	}
	p := &Processor{
		tenants:     tenants,
		verifier:    verifier,
		assignments: assignments,
		config:      config,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.With("component", "clock"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ClockResult struct {
	Event model.ClockEvent      `json:"event"`
	Entry model.AttendanceEntry `json:"entry"`
	Day   model.AttendanceDay   `json:"day"`
}

func (p *Processor) ClockIn(ctx context.Context, req ClockRequest) (*ClockResult, error) {
	return p.Clock(ctx, model.ClockIn, req)
}

func (p *Processor) ClockOut(ctx context.Context, req ClockRequest) (*ClockResult, error) {
	return p.Clock(ctx, model.ClockOut, req)
}

// Clock runs the request through identity, face verification, assignment and
// the duplicate check, then persists the event and recomputes the day in one
// transaction. Every failure is a *ClockError.
func (p *Processor) Clock(ctx context.Context, kind model.ClockType, req ClockRequest) (*ClockResult, error) {
	if cerr := req.normalize(); cerr != nil {
		return nil, cerr
	}
	log := p.logger.With("company", req.CompanyCode, "employee", req.EmployeeNo, "type", kind)

	company, db, user, cerr := p.identify(ctx, req.CompanyCode, req.EmployeeNo)
	if cerr != nil {
		p.logFailure(log, cerr)
		return nil, cerr
	}
	identity := Identity{CompanyCode: company.Code, EmployeeNo: user.EmployeeNo, UserID: user.ID}
	now := p.now()
	policy := PolicyFor(company)
	date := DateOf(now, policy.Location)

	var image *ImageRef
	if req.Method == model.MethodFace || company.ForceFaceVerification || p.config.EnforceFace {
		ref, cerr := p.verify(ctx, log, company, user, req)
		if cerr != nil {
			p.logFailure(log, cerr)
			return nil, cerr
		}
		image = &ref
	}

	if cerr := p.checkAssignment(ctx, company, identity, req, date); cerr != nil {
		p.logFailure(log, cerr)
		return nil, cerr
	}

	event := model.ClockEvent{
		ID:          p.newID(),
		UserID:      user.ID,
		Timestamp:   now.UnixMilli(),
		Type:        kind,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Address:     req.Address,
		Method:      req.Method,
		Accuracy:    req.Accuracy,
		SiteName:    req.SiteName,
		ProjectName: req.ProjectName,
	}
	var uploaded bool
	event.ImageURI, uploaded = p.storeImage(ctx, log, company, identity, date, event.ID, req, image)

	var result ClockResult
	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()
	err := db.WithContext(qctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("insert clock event: %w", err)
		}
		var entry *model.AttendanceEntry
		var err error
		if kind == model.ClockIn {
			entry, err = openEntry(tx, &event, date)
		} else {
			entry, err = closeEntry(tx, &event, date)
		}
		if err != nil {
			return err
		}
		// a carried over clock-out belongs to the day its shift started
		day, _, err := RecomputeDay(tx, user.ID, entry.Date, policy)
		if err != nil {
			return err
		}
		result = ClockResult{Event: event, Entry: *entry, Day: day}
		return nil
	})
	if err != nil {
		if uploaded {
			// the event was rolled back, its image goes with it
			if derr := p.images.Delete(context.WithoutCancel(ctx), *event.ImageURI); derr != nil {
				log.Warn("failed to remove image of rolled back event", "uri", *event.ImageURI, "error", derr)
			}
		}
		cerr := AsClockError(err)
		p.logFailure(log, cerr)
		return nil, cerr
	}

	log.Info("clock event recorded", "event", event.ID, "date", result.Day.Date, "status", result.Day.Status)
	return &result, nil
}

// identify resolves the company, its pool and the active user.
func (p *Processor) identify(ctx context.Context, companyCode, employeeNo string) (*console.Company, *gorm.DB, *model.User, *ClockError) {
	company, err := p.tenants.Company(ctx, companyCode)
	if err != nil {
		return nil, nil, nil, TenantError(err)
	}
	db, err := p.tenants.CompanyPool(ctx, company.Code)
	if err != nil {
		return nil, nil, nil, TenantError(err)
	}

	user, err := p.lookupUser(ctx, db, employeeNo)
	if err != nil {
		return nil, nil, nil, newClockError(ReasonInternal, err)
	}
	if user == nil {
		return nil, nil, nil, newClockError(ReasonUserNotFound, fmt.Errorf("employee %s not found in %s", employeeNo, company.Code))
	}
	return company, db, user, nil
}

// TenantError maps directory and pool failures onto clock reasons.
func TenantError(err error) *ClockError {
	switch {
	case errors.Is(err, tenancy.ErrCompanyNotFoundOrInactive):
		return newClockError(ReasonCompanyNotFound, err)
	case errors.Is(err, tenancy.ErrPoolConnectionFailure):
		return newClockError(ReasonPoolConnection, err)
	default:
		return newClockError(ReasonInternal, err)
	}
}

func (p *Processor) verify(ctx context.Context, log *slog.Logger, company *console.Company, user *model.User, req ClockRequest) (ImageRef, *ClockError) {
	template := utils.Deref(user.FaceTemplate)
	if template == "" {
		return ImageRef{}, newClockError(ReasonNoFaceRegistered, fmt.Errorf("user %d has no face template", user.ID))
	}

	ref, err := ParseImageReference(utils.Deref(req.ImageURI), utils.Deref(req.FaceTemplateBase64))
	if err != nil {
		if errors.Is(err, ErrImageMissing) {
			return ImageRef{}, newClockError(ReasonMissingFaceImage, err)
		}
		return ImageRef{}, newClockError(ReasonInvalidImageFormat, err)
	}

	if p.verifier == nil {
		return ImageRef{}, newClockError(ReasonServiceUnavailable, errors.New("no face verifier configured"))
	}
	vctx, cancel := context.WithTimeout(ctx, p.config.VerifyTimeout)
	defer cancel()
	result, err := p.verifier.Verify(vctx, FaceIdentity{
		CompanyCode: company.Code,
		UserID:      user.ID,
		EmployeeNo:  user.EmployeeNo,
		Template:    template,
	}, ref)
	if err != nil {
		return ImageRef{}, newClockError(ReasonServiceUnavailable, fmt.Errorf("verify face: %w", err))
	}

	if reason := result.Rejection(p.config.MatchThreshold); reason != "" {
		log.Warn("face verification rejected",
			"reason", reason,
			"detected", result.DetectedFace,
			"liveness", result.Liveness,
			"score", result.MatchScore,
			"threshold", p.config.MatchThreshold)
		return ImageRef{}, newClockError(reason, nil)
	}
	log.Debug("face verified", "score", result.MatchScore, "threshold", p.config.MatchThreshold)
	return ref, nil
}

func (p *Processor) checkAssignment(ctx context.Context, company *console.Company, identity Identity, req ClockRequest, date string) *ClockError {
	if p.config.SkipAssignmentCheck || company.SkipAssignmentCheck {
		return nil
	}
	if req.SiteName == nil && req.ProjectName == nil {
		return nil
	}
	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()
	ok, err := p.assignments.IsAssigned(qctx, identity, req.SiteName, req.ProjectName, date)
	if err != nil {
		return newClockError(ReasonInternal, fmt.Errorf("check assignment: %w", err))
	}
	if !ok {
		return newClockError(ReasonNotAssigned, fmt.Errorf("no assignment for site %q project %q on %s",
			utils.Deref(req.SiteName), utils.Deref(req.ProjectName), date))
	}
	return nil
}

// storeImage decides the image URI kept on the event. Inline images are
// uploaded when a store is configured; uploaded reports whether that happened.
func (p *Processor) storeImage(ctx context.Context, log *slog.Logger, company *console.Company, identity Identity, date, eventID string, req ClockRequest, image *ImageRef) (uri *string, uploaded bool) {
	if image == nil {
		if req.ImageURI != nil && !isDataURI(*req.ImageURI) {
			return req.ImageURI, false
		}
		return nil, false
	}
	if image.Kind == ImageURL {
		return &image.URI, false
	}
	fallback := func() *string {
		if image.URI != "" && !isDataURI(image.URI) {
			return &image.URI
		}
		return nil
	}
	if p.images == nil {
		return fallback(), false
	}
	key := fmt.Sprintf("%s/%d/%s/%s%s", company.Code, identity.UserID, date, eventID, image.Extension())
	stored, err := p.images.Put(ctx, key, image.ContentType, image.Data)
	if err != nil {
		log.Warn("failed to store face image", "key", key, "error", err)
		return fallback(), false
	}
	return &stored, true
}

func isDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

func openEntry(tx *gorm.DB, event *model.ClockEvent, date string) (*model.AttendanceEntry, error) {
	entry := model.AttendanceEntry{
		UserID:         event.UserID,
		Date:           date,
		SiteName:       utils.Deref(event.SiteName),
		ProjectName:    utils.Deref(event.ProjectName),
		ClockInEventID: &event.ID,
	}
	err := tx.Create(&entry).Error
	switch ClassifyWrite(err) {
	case WriteOK:
		return &entry, nil
	case WriteDuplicate:
		return nil, duplicateClock(model.ClockIn, err)
	default:
		return nil, fmt.Errorf("insert attendance entry: %w", err)
	}
}

func closeEntry(tx *gorm.DB, event *model.ClockEvent, date string) (*model.AttendanceEntry, error) {
	var entry model.AttendanceEntry
	if event.SiteName != nil || event.ProjectName != nil {
		err := tx.Where("user_id = ? AND date = ? AND site_name = ? AND project_name = ?",
			event.UserID, date, utils.Deref(event.SiteName), utils.Deref(event.ProjectName)).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			carried, cerr := carriedOverEntry(tx, event, date)
			if cerr != nil {
				return nil, cerr
			}
			if carried == nil {
				return nil, newClockError(ReasonNoActiveClockIn, err)
			}
			entry = *carried
		} else if err != nil {
			return nil, fmt.Errorf("load attendance entry: %w", err)
		} else if entry.ClockOutEventID != nil {
			return nil, duplicateClock(model.ClockOut, fmt.Errorf("entry %d already closed", entry.ID))
		}
	} else {
		var open []model.AttendanceEntry
		if err := tx.Where("user_id = ? AND date = ? AND clock_out_event_id IS NULL", event.UserID, date).
			Order("id").Find(&open).Error; err != nil {
			return nil, fmt.Errorf("load open entries: %w", err)
		}
		if len(open) == 0 {
			carried, err := carriedOverEntry(tx, event, date)
			if err != nil {
				return nil, err
			}
			if carried != nil {
				open = append(open, *carried)
			}
		}
		switch len(open) {
		case 0:
			var closed int64
			if err := tx.Model(&model.AttendanceEntry{}).
				Where("user_id = ? AND date = ?", event.UserID, date).
				Count(&closed).Error; err != nil {
				return nil, fmt.Errorf("count entries: %w", err)
			}
			if closed > 0 {
				return nil, duplicateClock(model.ClockOut, errors.New("every entry of the day is closed"))
			}
			return nil, newClockError(ReasonNoActiveClockIn, nil)
		case 1:
			entry = open[0]
		default:
			return nil, newClockError(ReasonAmbiguousClockOut, fmt.Errorf("%d open entries", len(open)))
		}
	}

	res := tx.Model(&model.AttendanceEntry{}).
		Where("id = ? AND clock_out_event_id IS NULL", entry.ID).
		Update("clock_out_event_id", event.ID)
	if res.Error != nil {
		return nil, fmt.Errorf("close attendance entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, duplicateClock(model.ClockOut, fmt.Errorf("entry %d closed concurrently", entry.ID))
	}
	entry.ClockOutEventID = &event.ID
	return &entry, nil
}

// carriedOverEntry finds the open entry of a shift that started on the previous
// date, e.g. a night shift clocking out after midnight. Only clock-ins less than
// MaxShiftLength before the clock-out qualify.
func carriedOverEntry(tx *gorm.DB, event *model.ClockEvent, date string) (*model.AttendanceEntry, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %s: %w", date, err)
	}
	previous := day.AddDate(0, 0, -1).Format(model.DateLayout)

	q := tx.Where("user_id = ? AND date = ? AND clock_out_event_id IS NULL", event.UserID, previous)
	if event.SiteName != nil || event.ProjectName != nil {
		q = q.Where("site_name = ? AND project_name = ?", utils.Deref(event.SiteName), utils.Deref(event.ProjectName))
	}
	var open []model.AttendanceEntry
	if err := q.Order("id").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("load open entries of %s: %w", previous, err)
	}
	if len(open) == 0 {
		return nil, nil
	}

	events, err := loadEvents(tx, open)
	if err != nil {
		return nil, err
	}
	var candidates []model.AttendanceEntry
	for _, e := range open {
		in := events[utils.Deref(e.ClockInEventID)]
		if in == nil {
			continue
		}
		if age := event.Time().Sub(in.Time()); age >= 0 && age < MaxShiftLength {
			candidates = append(candidates, e)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	default:
		return nil, newClockError(ReasonAmbiguousClockOut, fmt.Errorf("%d open entries on %s", len(candidates), previous))
	}
}

func (p *Processor) logFailure(log *slog.Logger, cerr *ClockError) {
	if cerr.Status >= 500 {
		log.Error("clock request failed", "reason", cerr.Reason, "error", cerr.Err)
		return
	}
	log.Info("clock request rejected", "reason", cerr.Reason, "error", cerr.Err)
}
