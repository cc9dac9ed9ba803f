package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"axiapac.com/workforce/attendance/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoricalClock is a clock action recorded outside the app, e.g. by a
// legacy terminal.
type HistoricalClock struct {
	Row         int
	EmployeeNo  string
	Type        model.ClockType
	Time        time.Time
	SiteName    *string
	ProjectName *string
	Latitude    float64
	Longitude   float64
	Address     string
}

type BackfillRejection struct {
	Row     int    `json:"row"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

type BackfillResult struct {
	Imported int                 `json:"imported"`
	Skipped  int                 `json:"skipped"`
	Rejected []BackfillRejection `json:"rejected"`
}

// eventNamespace seeds the deterministic ids of imported events so a file can
// be imported twice without doubling its events.
var eventNamespace = uuid.MustParse("6f1f6c3e-2d7a-4a57-9f43-1e1b0c6d9a10")

func HistoricalEventID(companyCode string, c HistoricalClock) string {
	name := fmt.Sprintf("%s|%s|%s|%d", companyCode, c.EmployeeNo, c.Type, c.Time.UnixMilli())
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// Backfill replays historical clocks in time order through the same entry and
// day rules as live clocks. Face and assignment gates do not apply. Clocks
// already imported are skipped, clocks the rules refuse are rejected, and
// neither stops the rest.
func (p *Processor) Backfill(ctx context.Context, companyCode string, clocks []HistoricalClock) (*BackfillResult, error) {
	company, err := p.tenants.Company(ctx, companyCode)
	if err != nil {
		return nil, TenantError(err)
	}
	db, err := p.tenants.CompanyPool(ctx, company.Code)
	if err != nil {
		return nil, TenantError(err)
	}
	policy := PolicyFor(company)
	log := p.logger.With("company", company.Code, "operation", "backfill")

	sorted := make([]HistoricalClock, len(clocks))
	copy(sorted, clocks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	result := &BackfillResult{Rejected: []BackfillRejection{}}
	reject := func(c HistoricalClock, cerr *ClockError) {
		result.Rejected = append(result.Rejected, BackfillRejection{Row: c.Row, Reason: cerr.Reason, Message: cerr.Message})
		log.Debug("clock rejected", "row", c.Row, "reason", cerr.Reason, "error", cerr.Err)
	}

	users := map[string]*model.User{}
	for _, c := range sorted {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		user, ok := users[c.EmployeeNo]
		if !ok {
			user, err = p.lookupUser(ctx, db, c.EmployeeNo)
			if err != nil {
				return result, err
			}
			users[c.EmployeeNo] = user
		}
		if user == nil {
			reject(c, newClockError(ReasonUserNotFound, fmt.Errorf("employee %s not found", c.EmployeeNo)))
			continue
		}

		event := model.ClockEvent{
			ID:          HistoricalEventID(company.Code, c),
			UserID:      user.ID,
			Timestamp:   c.Time.UnixMilli(),
			Type:        c.Type,
			Latitude:    c.Latitude,
			Longitude:   c.Longitude,
			Address:     c.Address,
			Method:      model.MethodImport,
			SiteName:    c.SiteName,
			ProjectName: c.ProjectName,
		}
		date := DateOf(c.Time, policy.Location)

		var skipped bool
		qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
		err := db.WithContext(qctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Create(&event).Error
			switch ClassifyWrite(err) {
			case WriteDuplicate:
				skipped = true
				return nil
			case WriteFailed:
				return fmt.Errorf("insert clock event: %w", err)
			}
			var entry *model.AttendanceEntry
			if c.Type == model.ClockIn {
				entry, err = openEntry(tx, &event, date)
			} else {
				entry, err = closeEntry(tx, &event, date)
			}
			if err != nil {
				return err
			}
			_, _, err = RecomputeDay(tx, user.ID, entry.Date, policy)
			return err
		})
		cancel()

		var cerr *ClockError
		switch {
		case err == nil && skipped:
			result.Skipped++
		case err == nil:
			result.Imported++
		case errors.As(err, &cerr) && cerr.Reason != ReasonInternal:
			reject(c, cerr)
		default:
			return result, fmt.Errorf("row %d: %w", c.Row, err)
		}
	}

	log.Info("backfill finished", "imported", result.Imported, "skipped", result.Skipped, "rejected", len(result.Rejected))
	return result, nil
}

// lookupUser returns nil without error when no active user has employeeNo.
func (p *Processor) lookupUser(ctx context.Context, db *gorm.DB, employeeNo string) (*model.User, error) {
	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()
	var user model.User
	err := db.WithContext(qctx).
		Where("employee_no = ? AND active = ?", employeeNo, true).
		Order("id").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", employeeNo, err)
	}
	return &user, nil
}
