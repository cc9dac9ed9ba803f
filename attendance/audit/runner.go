package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/console"
	"axiapac.com/workforce/infrastructure/communication"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Companies is the part of the database manager the runner needs.
type Companies interface {
	ActiveCompanies(ctx context.Context) ([]console.Company, error)
	Company(ctx context.Context, code string) (*console.Company, error)
	CompanyPool(ctx context.Context, code string) (*gorm.DB, error)
}

type Notifier interface {
	Info(ctx context.Context, message string) error
	Error(ctx context.Context, message string) error
}

type Mailer interface {
	Send(ctx context.Context, email *communication.Email) error
}

type CompanyAudit struct {
	Company string              `json:"company"`
	Reports []ConsistencyReport `json:"reports"`
	Fix     *FixResult          `json:"fix,omitempty"`
	Error   string              `json:"error,omitempty"`
	// Err is the cause behind Error.
	Err error `json:"-"`
}

func (c CompanyAudit) Errors() int64 {
	var n int64
	for _, r := range c.Reports {
		n += r.Errors()
	}
	if c.Error != "" {
		n++
	}
	return n
}

// Runner audits companies and reports the results.
type Runner struct {
	companies    Companies
	notifier     Notifier
	mailer       Mailer
	emailFrom    string
	emailTo      []string
	concurrency  int
	queryTimeout time.Duration
	logger       *slog.Logger
}

type RunnerOption func(*Runner)

func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

func WithMailer(m Mailer, from string, to []string) RunnerOption {
	return func(r *Runner) {
		r.mailer = m
		r.emailFrom = from
		r.emailTo = to
	}
}

func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) { r.concurrency = n }
}

func WithRunnerQueryTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.queryTimeout = d }
}

func NewRunner(companies Companies, opts ...RunnerOption) *Runner {
	r := &Runner{
		companies:    companies,
		concurrency:  4,
		queryTimeout: 30 * time.Second,
		logger:       slog.With("component", "audit"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Auditor returns the auditor of an active company.
func (r *Runner) Auditor(ctx context.Context, code string) (*Auditor, error) {
	company, err := r.companies.Company(ctx, code)
	if err != nil {
		return nil, err
	}
	db, err := r.companies.CompanyPool(ctx, company.Code)
	if err != nil {
		return nil, err
	}
	return NewAuditor(db, attendance.PolicyFor(company), WithQueryTimeout(r.queryTimeout)), nil
}

// AuditCompany checks one company, repairing first when fix is set.
func (r *Runner) AuditCompany(ctx context.Context, code string, fix bool) CompanyAudit {
	result := CompanyAudit{Company: console.NormalizeCode(code), Reports: []ConsistencyReport{}}
	auditor, err := r.Auditor(ctx, code)
	if err != nil {
		r.logger.Error("failed to open company for audit", "company", result.Company, "error", err)
		result.Error = err.Error()
		result.Err = err
		return result
	}
	if fix {
		res := auditor.Fix(ctx)
		result.Fix = &res
	}
	result.Reports = auditor.RunFullCheck(ctx)
	return result
}

// AuditAll audits every active company, then posts a summary and mails the
// workbook when a notifier or mailer is configured.
func (r *Runner) AuditAll(ctx context.Context, fix bool) ([]CompanyAudit, error) {
	companies, err := r.companies.ActiveCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	r.logger.Info("auditing companies", "count", len(companies), "fix", fix)

	results := make([]CompanyAudit, len(companies))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range companies {
		i, c := i, c
		g.Go(func() error {
			results[i] = r.AuditCompany(ctx, c.Code, fix)
			return nil
		})
	}
	_ = g.Wait()

	r.publish(ctx, results)
	return results, nil
}

func (r *Runner) publish(ctx context.Context, results []CompanyAudit) {
	summary := Summarize(results)
	if r.notifier != nil {
		post := r.notifier.Info
		for _, res := range results {
			if res.Errors() > 0 {
				post = r.notifier.Error
				break
			}
		}
		if err := post(ctx, summary); err != nil {
			r.logger.Warn("failed to post audit summary", "error", err)
		}
	}
	if r.mailer != nil && len(r.emailTo) > 0 {
		workbook, err := Export(results)
		if err != nil {
			r.logger.Warn("failed to export audit workbook", "error", err)
			return
		}
		err = r.mailer.Send(ctx, &communication.Email{
			From:    r.emailFrom,
			To:      r.emailTo,
			Subject: fmt.Sprintf("Attendance consistency audit %s", time.Now().UTC().Format("2006-01-02")),
			Text:    summary,
			Attachments: []communication.Attachment{{
				Filename:    "attendance-audit.xlsx",
				ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				Content:     workbook,
			}},
		})
		if err != nil {
			r.logger.Warn("failed to mail audit workbook", "error", err)
		}
	}
}

// Summarize renders one line per company.
func Summarize(results []CompanyAudit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attendance audit: %d companies\n", len(results))
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(&b, "• %s: failed (%s)\n", res.Company, res.Error)
			continue
		}
		var warnings int64
		for _, rep := range res.Reports {
			warnings += rep.Warnings()
		}
		fmt.Fprintf(&b, "• %s: %d errors, %d warnings", res.Company, res.Errors(), warnings)
		if res.Fix != nil {
			fmt.Fprintf(&b, ", %d fixed", res.Fix.Fixed)
			if len(res.Fix.Errors) > 0 {
				fmt.Fprintf(&b, " (%d repairs failed)", len(res.Fix.Errors))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
