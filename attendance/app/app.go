// Package app builds the attendance services from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"axiapac.com/workforce/attendance/audit"
	attendance "axiapac.com/workforce/attendance/core"
	"axiapac.com/workforce/config"
	"axiapac.com/workforce/console"
	"axiapac.com/workforce/core"
	"axiapac.com/workforce/infrastructure/communication"
	"axiapac.com/workforce/infrastructure/faceverify"
	"axiapac.com/workforce/infrastructure/filesystem"
)

type App struct {
	Config    *config.Config
	DM        *core.DatabaseManager
	Processor *attendance.Processor
	Runner    *audit.Runner
	Images    *filesystem.Bucket
}

// New wires the database manager, the clock processor and the audit runner.
// Optional collaborators (face webhook, image bucket, Slack, SES) are only
// created when configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	masterDSN, err := console.MasterDSN(ctx, cfg.Database, console.DSNOptions{
		Timeout:     cfg.Pool.ConnectTimeout,
		ReadTimeout: cfg.Pool.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve master database: %w", err)
	}

	options := core.Options{
		MaxOpenConns:    cfg.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		ConnMaxLifetime: cfg.Pool.ConnMaxLifetime,
		ConnectTimeout:  cfg.Pool.ConnectTimeout,
		QueryTimeout:    cfg.Pool.QueryTimeout,
		IdleTimeout:     cfg.Pool.IdleTimeout,
		SweepInterval:   cfg.Pool.SweepInterval,
		LogLevel:        core.LogLevelError,
	}
	dm := core.New(masterDSN, options)
	a := &App{Config: cfg, DM: dm}

	var verifier attendance.FaceVerifier
	if cfg.Face.WebhookURL != "" {
		verifier = faceverify.NewClient(cfg.Face.WebhookURL, cfg.Face.WebhookToken, cfg.Face.Timeout)
	} else {
		slog.Warn("FACE_VERIFY_WEBHOOK is not set, face clocks will be rejected")
	}

	var procOpts []attendance.Option
	if cfg.ImageBucket != "" {
		a.Images, err = filesystem.ConnectBucket(ctx, cfg.ImageBucket)
		if err != nil {
			return nil, err
		}
		procOpts = append(procOpts, attendance.WithImageStore(a.Images))
	}

	a.Processor = attendance.NewProcessor(dm, verifier, nil, attendance.Config{
		SkipAssignmentCheck: cfg.SkipAssignmentCheck,
		EnforceFace:         cfg.Face.EnforceStrict,
		MatchThreshold:      cfg.Face.MatchThreshold,
		VerifyTimeout:       cfg.Face.Timeout,
		QueryTimeout:        cfg.Pool.QueryTimeout,
	}, procOpts...)

	runnerOpts := []audit.RunnerOption{audit.WithRunnerQueryTimeout(3 * cfg.Pool.QueryTimeout)}
	if cfg.Notify.SlackToken != "" {
		runnerOpts = append(runnerOpts, audit.WithNotifier(communication.NewSlack(cfg.Notify.SlackToken, communication.SlackOption{
			InfoChannelID:  cfg.Notify.SlackInfoChannel,
			ErrorChannelID: cfg.Notify.SlackErrorChannel,
		})))
	}
	if to := cfg.Notify.AuditRecipients(); len(to) > 0 && cfg.Notify.EmailFrom != "" {
		mailer, err := communication.ConnectSES(ctx)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, audit.WithMailer(mailer, cfg.Notify.EmailFrom, to))
	}
	a.Runner = audit.NewRunner(dm, runnerOpts...)

	return a, nil
}

func (a *App) Close() error {
	return a.DM.Shutdown()
}
