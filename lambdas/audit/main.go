package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"axiapac.com/workforce/attendance/app"
	"axiapac.com/workforce/attendance/audit"
	"axiapac.com/workforce/config"
	"github.com/aws/aws-lambda-go/lambda"
)

type Result struct {
	Summary string               `json:"summary"`
	Results []audit.CompanyAudit `json:"results"`
}

func RunAudit(ctx context.Context, cfg *config.Config, event AuditEvent) (*Result, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	var results []audit.CompanyAudit
	if len(event.Companies) == 0 {
		results, err = a.Runner.AuditAll(ctx, event.Fix)
		if err != nil {
			return nil, err
		}
	} else {
		for _, code := range event.Companies {
			results = append(results, a.Runner.AuditCompany(ctx, code, event.Fix))
		}
	}
	return &Result{Summary: audit.Summarize(results), Results: results}, nil
}

func HandleRequest(ctx context.Context, raw json.RawMessage) (any, error) {
	slog.Info("audit invoked", "event", string(raw))

	event, agent, err := parseEvent(raw)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.InitLogger(cfg.LogLevel)

	result, err := RunAudit(ctx, cfg, event)
	if err != nil {
		return nil, err
	}

	if agent != nil && agent.Function != "" {
		return newAgentOutput(agent, result), nil
	}
	return result, nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(HandleRequest)
		return
	}

	// local run against the configured master database, checks only
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.LogLevel)
	result, err := RunAudit(context.Background(), cfg, AuditEvent{Companies: os.Args[1:]})
	if err != nil {
		slog.Error("audit failed", "error", err)
		os.Exit(1)
	}
	fmt.Print(result.Summary)
}
