package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AuditEvent is the payload of the scheduled rule or a manual invoke.
type AuditEvent struct {
	Companies []string `json:"companies"`
	Fix       bool     `json:"fix"`
}

type agentParameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// agentEvent is the action group invocation of a Bedrock agent.
type agentEvent struct {
	ActionGroup string           `json:"actionGroup"`
	Function    string           `json:"function"`
	Parameters  []agentParameter `json:"parameters"`
}

func (e *agentEvent) parameter(name string) string {
	for _, p := range e.Parameters {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}

type agentOutput struct {
	MessageVersion string        `json:"messageVersion"`
	Response       agentResponse `json:"response"`
}

type agentResponse struct {
	ActionGroup      string                `json:"actionGroup"`
	Function         string                `json:"function"`
	FunctionResponse agentFunctionResponse `json:"functionResponse"`
}

type agentFunctionResponse struct {
	ResponseBody map[string]any `json:"responseBody"`
}

// parseEvent accepts either a plain AuditEvent or an agent invocation. The
// returned agent event is nil for plain events.
func parseEvent(raw json.RawMessage) (AuditEvent, *agentEvent, error) {
	var agent agentEvent
	_ = json.Unmarshal(raw, &agent)

	var event AuditEvent
	if agent.ActionGroup == "" {
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &event); err != nil {
				return AuditEvent{}, nil, fmt.Errorf("failed to unmarshal audit event: %w", err)
			}
		}
		return event, nil, nil
	}

	for _, c := range strings.Split(agent.parameter("companies"), ",") {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			event.Companies = append(event.Companies, trimmed)
		}
	}
	event.Fix = strings.EqualFold(agent.parameter("fix"), "true")
	return event, &agent, nil
}

func newAgentOutput(agent *agentEvent, results any) agentOutput {
	body, _ := json.Marshal(results)
	return agentOutput{
		MessageVersion: "1.0",
		Response: agentResponse{
			ActionGroup: agent.ActionGroup,
			Function:    agent.Function,
			FunctionResponse: agentFunctionResponse{
				ResponseBody: map[string]any{
					"TEXT": map[string]string{
						"body": string(body),
					},
				},
			},
		},
	}
}
