package supervisor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"jobsentry/internal/audit"
	"jobsentry/internal/tools"
)

// ErrBadExecuteCommand means the execute_command field did not read
// "EXECUTE <ACTION>".
var ErrBadExecuteCommand = errors.New("invalid execute command")

var executeRe = regexp.MustCompile(`(?i)^EXECUTE\s+(.+)$`)

// Supervisor implements the confirm-before-act protocol. READ tools run
// inline at plan time; WRITE and TEST tools come back as a plan with a
// confirm token that the follow-up execute call must present.
type Supervisor struct {
	Tools           *tools.Executor
	Tokens          *TokenStore
	Audit           *audit.Recorder
	DefaultLanguage string
}

type PlanRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type PlanResponse struct {
	Status             string         `json:"status"`
	Language           string         `json:"language"`
	Summary            []string       `json:"summary"`
	Plan               []string       `json:"plan"`
	Tools              []string       `json:"tools"`
	ToolType           string         `json:"tool_type"`
	ToolTypeLocalized  string         `json:"tool_type_localized"`
	ConfirmQuestion    string         `json:"confirm_question"`
	ConfirmToken       string         `json:"confirm_token,omitempty"`
	ExecuteInstruction string         `json:"execute_instruction,omitempty"`
	ParsedTool         string         `json:"parsed_tool,omitempty"`
	ParsedParams       map[string]any `json:"parsed_params,omitempty"`
	Suggestions        []string       `json:"suggestions,omitempty"`
	Result             map[string]any `json:"result,omitempty"`
	Error              string         `json:"error,omitempty"`
}

type ExecuteRequest struct {
	ExecuteCommand string         `json:"execute_command"`
	ConfirmToken   string         `json:"confirm_token"`
	Tool           string         `json:"tool"`
	Params         map[string]any `json:"params,omitempty"`
}

type ExecuteResponse struct {
	Status   string         `json:"status"`
	Language string         `json:"language"`
	Message  string         `json:"message"`
	Result   map[string]any `json:"result,omitempty"`
}

// Plan classifies the request text and either answers it (READ), stages it
// behind a confirm token (WRITE/TEST), or asks for clarification.
func (s *Supervisor) Plan(ctx context.Context, actor string, req PlanRequest) (PlanResponse, error) {
	text := strings.TrimSpace(req.Text)
	lang := req.Language
	if lang == "" {
		lang = DetectLanguage(text, s.DefaultLanguage)
	}
	t := phrasesFor(lang)

	intent := ParseIntent(text, s.DefaultLanguage)
	if intent.Tool == "" {
		s.Audit.Record(ctx, audit.Event{
			Action:  audit.ActionSupervisorPlan,
			Actor:   actor,
			Status:  "unclear",
			Details: map[string]any{"text": text},
		})
		var b strings.Builder
		b.WriteString(t.Unclear)
		b.WriteString("\n\n")
		b.WriteString(t.SuggestionsPrefix)
		for _, sug := range intent.Suggestions {
			b.WriteString("\n- ")
			b.WriteString(sug)
		}
		return PlanResponse{
			Status:      "unclear",
			Language:    lang,
			Summary:     []string{t.Unclear},
			Plan:        []string{},
			Tools:       []string{},
			Suggestions: intent.Suggestions,
			Error:       b.String(),
		}, nil
	}

	def, ok := s.Tools.Registry.Lookup(intent.Tool)
	if !ok {
		return PlanResponse{}, fmt.Errorf("%w: %s", tools.ErrUnknownTool, intent.Tool)
	}

	toolType := string(def.Kind)
	localized := t.TypeWrite
	if def.Kind == tools.KindRead {
		localized = t.TypeRead
	}

	summary := []string{
		fmt.Sprintf("%s: %s", t.Understood, text),
		fmt.Sprintf("Tool: %s", intent.Tool),
		fmt.Sprintf("Type: %s", localized),
	}
	plan := []string{fmt.Sprintf("1. %s", describeTool(intent.Tool, lang))}
	if len(intent.Params) > 0 {
		summary = append(summary, fmt.Sprintf("Parameters: %v", intent.Params))
		plan = append(plan, fmt.Sprintf("2. Parameters: %v", intent.Params))
	}

	resp := PlanResponse{
		Status:            "plan",
		Language:          lang,
		Summary:           summary,
		Plan:              plan,
		Tools:             []string{intent.Tool},
		ToolType:          toolType,
		ToolTypeLocalized: localized,
		ParsedTool:        intent.Tool,
		ParsedParams:      intent.Params,
	}

	if def.Kind == tools.KindRead {
		// READ runs inline; no token, no second step.
		result, err := s.Tools.Run(ctx, actor, intent.Tool, intent.Params)
		if err != nil {
			return PlanResponse{}, err
		}
		s.Audit.Record(ctx, audit.Event{
			Action: audit.ActionSupervisorPlan,
			Actor:  actor,
			Tool:   intent.Tool,
			Details: map[string]any{
				"text":   text,
				"inline": true,
			},
		})
		resp.Status = "ok"
		resp.Result = result
		return resp, nil
	}

	token, _ := s.Tokens.Issue(intent.Tool, ParamsHash(intent.Params))
	action := intent.Tool
	if i := strings.LastIndex(action, "."); i >= 0 {
		action = action[i+1:]
	}
	resp.ConfirmQuestion = t.ConfirmQuestion
	resp.ConfirmToken = token
	resp.ExecuteInstruction = fmt.Sprintf(t.ExecuteInstruction, strings.ToUpper(action))
	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionSupervisorPlan,
		Actor:  actor,
		Tool:   intent.Tool,
		Details: map[string]any{
			"text":      text,
			"tool_type": toolType,
		},
	})
	return resp, nil
}

// Execute runs a previously planned WRITE/TEST tool. The confirm token is
// burned before the tool runs, so a failing tool still spends it; retrying
// means planning again.
func (s *Supervisor) Execute(ctx context.Context, actor string, req ExecuteRequest) (ExecuteResponse, error) {
	lang := DetectLanguage(req.ExecuteCommand, s.DefaultLanguage)
	t := phrasesFor(lang)

	if executeRe.FindStringSubmatch(strings.TrimSpace(req.ExecuteCommand)) == nil {
		return ExecuteResponse{}, ErrBadExecuteCommand
	}

	def, ok := s.Tools.Registry.Lookup(req.Tool)
	if !ok {
		return ExecuteResponse{}, fmt.Errorf("%w: %s", tools.ErrUnknownTool, req.Tool)
	}

	if def.Kind != tools.KindRead {
		if req.ConfirmToken == "" {
			return ExecuteResponse{}, ErrInvalidConfirmToken
		}
		if err := s.Tokens.Consume(req.ConfirmToken, req.Tool, ParamsHash(req.Params)); err != nil {
			s.Audit.Record(ctx, audit.Event{
				Action:  audit.ActionSupervisorExec,
				Actor:   actor,
				Status:  "failed",
				Tool:    req.Tool,
				Details: map[string]any{"reason": "invalid_or_expired_confirm_token"},
			})
			return ExecuteResponse{}, err
		}
	}

	result, err := s.Tools.Run(ctx, actor, req.Tool, req.Params)
	if err != nil {
		s.Audit.Record(ctx, audit.Event{
			Action:  audit.ActionSupervisorExec,
			Actor:   actor,
			Status:  "failed",
			Tool:    req.Tool,
			Details: map[string]any{"error": err.Error()},
		})
		return ExecuteResponse{}, err
	}

	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionSupervisorExec,
		Actor:  actor,
		Tool:   req.Tool,
	})
	return ExecuteResponse{
		Status:   "ok",
		Language: lang,
		Message:  t.Success,
		Result:   result,
	}, nil
}
