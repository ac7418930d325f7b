package tools

import (
	"context"
	"errors"
	"fmt"

	"jobsentry/internal/audit"
	"jobsentry/internal/jobs"
	"jobsentry/internal/metrics"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidParams = errors.New("invalid tool params")
)

// ExecutionError marks a failure inside the tool itself, as opposed to a
// request that never reached it. Callers map it to tool_execution_error.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor dispatches tool calls onto the job service. SimulateMention is
// wired only when test endpoints are enabled; it feeds a synthetic event
// through the real Slack intake path.
type Executor struct {
	Registry        *Registry
	Jobs            *jobs.Service
	Audit           *audit.Recorder
	SimulateMention func(ctx context.Context, text, user, channel string) (map[string]any, error)
}

// Run validates params against the tool schema and executes. Every attempt,
// successful or not, lands in the audit trail as tool.execute.
func (e *Executor) Run(ctx context.Context, actor, tool string, params map[string]any) (map[string]any, error) {
	def, ok := e.Registry.Lookup(tool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	if err := validateParams(tool, params); err != nil {
		metrics.ToolExecutionsTotal.WithLabelValues(tool, "invalid_params").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	result, err := e.dispatch(ctx, actor, def, params)
	outcome := "ok"
	status := "ok"
	details := map[string]any{"params": params}
	if err != nil {
		outcome = "error"
		status = "failed"
		details["error"] = err.Error()
	}
	metrics.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	e.Audit.Record(ctx, audit.Event{
		Action:  audit.ActionToolExecute,
		Actor:   actor,
		Status:  status,
		Tool:    tool,
		Details: details,
	})
	if err != nil {
		return nil, &ExecutionError{Tool: tool, Err: err}
	}
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, actor string, def Tool, params map[string]any) (map[string]any, error) {
	switch def.Name {
	case "jobs.list":
		filter := jobs.ListFilter{}
		if s, ok := stringParam(params, "status"); ok {
			status, err := jobs.ParseStatus(s)
			if err != nil {
				return nil, err
			}
			filter.Status = status
		}
		if n, ok := intParam(params, "limit"); ok {
			filter.Limit = n
		}
		list, total, err := e.Jobs.Store.ListJobs(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"items": list, "total": total}, nil

	case "jobs.get":
		id, _ := stringParam(params, "job_id")
		job, err := e.Jobs.Store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "jobs.create":
		title, _ := stringParam(params, "title")
		payload, _ := params["payload"].(map[string]any)
		job, err := e.Jobs.Create(ctx, actor, title, payload, "supervisor")
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "jobs.update":
		id, _ := stringParam(params, "job_id")
		upd := jobs.Update{}
		if title, ok := stringParam(params, "title"); ok {
			upd.Title = &title
		}
		if payload, ok := params["payload"].(map[string]any); ok {
			upd.Payload = payload
		}
		job, err := e.Jobs.Update(ctx, actor, id, upd)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "jobs.approve":
		id, _ := stringParam(params, "job_id")
		job, err := e.Jobs.Approve(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "jobs.reject":
		id, _ := stringParam(params, "job_id")
		job, err := e.Jobs.Reject(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "jobs.set_needs_approval":
		id, _ := stringParam(params, "job_id")
		job, err := e.Jobs.Store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == jobs.StatusQueued {
			if job, err = e.Jobs.Begin(ctx, actor, id); err != nil {
				return nil, err
			}
		}
		job, err = e.Jobs.RequireApproval(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"job": job}, nil

	case "slack.simulate_mention":
		if e.SimulateMention == nil {
			return nil, errors.New("mention simulation not enabled")
		}
		text, _ := stringParam(params, "text")
		if text == "" {
			text = "Test mention"
		}
		user, _ := stringParam(params, "user")
		if user == "" {
			user = "U_TEST"
		}
		channel, _ := stringParam(params, "channel")
		if channel == "" {
			channel = "C_TEST"
		}
		return e.SimulateMention(ctx, text, user, channel)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, def.Name)
	}
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
