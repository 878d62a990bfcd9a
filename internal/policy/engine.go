package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Decision is the safety gate's verdict, produced by the rego module.
type Decision struct {
	Allow  bool   `json:"allow"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Engine evaluates the embedded safety rego module against the current
// policy data. Safe for concurrent use; SetPolicy swaps the prepared query.
type Engine struct {
	mu     sync.RWMutex
	query  rego.PreparedEvalQuery
	policy SafetyPolicy
}

// NewEngine prepares the safety query with the given policy data.
func NewEngine(ctx context.Context, p SafetyPolicy) (*Engine, error) {
	e := &Engine{}
	if err := e.SetPolicy(ctx, p); err != nil {
		return nil, err
	}
	return e, nil
}

// SetPolicy rebuilds the prepared query with new policy data. The previous
// policy stays active if preparation fails.
func (e *Engine) SetPolicy(ctx context.Context, p SafetyPolicy) error {
	store := inmem.NewFromObject(map[string]any{"safety": p.normalized()})
	r := rego.New(
		rego.Query("data.desk_safety.decision"),
		rego.Module("desk_safety.rego", safetyModule),
		rego.Store(store),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare rego: %w", err)
	}
	e.mu.Lock()
	e.query = query
	e.policy = p
	e.mu.Unlock()
	return nil
}

// Policy returns the currently active policy data.
func (e *Engine) Policy() SafetyPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

func (e *Engine) eval(ctx context.Context, input map[string]any) (Decision, error) {
	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Fail closed: an undefined decision never allows.
		return Decision{Allow: false, Code: "policy_undefined"}, nil
	}
	val, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{Allow: false, Code: "policy_malformed"}, nil
	}
	d := Decision{}
	d.Allow, _ = val["allow"].(bool)
	d.Code, _ = val["code"].(string)
	d.Detail, _ = val["detail"].(string)
	return d, nil
}

// CheckPlan scans the whole instruction and every string parameter of the plan
// for dangerous intent. A denial here blocks the entire run before any step
// executes.
func (e *Engine) CheckPlan(ctx context.Context, instruction string, plan domain.ActionPlan) (Decision, error) {
	var texts []string
	for _, step := range plan.Steps {
		for _, v := range step.Params {
			if s, ok := v.(string); ok && s != "" {
				texts = append(texts, normalizeText(s))
			}
		}
	}
	input := map[string]any{
		"instruction":        normalizeText(instruction),
		"params_text":        toAny(texts),
		"action":             "",
		"process_candidates": []any{},
		"paths":              []any{},
		"confirm":            false,
	}
	return e.eval(ctx, input)
}

// CheckStep evaluates a single step: blocked processes for app launches, path
// denylist for filesystem-affecting steps, and confirm-required actions. Run
// again for every replanned step before it dispatches.
func (e *Engine) CheckStep(ctx context.Context, step domain.ActionStep) (Decision, error) {
	var candidates []string
	if step.Action == domain.ActionOpenApp || step.Action == domain.ActionOpenFile {
		for _, key := range []string{"target", "path", "name", "app"} {
			if v := step.StringParam(key); v != "" {
				candidates = append(candidates, ProcessCandidates(v)...)
			}
		}
	}
	var paths []string
	for _, p := range step.PathParams() {
		paths = append(paths, NormalizePathString(p))
	}
	var texts []string
	for _, v := range step.Params {
		if s, ok := v.(string); ok && s != "" {
			texts = append(texts, normalizeText(s))
		}
	}
	input := map[string]any{
		"instruction":        "",
		"params_text":        toAny(texts),
		"action":             string(step.Action),
		"process_candidates": toAny(candidates),
		"paths":              toAny(paths),
		"confirm":            step.BoolParam("confirm", false),
	}
	return e.eval(ctx, input)
}

// normalizeText lowercases and collapses whitespace so multi-word danger
// keywords match regardless of formatting.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// safetyModule is the decision logic half of the safety gate. Policy data is
// normalized Go-side before it reaches the store, so matching here is plain
// lowercase string comparison.
const safetyModule = `
package desk_safety

import rego.v1

default decision := {"allow": true, "code": "", "detail": ""}

danger_hits contains kw if {
	some kw in data.safety.danger_keywords
	contains(input.instruction, kw)
}

danger_hits contains kw if {
	some kw in data.safety.danger_keywords
	some text in input.params_text
	contains(text, kw)
}

process_hits contains name if {
	some name in data.safety.blocked_processes
	some cand in input.process_candidates
	cand == name
}

path_hits contains prefix if {
	some prefix in data.safety.blocked_paths
	some p in input.paths
	startswith(p, prefix)
}

confirm_missing if {
	input.action in data.safety.confirm_actions
	not input.confirm
}

decision := {"allow": false, "code": "dangerous_request", "detail": concat(", ", sort(danger_hits))} if {
	count(danger_hits) > 0
} else := {"allow": false, "code": "blocked", "detail": concat(", ", sort(process_hits))} if {
	count(process_hits) > 0
} else := {"allow": false, "code": "path_outside_workspace", "detail": concat(", ", sort(path_hits))} if {
	count(path_hits) > 0
} else := {"allow": false, "code": "confirm_required", "detail": input.action} if {
	confirm_missing
}
`
