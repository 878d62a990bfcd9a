// Package verify turns a raw handler result plus an environment observation
// into a success/retry/failure call, per action category.
package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/guard"
)

// Verifier applies the per-category outcome contracts. The zero value works
// for pure passthrough categories; window polling needs Windows set.
type Verifier struct {
	Windows driver.WindowProvider

	// LaunchTimeout bounds app-launch window polling. Defaults to 5s.
	LaunchTimeout time.Duration
	// PollInterval is the window polling cadence. Defaults to 250ms.
	PollInterval time.Duration
	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

func (v *Verifier) launchTimeout() time.Duration {
	if v.LaunchTimeout > 0 {
		return v.LaunchTimeout
	}
	return 5 * time.Second
}

func (v *Verifier) pollInterval() time.Duration {
	if v.PollInterval > 0 {
		return v.PollInterval
	}
	return 250 * time.Millisecond
}

func (v *Verifier) sleep(d time.Duration) {
	if v.Sleep != nil {
		v.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Verify evaluates one attempt's outcome. Retry is only ever returned while
// attempt < maxAttempts; an exhausted budget turns a retryable outcome into
// Failed.
func (v *Verifier) Verify(ctx context.Context, step domain.ActionStep, attempt, maxAttempts int, hr domain.HandlerResult, workDir string) domain.VerificationResult {
	res := v.classify(ctx, step, hr, workDir)
	res.Attempt = attempt
	res.MaxAttempts = maxAttempts
	if res.Decision == domain.VerifyRetry && attempt >= maxAttempts {
		res.Decision = domain.VerifyFailed
		if res.Reason == "verification_retry" {
			res.Reason = "verification_failed"
		}
	}
	return res
}

func (v *Verifier) classify(ctx context.Context, step domain.ActionStep, hr domain.HandlerResult, workDir string) domain.VerificationResult {
	switch {
	case step.Action == domain.ActionWaitUntil:
		return verifyWaitUntil(step, hr)
	case step.Action == domain.ActionOpenApp || step.Action == domain.ActionActivateWindow:
		return v.verifyAppLaunch(ctx, step, hr)
	case step.Action.IsBrowserAction():
		return verifyBrowser(step, hr)
	case step.Action.IsFileMutation():
		return verifyFileMutation(step, hr, workDir)
	default:
		return verifyGeneric(hr)
	}
}

// verifyWaitUntil trusts the handler's own polling: it reports met or
// timed-out directly and is never retried here.
func verifyWaitUntil(step domain.ActionStep, hr domain.HandlerResult) domain.VerificationResult {
	out := domain.VerificationResult{Verifier: "wait_until"}
	switch hr.Status {
	case domain.StepStatusSuccess:
		out.Decision = domain.VerifySuccess
		out.Reason = "condition_met"
	default:
		if hr.Reason == "timeout" && step.BoolParam("allow_timeout", false) {
			out.Decision = domain.VerifySuccess
			out.Reason = "timeout_allowed"
		} else if hr.Reason == "timeout" {
			out.Decision = domain.VerifyFailed
			out.Reason = "timeout"
		} else {
			out.Decision = domain.VerifyFailed
			out.Reason = "handler_error"
		}
	}
	return out
}

// verifyAppLaunch polls window enumeration for a title/class match within a
// bounded timeout.
func (v *Verifier) verifyAppLaunch(ctx context.Context, step domain.ActionStep, hr domain.HandlerResult) domain.VerificationResult {
	out := domain.VerificationResult{Verifier: "app_launch"}
	if hr.Status == domain.StepStatusError {
		out.Decision = domain.VerifyRetry
		out.Reason = "handler_error"
		return out
	}
	filters := step.StringListParam("title_keywords")
	if len(filters) == 0 {
		if t := step.StringParam("target"); t != "" {
			filters = []string{filepath.Base(strings.TrimSuffix(t, ".exe"))}
		}
	}
	if len(filters) == 0 || v.Windows == nil {
		// Nothing to poll against; the handler's own status stands, but the
		// result is marked skipped so "verified" always means an observed match.
		out.Decision = domain.VerifySuccess
		out.Reason = "verification_skipped"
		return out
	}
	out.Expected = map[string]any{"title_keywords": filters}

	deadline := time.Now().Add(v.launchTimeout())
	for {
		for _, f := range filters {
			wins, err := v.Windows.Enumerate(ctx, f)
			if err == nil && len(wins) > 0 {
				out.Decision = domain.VerifySuccess
				out.Reason = "verified"
				out.Actual = map[string]any{"title": wins[0].Title, "handle": wins[0].Handle}
				return out
			}
		}
		if time.Now().After(deadline) {
			break
		}
		v.sleep(v.pollInterval())
	}
	out.Decision = domain.VerifyRetry
	out.Reason = "verification_retry"
	return out
}

// verifyBrowser requires at least one explicit expectation; there is no
// implicit pass for browser-targeted actions.
func verifyBrowser(step domain.ActionStep, hr domain.HandlerResult) domain.VerificationResult {
	out := domain.VerificationResult{Verifier: "browser"}
	if hr.Status == domain.StepStatusError {
		out.Decision = domain.VerifyRetry
		out.Reason = "handler_error"
		return out
	}

	expURL := step.StringParam("verify_url")
	expTitle := step.StringParam("verify_title")
	expTexts := step.StringListParam("verify_text")
	expValue := step.StringParam("verify_value")
	if expURL == "" && expTitle == "" && len(expTexts) == 0 && expValue == "" {
		out.Decision = domain.VerifyFailed
		out.Reason = "missing_expected_verify"
		return out
	}
	out.Expected = map[string]any{}
	if expURL != "" {
		out.Expected["url"] = expURL
	}
	if expTitle != "" {
		out.Expected["title"] = expTitle
	}
	if len(expTexts) > 0 {
		out.Expected["text"] = expTexts
	}
	if expValue != "" {
		out.Expected["value"] = expValue
	}

	observed := hr.Payload
	check := func(key string, match func(got string) bool) (ok, present bool) {
		raw, has := observed[key]
		got, _ := raw.(string)
		if !has || got == "" {
			return false, false
		}
		return match(got), true
	}

	containsFold := func(want string) func(string) bool {
		return func(got string) bool {
			return strings.Contains(strings.ToLower(got), strings.ToLower(want))
		}
	}

	anyAbsent := false
	if expURL != "" {
		ok, present := check("url", containsFold(expURL))
		if present && !ok {
			return failedMismatch(out, observed)
		}
		if !present {
			anyAbsent = true
		}
	}
	if expTitle != "" {
		ok, present := check("title", containsFold(expTitle))
		if present && !ok {
			return failedMismatch(out, observed)
		}
		if !present {
			anyAbsent = true
		}
	}
	if expValue != "" {
		ok, present := check("value", func(got string) bool { return got == expValue })
		if present && !ok {
			return failedMismatch(out, observed)
		}
		if !present {
			anyAbsent = true
		}
	}
	if len(expTexts) > 0 {
		raw, has := observed["text"]
		got, _ := raw.(string)
		if !has || got == "" {
			anyAbsent = true
		} else {
			for _, want := range expTexts {
				if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
					return failedMismatch(out, observed)
				}
			}
		}
	}
	if anyAbsent {
		out.Decision = domain.VerifyRetry
		out.Reason = "verification_retry"
		out.Actual = compactObserved(observed)
		return out
	}
	out.Decision = domain.VerifySuccess
	out.Reason = "verified"
	out.Actual = compactObserved(observed)
	return out
}

func failedMismatch(out domain.VerificationResult, observed map[string]any) domain.VerificationResult {
	out.Decision = domain.VerifyFailed
	out.Reason = "verification_failed"
	out.Actual = compactObserved(observed)
	return out
}

func compactObserved(observed map[string]any) map[string]any {
	if observed == nil {
		return nil
	}
	out := map[string]any{}
	for _, key := range []string{"url", "title", "text", "value"} {
		if v, ok := observed[key]; ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// verifyFileMutation checks the filesystem post-condition: non-existence for
// delete, existence at the destination for everything else.
func verifyFileMutation(step domain.ActionStep, hr domain.HandlerResult, workDir string) domain.VerificationResult {
	out := domain.VerificationResult{Verifier: "file"}
	if hr.Status == domain.StepStatusError {
		out.Decision = domain.VerifyRetry
		out.Reason = "handler_error"
		return out
	}
	target, wantExists := mutationTarget(step, workDir)
	if target == "" {
		out.Decision = domain.VerifySuccess
		out.Reason = "verified"
		return out
	}
	_, err := os.Stat(target)
	exists := err == nil
	out.Expected = map[string]any{"path": target, "exists": wantExists}
	out.Actual = map[string]any{"exists": exists}
	if exists == wantExists {
		out.Decision = domain.VerifySuccess
		out.Reason = "verified"
		return out
	}
	out.Decision = domain.VerifyRetry
	out.Reason = "verification_retry"
	return out
}

// mutationTarget resolves the path whose post-condition proves the mutation,
// and whether it should exist afterwards.
func mutationTarget(step domain.ActionStep, workDir string) (string, bool) {
	norm := func(raw string) string {
		p, err := guard.NormalizePath(raw, workDir)
		if err != nil {
			return raw
		}
		return p
	}
	switch step.Action {
	case domain.ActionDeleteFile:
		return norm(step.StringParam("path")), false
	case domain.ActionWriteFile, domain.ActionCreateFolder:
		return norm(step.StringParam("path")), true
	case domain.ActionMoveFile, domain.ActionCopyFile:
		src := step.StringParam("source")
		dir := step.StringParam("destination_dir")
		if src == "" || dir == "" {
			return "", true
		}
		return filepath.Join(norm(dir), filepath.Base(src)), true
	case domain.ActionRenameFile:
		src := step.StringParam("source")
		name := step.StringParam("new_name")
		if src == "" || name == "" {
			return "", true
		}
		return filepath.Join(filepath.Dir(norm(src)), name), true
	}
	return "", true
}

// verifyGeneric passes the handler status through.
func verifyGeneric(hr domain.HandlerResult) domain.VerificationResult {
	out := domain.VerificationResult{Verifier: "generic"}
	if hr.Status == domain.StepStatusError {
		out.Decision = domain.VerifyRetry
		out.Reason = "handler_error"
		return out
	}
	out.Decision = domain.VerifySuccess
	out.Reason = "verified"
	return out
}
