package hook

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
)

// Hook definition error codes (H400-H499)
const (
	ErrHookDoctype   = "H401" // hook without a doctype
	ErrHookType      = "H402" // unknown hook type
	ErrHookAction    = "H403" // unknown action type
	ErrHookCondition = "H404" // condition does not parse
	ErrHookScript    = "H405" // script missing or does not parse
	ErrHookWebhook   = "H406" // webhook URL missing or not http(s)
	ErrHookEmail     = "H407" // email hook without recipients
)

// ValidateHook checks a hook definition. Returns all issues found.
func ValidateHook(h *model.Hook) []errs.Issue {
	var issues []errs.Issue
	add := func(field, code, format string, args ...any) {
		issues = append(issues, errs.Issue{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(h.Doctype) == "" {
		add("doctype", ErrHookDoctype, "hook doctype is required")
	}
	if !slices.Contains(model.HookTypes, h.Type) {
		add("hook_type", ErrHookType, "unknown hook type %q", h.Type)
	}
	if h.Condition != "" {
		if _, err := expr.Compile(h.Condition); err != nil {
			add("condition", ErrHookCondition, "condition does not parse: %v", err)
		}
	}

	switch h.Action {
	case model.ActionScript:
		if strings.TrimSpace(h.Script) == "" {
			add("script", ErrHookScript, "script hook needs a script")
		} else if _, err := expr.CompileProgram(h.Script); err != nil {
			add("script", ErrHookScript, "script does not parse: %v", err)
		}
	case model.ActionWebhook:
		u, err := url.Parse(h.WebhookURL)
		if h.WebhookURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("webhook_url", ErrHookWebhook, "webhook hook needs an http or https URL")
		}
	case model.ActionEmail:
		if len(h.EmailRecipients) == 0 {
			add("email_recipients", ErrHookEmail, "email hook needs at least one recipient")
		}
	case model.ActionNotification:
	default:
		add("action_type", ErrHookAction, "unknown action type %q", h.Action)
	}
	return issues
}

// CheckHook returns a schema error listing every issue, or nil.
func CheckHook(h *model.Hook) error {
	if issues := ValidateHook(h); len(issues) > 0 {
		name := h.Name
		if name == "" {
			name = h.Doctype + " " + string(h.Type) + " hook"
		}
		return errs.NewSchema(name, issues)
	}
	return nil
}
