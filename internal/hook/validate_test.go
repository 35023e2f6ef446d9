package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
)

func TestValidateHook(t *testing.T) {
	tests := []struct {
		name  string
		hook  model.Hook
		codes []string
	}{
		{
			name: "valid script",
			hook: model.Hook{Doctype: "Invoice", Type: model.BeforeSave, Action: model.ActionScript, Script: "data.x = 1"},
		},
		{
			name:  "missing doctype and bad type",
			hook:  model.Hook{Type: "before_print", Action: model.ActionNotification},
			codes: []string{ErrHookDoctype, ErrHookType},
		},
		{
			name:  "script does not parse",
			hook:  model.Hook{Doctype: "Invoice", Type: model.BeforeSave, Action: model.ActionScript, Script: "data.x ="},
			codes: []string{ErrHookScript},
		},
		{
			name: "bad condition",
			hook: model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: model.ActionNotification,
				Condition: "data.total >"},
			codes: []string{ErrHookCondition},
		},
		{
			name:  "webhook without scheme",
			hook:  model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: model.ActionWebhook, WebhookURL: "example.com/hook"},
			codes: []string{ErrHookWebhook},
		},
		{
			name:  "email without recipients",
			hook:  model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: model.ActionEmail},
			codes: []string{ErrHookEmail},
		},
		{
			name:  "unknown action",
			hook:  model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: "sms"},
			codes: []string{ErrHookAction},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := ValidateHook(&tt.hook)
			var codes []string
			for _, is := range issues {
				codes = append(codes, is.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestCheckHook_SchemaError(t *testing.T) {
	err := CheckHook(&model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: "sms"})
	require.Error(t, err)
	assert.True(t, errs.IsSchema(err))
	assert.NoError(t, CheckHook(&model.Hook{Doctype: "Invoice", Type: model.AfterSave, Action: model.ActionNotification}))
}
