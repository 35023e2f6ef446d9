package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctype_UnmarshalDefaults(t *testing.T) {
	var dt Doctype
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Task","fields":[{"name":"estimate","type":"decimal","default":0.10}]}`), &dt))

	assert.True(t, dt.IsActive)
	f, ok := dt.Field("estimate")
	require.True(t, ok)
	assert.Equal(t, json.Number("0.10"), f.Default)

	_, ok = dt.Field("missing")
	assert.False(t, ok)
}

func TestDoctype_FieldsOfType(t *testing.T) {
	dt := Doctype{Fields: []Field{
		{Name: "a", Type: FieldLink, LinkTarget: "X"},
		{Name: "b", Type: FieldString},
		{Name: "c", Type: FieldLink, LinkTarget: "Y"},
		{Name: "d", Type: FieldMultiselect, LinkTarget: "Tag"},
	}}
	links := dt.FieldsOfType(FieldLink)
	require.Len(t, links, 2)
	assert.Equal(t, "c", links[1].Name)
	assert.True(t, dt.Fields[3].IsMultiLink())
	assert.False(t, dt.Fields[0].IsMultiLink())
}

func TestWorkflow_UnmarshalAndLookup(t *testing.T) {
	var wf Workflow
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "Review", "doctype": "Post",
		"states": [{"name": "Draft"}, {"name": "Open", "is_initial": true}],
		"transitions": [{"label": "Bump", "from_state": "Open", "to_state": "Open",
			"actions": [{"type": "set_field", "field": "priority", "value": 3}]}]
	}`), &wf))

	assert.True(t, wf.IsActive)
	initial, ok := wf.InitialState()
	require.True(t, ok)
	assert.Equal(t, "Open", initial.Name)
	assert.Equal(t, json.Number("3"), wf.Transitions[0].Actions[0].Value)

	_, ok = wf.State("Closed")
	assert.False(t, ok)
}

func TestHookType_IsBefore(t *testing.T) {
	assert.True(t, BeforeSave.IsBefore())
	assert.True(t, BeforeDelete.IsBefore())
	assert.False(t, AfterSave.IsBefore())
	assert.False(t, OnChange.IsBefore())
	assert.Len(t, HookTypes, 9)
}

func TestActor_Roles(t *testing.T) {
	a := Actor{ID: "u1", Roles: []string{"clerk"}}
	assert.True(t, a.HasRole("clerk"))
	assert.True(t, a.HasAnyRole(nil))
	assert.True(t, a.HasAnyRole([]string{"manager", "clerk"}))
	assert.False(t, a.HasAnyRole([]string{"manager"}))
	assert.True(t, SystemActor.HasAnyRole([]string{"manager"}))
}

func TestDocument_IsFrozen(t *testing.T) {
	assert.False(t, (&Document{DocStatus: Draft}).IsFrozen())
	assert.True(t, (&Document{DocStatus: Submitted}).IsFrozen())
	assert.True(t, (&Document{DocStatus: Cancelled}).IsFrozen())
	assert.Equal(t, "cancelled", Cancelled.String())
}

func TestChanges_IsEmpty(t *testing.T) {
	assert.True(t, Changes{}.IsEmpty())
	assert.False(t, Changes{Modified: map[string]Modification{"a": {}}}.IsEmpty())
}
