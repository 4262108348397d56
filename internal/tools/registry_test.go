package tools

import (
	"context"
	"testing"

	xerrors "ChainCart/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string, schema *Schema) *Func {
	return &Func{
		ToolName:        name,
		ToolDescription: "echo",
		ToolSchema:      schema,
		Run: func(_ context.Context, params map[string]interface{}) (interface{}, error) {
			return params, nil
		},
	}
}

func TestRegisterRejectsInvalidTools(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(echoTool("", nil)))
	require.NoError(t, r.Register(echoTool("echo", nil)))
	assert.Error(t, r.Register(echoTool("echo", nil)))
}

func TestSpecsKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, r.Register(echoTool(name, &Schema{Type: "object"})))
	}
	specs := r.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "b", specs[0].Name)
	assert.Equal(t, "c", specs[2].Name)
	assert.Equal(t, "object", specs[0].Parameters["type"])
	assert.NotNil(t, specs[0].Parameters["properties"])
}

func TestExecuteValidatesParams(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("send", &Schema{
		Type:       "object",
		Properties: map[string]interface{}{"amount": map[string]interface{}{"type": "string"}},
		Required:   []string{"amount"},
	})))

	_, err := r.Execute(context.Background(), "send", map[string]interface{}{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "missing required field: amount")

	_, err = r.Execute(context.Background(), "send", map[string]interface{}{"amount": 1.5})
	assert.Contains(t, err.Error(), "expected string")

	out, err := r.Execute(context.Background(), "send", map[string]interface{}{"amount": "1.5"})
	require.NoError(t, err)
	assert.Equal(t, "1.5", out.(map[string]interface{})["amount"])
}

func TestExecuteUnknownTool(t *testing.T) {
	_, err := NewRegistry().Execute(context.Background(), "missing", nil)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestValidatorTypes(t *testing.T) {
	v := DefaultValidator{}
	schema := &Schema{Properties: map[string]interface{}{
		"n":   map[string]interface{}{"type": "integer"},
		"obj": map[string]interface{}{"type": "object"},
		"ok":  map[string]interface{}{"type": "boolean"},
	}}
	assert.NoError(t, v.Validate(map[string]interface{}{"n": float64(3), "obj": map[string]interface{}{}, "ok": true}, schema))
	assert.Error(t, v.Validate(map[string]interface{}{"n": 3.5}, schema))
	assert.Error(t, v.Validate(map[string]interface{}{"obj": "x"}, schema))
	assert.NoError(t, v.Validate(nil, nil))
}
