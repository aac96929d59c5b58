package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSpec(name string) *ToolSpec {
	return &ToolSpec{
		Name:           name,
		Description:    "echoes its input",
		SandboxProfile: SandboxPySlim,
		Handler: func(ctx context.Context, inputs map[string]any) (any, error) {
			return inputs, nil
		},
		ParametersSchema: map[string]any{
			"type":     "object",
			"required": []string{"text"},
			"properties": map[string]any{
				"text": map[string]any{"type": "string", "minLength": 1},
			},
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))

	spec, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", spec.Name)
}

func TestGetUnknownTool(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))
	err := r.Register(echoSpec("echo"))
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestRegisterRejectsUnallowlistedNamespace(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	err := r.Register(echoSpec("mcp:scratch.run"))
	assert.ErrorIs(t, err, ErrNamespaceNotAllowlisted)
}

func TestRegisterAllowsAllowlistedMCPNamespace(t *testing.T) {
	r := New([]string{"nexus", "mcp:scratch"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("mcp:scratch.run")))
}

func TestEmptyAllowlistPermitsAnyNamespace(t *testing.T) {
	r := New(nil, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("anything:here.tool")))
}

func TestNamesPreservesRegistrationOrder(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("first")))
	require.NoError(t, r.Register(echoSpec("second")))
	require.NoError(t, r.Register(echoSpec("third")))

	assert.Equal(t, []string{"first", "second", "third"}, r.Names())
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))

	spec, err := r.Get("echo")
	require.NoError(t, err)
	assert.Error(t, spec.Validate(map[string]any{}))
}

func TestValidateAcceptsConformingInput(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))

	spec, err := r.Get("echo")
	require.NoError(t, err)
	assert.NoError(t, spec.Validate(map[string]any{"text": "hello"}))
}

func TestValidateRejectsWrongType(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))

	spec, err := r.Get("echo")
	require.NoError(t, err)
	assert.Error(t, spec.Validate(map[string]any{"text": 123}))
}

func TestBreakerAssignedPerTool(t *testing.T) {
	r := New([]string{"nexus"}, DefaultBreakerConfig())
	require.NoError(t, r.Register(echoSpec("echo")))

	breaker := r.Breaker("echo")
	require.NotNil(t, breaker)
	assert.Equal(t, BreakerClosed, breaker.State())
}

func TestCanonicalizePathEnforcesWritableRoots(t *testing.T) {
	assert.NoError(t, CanonicalizePath(SandboxPySlim, "/workdir/output.txt"))
	assert.Error(t, CanonicalizePath(SandboxPySlim, "/etc/passwd"))
}

func TestCanonicalizePathRejectsTraversalEscape(t *testing.T) {
	assert.Error(t, CanonicalizePath(SandboxPySlim, "/workdir/../../etc/passwd"))
}

func TestCanonicalizePathOrchestratorUnrestricted(t *testing.T) {
	assert.NoError(t, CanonicalizePath(SandboxOrchestrator, "/etc/passwd"))
}

func TestCanonicalizePathUnknownProfile(t *testing.T) {
	assert.Error(t, CanonicalizePath(SandboxProfile("bogus"), "/workdir/x"))
}
