package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentRequestRequiresGoal(t *testing.T) {
	_, err := NewAgentRequest("", "task", RequestMetadata{TraceID: "t1"})
	require.ErrorIs(t, err, ErrEmptyGoal)
}

func TestNewAgentRequestRequiresTask(t *testing.T) {
	_, err := NewAgentRequest("goal", "", RequestMetadata{TraceID: "t1"})
	require.ErrorIs(t, err, ErrEmptyTask)
}

func TestNewAgentRequestRequiresTraceID(t *testing.T) {
	_, err := NewAgentRequest("goal", "task", RequestMetadata{})
	require.ErrorIs(t, err, ErrMissingTraceID)
}

func TestNewAgentRequestClampsPriority(t *testing.T) {
	req, err := NewAgentRequest("goal", "task", RequestMetadata{TraceID: "t1", Priority: 99})
	require.NoError(t, err)
	assert.Equal(t, 10, req.Metadata.Priority)

	req, err = NewAgentRequest("goal", "task", RequestMetadata{TraceID: "t1", Priority: -5})
	require.NoError(t, err)
	assert.Equal(t, 0, req.Metadata.Priority)
}

func TestNewAgentRequestDefaultsProfile(t *testing.T) {
	req, err := NewAgentRequest("goal", "task", RequestMetadata{TraceID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "default", req.Metadata.Profile)
}

func TestAgentRequestRoundTrip(t *testing.T) {
	req, err := NewAgentRequest("find cheap flights", "search_flights", RequestMetadata{
		TraceID:        "trace-99",
		Profile:        "prod",
		Priority:       5,
		TimeoutSeconds: 30,
		Tags:           []string{"travel", "budget"},
	})
	require.NoError(t, err)
	req.Inputs = map[string]any{"origin": "SFO"}
	req.ExpectedOutput = "a ranked list of flights"

	back, err := AgentRequestFromDict(req.ToDict())
	require.NoError(t, err)

	assert.Equal(t, req.Goal, back.Goal)
	assert.Equal(t, req.Task, back.Task)
	assert.Equal(t, req.Metadata.TraceID, back.Metadata.TraceID)
	assert.Equal(t, req.Metadata.Profile, back.Metadata.Profile)
	assert.Equal(t, req.Metadata.Priority, back.Metadata.Priority)
	assert.Equal(t, req.Metadata.Tags, back.Metadata.Tags)
	assert.Equal(t, req.Inputs, back.Inputs)
	assert.Equal(t, req.ExpectedOutput, back.ExpectedOutput)
}

func TestAgentRequestFromDictPropagatesValidationError(t *testing.T) {
	_, err := AgentRequestFromDict(map[string]any{"goal": "", "task": "x"})
	assert.True(t, errors.Is(err, ErrEmptyGoal))
}
