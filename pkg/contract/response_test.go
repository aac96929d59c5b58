package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSuccessResponseRequiresResult(t *testing.T) {
	_, err := NewSuccessResponse(nil, nil)
	require.ErrorIs(t, err, ErrResultRequired)
}

func TestNewSuccessResponseOK(t *testing.T) {
	resp, err := NewSuccessResponse("ok", []map[string]any{{"event": "plan:complete", "trace_id": "t1"}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "ok", resp.Result)
	assert.False(t, resp.Timestamp.IsZero())
	require.NoError(t, resp.Validate())
}

func TestNewErrorResponseSetsError(t *testing.T) {
	agentErr := NewAgentError(ErrorValidation, "bad input", "t1")
	resp := NewErrorResponse(agentErr, nil)
	assert.Equal(t, StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrorValidation, resp.Error.Type)
	require.NoError(t, resp.Validate())
}

func TestResponseValidateCatchesInvariantViolations(t *testing.T) {
	bad := AgentResponse{Status: StatusSuccess}
	assert.ErrorIs(t, bad.Validate(), ErrResultRequired)

	bad2 := AgentResponse{Status: StatusError}
	assert.ErrorIs(t, bad2.Validate(), ErrErrorRequired)
}

func TestNewCancelledResponseHasNoResult(t *testing.T) {
	resp := NewCancelledResponse(nil)
	assert.Equal(t, StatusCancelled, resp.Status)
	assert.Nil(t, resp.Result)
}

func TestNewPendingResponseCarriesJobID(t *testing.T) {
	resp := NewPendingResponse("job-42", nil)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Equal(t, "job-42", resp.Result.(map[string]any)["job_id"])
}
