package contracterrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBySentinel(t *testing.T) {
	assert.Equal(t, SystemNetwork, Classify(ErrNetwork))
	assert.Equal(t, SystemTimeout, Classify(ErrTimeout))
	assert.Equal(t, PolicyBudget, Classify(ErrBudgetExhausted))
	assert.Equal(t, PolicyApprovalDenied, Classify(ErrApprovalDenied))
	assert.Equal(t, PolicySecurity, Classify(ErrSecurityViolation))
	assert.Equal(t, UserInvalidInput, Classify(ErrInvalidInput))
}

func TestClassifyByContextDeadline(t *testing.T) {
	assert.Equal(t, SystemTimeout, Classify(context.DeadlineExceeded))
}

func TestClassifyByKeyword(t *testing.T) {
	assert.Equal(t, SystemTimeout, Classify(errors.New("operation timeout exceeded")))
	assert.Equal(t, SystemNetwork, Classify(errors.New("dial tcp: connection refused")))
	assert.Equal(t, UserInvalidInput, Classify(errors.New("validation failed: missing field")))
	assert.Equal(t, PolicyApprovalDenied, Classify(errors.New("request forbidden by policy")))
}

func TestClassifyDefaultsToAgentLogic(t *testing.T) {
	assert.Equal(t, AgentLogic, Classify(errors.New("something unexpected happened")))
}

func TestClassifyHonorsExplicitWrap(t *testing.T) {
	wrapped := Wrap(PolicyBudget, errors.New("ceiling hit"))
	assert.Equal(t, PolicyBudget, Classify(wrapped))
	// Even when the message would otherwise classify as a timeout.
	wrapped2 := fmt.Errorf("context: %w", Wrap(PolicyBudget, errors.New("timeout-like message")))
	assert.Equal(t, PolicyBudget, Classify(wrapped2))
}

func TestRetryableModes(t *testing.T) {
	assert.True(t, SystemNetwork.Retryable())
	assert.True(t, SystemTimeout.Retryable())
	assert.True(t, SystemUnavailable.Retryable())
	assert.False(t, UserInvalidInput.Retryable())
	assert.False(t, PolicyApprovalDenied.Retryable())
	assert.False(t, PolicyBudget.Retryable())
	assert.False(t, AgentLogic.Retryable())
}

func TestTerminalMode(t *testing.T) {
	assert.True(t, PolicySecurity.Terminal())
	assert.False(t, SystemNetwork.Terminal())
}

func TestPermanentWrapping(t *testing.T) {
	err := Permanent(errors.New("do not retry me"))
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("plain error")))
}

func TestAgentErrorTypeMapping(t *testing.T) {
	assert.Equal(t, "VALIDATION", string(UserInvalidInput.AgentErrorType()))
	assert.Equal(t, "TIMEOUT", string(SystemTimeout.AgentErrorType()))
	assert.Equal(t, "NETWORK", string(SystemNetwork.AgentErrorType()))
	assert.Equal(t, "PERMISSION", string(PolicyBudget.AgentErrorType()))
}
