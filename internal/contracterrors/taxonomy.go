// Package contracterrors centralizes the failure-mode taxonomy (§4.4.3) and
// the sentinel/wrapped-error plumbing built on it, the way
// internal/agent/errors.go and internal/retry packages do elsewhere:
// typed sentinel errors, a classifier, and a PermanentError wrapper that
// short-circuits retry regardless of the classified mode.
package contracterrors

import (
	"context"
	"errors"
	"strings"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// FailureMode is the canonical enum from §4.4.3.
type FailureMode string

const (
	UserInvalidInput FailureMode = "USER_INVALID_INPUT"
	AgentLogic       FailureMode = "AGENT_LOGIC"
	SystemNetwork    FailureMode = "SYSTEM_NETWORK"
	SystemTimeout    FailureMode = "SYSTEM_TIMEOUT"
	SystemUnavailable FailureMode = "SYSTEM_UNAVAILABLE"
	PolicyBudget     FailureMode = "POLICY_BUDGET"
	PolicyApprovalDenied FailureMode = "POLICY_APPROVAL_DENIED"
	PolicySecurity   FailureMode = "POLICY_SECURITY"
)

// Retryable reports whether the retry pipeline (§4.4.4) should attempt this
// mode again. Only SYSTEM_NETWORK, SYSTEM_TIMEOUT, and SYSTEM_UNAVAILABLE
// are retryable; everything else surfaces immediately.
func (m FailureMode) Retryable() bool {
	switch m {
	case SystemNetwork, SystemTimeout, SystemUnavailable:
		return true
	default:
		return false
	}
}

// Terminal reports whether the mode bypasses every ErrorPropagation
// strategy (§7 "Terminal errors ... bypass all strategies").
func (m FailureMode) Terminal() bool {
	return m == PolicySecurity
}

// AgentErrorType maps a FailureMode to the pkg/contract.ErrorType used on
// the outward-facing AgentError.
func (m FailureMode) AgentErrorType() contract.ErrorType {
	switch m {
	case UserInvalidInput:
		return contract.ErrorValidation
	case AgentLogic:
		return contract.ErrorExecution
	case SystemNetwork:
		return contract.ErrorNetwork
	case SystemTimeout:
		return contract.ErrorTimeout
	case SystemUnavailable:
		return contract.ErrorNetwork
	case PolicyBudget, PolicyApprovalDenied, PolicySecurity:
		return contract.ErrorPermission
	default:
		return contract.ErrorUnknown
	}
}

// Sentinel errors used throughout the substrate so callers can errors.Is
// against a specific failure mode without re-deriving it.
var (
	ErrInvalidInput     = errors.New("contracterrors: invalid input")
	ErrAgentLogic       = errors.New("contracterrors: agent logic error")
	ErrNetwork          = errors.New("contracterrors: network error")
	ErrTimeout          = errors.New("contracterrors: timeout")
	ErrUnavailable      = errors.New("contracterrors: system unavailable")
	ErrBudgetExhausted  = errors.New("contracterrors: budget exhausted")
	ErrApprovalDenied   = errors.New("contracterrors: approval denied")
	ErrSecurityViolation = errors.New("contracterrors: security policy violation")
)

// ClassifiedError pairs an underlying cause with its FailureMode. Construct
// via Classify rather than directly, mirroring a ToolError shape.
type ClassifiedError struct {
	Mode FailureMode
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Mode)
	}
	return string(e.Mode) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify determines a FailureMode for err: first by sentinel/typed match,
// then by message keyword, defaulting to AGENT_LOGIC (§4.4.3
// "Classification is by explicit exception class first, then by message
// keyword ... then defaults to AGENT_LOGIC").
func Classify(err error) FailureMode {
	if err == nil {
		return AgentLogic
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Mode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return SystemTimeout
	case errors.Is(err, ErrNetwork):
		return SystemNetwork
	case errors.Is(err, ErrUnavailable):
		return SystemUnavailable
	case errors.Is(err, ErrInvalidInput):
		return UserInvalidInput
	case errors.Is(err, ErrBudgetExhausted):
		return PolicyBudget
	case errors.Is(err, ErrApprovalDenied):
		return PolicyApprovalDenied
	case errors.Is(err, ErrSecurityViolation):
		return PolicySecurity
	case errors.Is(err, context.Canceled):
		return SystemTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return SystemTimeout
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "dns"):
		return SystemNetwork
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "denied") || strings.Contains(msg, "unauthorized"):
		return PolicyApprovalDenied
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid"):
		return UserInvalidInput
	case strings.Contains(msg, "unavailable") || strings.Contains(msg, "503") || strings.Contains(msg, "502"):
		return SystemUnavailable
	default:
		return AgentLogic
	}
}

// Wrap annotates err with an explicit FailureMode, bypassing keyword
// classification. Use this at call sites that know the mode precisely (a
// budget guard, an approval gate) instead of relying on Classify's
// heuristics.
func Wrap(mode FailureMode, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Mode: mode, Err: err}
}

// PermanentError marks err as non-retryable regardless of its classified
// mode, mirroring a retry.PermanentError shape.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent below reports true for it, which
// makes internal/retry stop retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
