package worker

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of a human-in-the-loop approval check (§4.4
// step 3).
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// ApprovalRequest carries the context an ApprovalService needs to decide
// on one gated tool call.
type ApprovalRequest struct {
	Tool    string
	TraceID string
	Profile string
	Inputs  map[string]any
}

// ApprovalResponse is what an ApprovalService returns for a completed
// (non-timed-out) approval check.
type ApprovalResponse struct {
	Decision Decision
	Note     string
}

// ApprovalService resolves one ApprovalRequest. Implementations MAY block
// (e.g. waiting on a human) up to the context deadline the caller sets
// from ToolSpec.ApprovalTimeoutSeconds; the worker treats ctx.Err() as an
// approval_timeout, which defaults to deny (§4.4 step 3, §7).
//
// Approval-service implementation and UX are out of scope per spec.md
// §9's open questions; only this protocol is fixed.
type ApprovalService interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}

// PolicyApprover is the default ApprovalService: an allow/deny-list
// approver in the style of an ApprovalChecker/ApprovalPolicy pairing,
// generalized from "safe binaries" to tool-name glob patterns, with a
// configurable default decision when nothing matches.
type PolicyApprover struct {
	mu sync.RWMutex

	Allowlist       []string
	Denylist        []string
	DefaultDecision Decision
}

// NewPolicyApprover builds a PolicyApprover that denies anything not on
// the allowlist by default, matching the guardrail policy's
// allowlist-only stance (§4.7).
func NewPolicyApprover(allowlist, denylist []string) *PolicyApprover {
	return &PolicyApprover{
		Allowlist:       allowlist,
		Denylist:        denylist,
		DefaultDecision: DecisionDenied,
	}
}

// RequestApproval implements ApprovalService.
func (p *PolicyApprover) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, pattern := range p.Denylist {
		if globMatch(pattern, req.Tool) {
			return ApprovalResponse{Decision: DecisionDenied, Note: "denylisted"}, nil
		}
	}
	for _, pattern := range p.Allowlist {
		if globMatch(pattern, req.Tool) {
			return ApprovalResponse{Decision: DecisionApproved, Note: "allowlisted"}, nil
		}
	}
	return ApprovalResponse{Decision: p.DefaultDecision, Note: "default"}, nil
}

func globMatch(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}

// awaitApproval blocks on svc up to timeout, translating a context
// deadline into an approval_timeout (default: deny) per §4.4 step 3.
func awaitApproval(ctx context.Context, svc ApprovalService, req ApprovalRequest, timeout time.Duration) (resp ApprovalResponse, timedOut bool) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp ApprovalResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := svc.RequestApproval(waitCtx, req)
		ch <- result{r, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return ApprovalResponse{Decision: DecisionDenied, Note: r.err.Error()}, false
		}
		return r.resp, false
	case <-waitCtx.Done():
		return ApprovalResponse{Decision: DecisionDenied, Note: "approval_timeout"}, true
	}
}
