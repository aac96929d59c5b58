package contract

import "context"

// Agent is the single interface every role (Planner, Worker, Coordinator)
// implements (§9 "Polymorphism over the capability set {plan, execute,
// dispatch} is expressed via a single interface process(AgentRequest) ->
// AgentResponse; the adapter internally fans out to role-specific
// logic"). This eliminates per-agent special-casing in the orchestrator:
// callers that only need "hand this agent a request and get a response"
// never need to know which concrete role they're talking to.
type Agent interface {
	Process(ctx context.Context, req AgentRequest) AgentResponse
}
