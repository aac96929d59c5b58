package agentcore

import (
	"sort"
	"strconv"
	"sync"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// RoutingState is the externally-visible snapshot a routing policy reads
// (§4.1.2 "pure functions of (task, ctx, available_agents,
// policy_state_snapshot)"). Policies never mutate it; the caller
// (Orchestrator) owns advancing state between calls.
type RoutingState struct {
	// Counter is the round-robin cursor (§4.1.2 "thread-safe counter,
	// modulo pool size").
	Counter uint64
}

// RoutingPolicy is a pure, deterministic function from
// (task, ctx, available, state) to a RoutingDecision (§4.1.2, §8
// property 5).
type RoutingPolicy func(task string, ctx contract.ExecutionContext, available []string, state RoutingState) contract.RoutingDecision

// RoundRobin selects available[state.Counter % len(available)]. Same
// fixed state and available set always yields the same target (§8
// property 5); advancing the counter between orchestrate() calls is the
// Orchestrator's responsibility, not the policy's.
func RoundRobin(task string, ctx contract.ExecutionContext, available []string, state RoutingState) contract.RoutingDecision {
	if len(available) == 0 {
		return contract.RoutingDecision{Reason: "no agents available"}
	}
	idx := int(state.Counter % uint64(len(available)))
	target := available[idx]
	var fallback string
	if len(available) > 1 {
		fallback = available[(idx+1)%len(available)]
	}
	return contract.RoutingDecision{
		Target:   target,
		Reason:   "round-robin: counter=" + strconv.FormatUint(state.Counter, 10) + " modulo " + strconv.FormatUint(uint64(len(available)), 10),
		Fallback: fallback,
	}
}

// CapabilityPredicate reports whether an agent is capable of handling
// task. CapabilityMatch scores candidates by how many predicates they
// satisfy.
type CapabilityPredicate func(agent, task string) bool

// CapabilityMatch scores available agents against task using predicates,
// breaking ties lexicographically by agent id (§4.1.2 "score candidates
// by predicate set, ties broken by lexicographic id").
func CapabilityMatch(predicates []CapabilityPredicate) RoutingPolicy {
	return func(task string, ctx contract.ExecutionContext, available []string, state RoutingState) contract.RoutingDecision {
		if len(available) == 0 {
			return contract.RoutingDecision{Reason: "no agents available"}
		}
		type candidate struct {
			id    string
			score int
		}
		scored := make([]candidate, len(available))
		for i, id := range available {
			score := 0
			for _, pred := range predicates {
				if pred(id, task) {
					score++
				}
			}
			scored[i] = candidate{id: id, score: score}
		}
		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score > scored[j].score
			}
			return scored[i].id < scored[j].id
		})
		best := scored[0]
		var fallback string
		if len(scored) > 1 {
			fallback = scored[1].id
		}
		return contract.RoutingDecision{
			Target:   best.id,
			Reason:   "capability-match: score=" + strconv.FormatUint(uint64(best.score), 10),
			Fallback: fallback,
		}
	}
}

// router wraps a RoutingPolicy with the thread-safe counter state
// required by round-robin (§5 "Router counter ... updated under a
// mutex").
type router struct {
	mu      sync.Mutex
	policy  RoutingPolicy
	counter uint64
}

func newRouter(policy RoutingPolicy) *router {
	if policy == nil {
		policy = RoundRobin
	}
	return &router{policy: policy}
}

// Decide computes a decision against the current counter snapshot, then
// advances the counter. Decide itself is not pure (it mutates shared
// state), but the underlying policy call is (§8 property 5 holds for the
// policy function, not for this stateful wrapper).
func (r *router) Decide(task string, ctx contract.ExecutionContext, available []string) contract.RoutingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	decision := r.policy(task, ctx, available, RoutingState{Counter: r.counter})
	r.counter++
	return decision
}

