// Package agentcore implements the Planner and Coordinator/Orchestrator
// roles from §4.1 and §4.3: the vector-ranked deterministic planning
// algorithm, the lifecycle-driving orchestrate() stream, routing
// policies, and error-propagation strategies. Grounded on an
// internal/agent/routing package (Router/Rule/Classifier, pure scoring
// functions over request tags) generalized from LLM-provider selection
// to registry-tool selection, and on internal/agent/loop.go's channel-
// streaming state machine generalized from the agentic tool loop to the
// orchestration lifecycle.
package agentcore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/memory"
	"github.com/haasonsaas/substrate/internal/observability"
	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// memoryHitBonus is the pinned additive bonus a tool receives when its
// name overlaps a memory search hit's text, per §4.3 step 3 ("bounded")
// and §9's open question ("tests MUST pin a concrete weight if the bonus
// is used"). 0.1 is small enough that it can never outrank a tool with
// strictly higher term overlap at the granularities max_steps tests use.
const memoryHitBonus = 0.1

var termPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopwords are dropped when normalizing the goal and tool term bags
// (§4.3 step 1 "stopword-free").
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "for": true, "of": true,
	"and": true, "or": true, "in": true, "on": true, "with": true, "is": true,
	"me": true, "my": true, "please": true, "i": true, "it": true,
}

func normalizeTerms(text string) []string {
	matches := termPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if stopwords[m] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func termSet(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

func overlapCount(goalTerms map[string]bool, candidate []string) int {
	seen := make(map[string]bool, len(candidate))
	count := 0
	for _, t := range candidate {
		if seen[t] {
			continue
		}
		seen[t] = true
		if goalTerms[t] {
			count++
		}
	}
	return count
}

// PlannerConfig configures a Planner.
type PlannerConfig struct {
	Registry  *registry.Registry
	Memory    memory.Backend
	Collector *observability.Collector

	// MaxSteps bounds plan length (config.max_steps, default 10, §6).
	MaxSteps int

	// DefaultTool, when set, is emitted as a single-step plan when every
	// registry tool scores zero against the goal (§4.3 step 5). When
	// unset, a zero-scored goal returns an ERROR/VALIDATION response.
	DefaultTool string

	// MemoryTopK bounds how many advisory memory hits are consulted
	// (§4.3 step 2).
	MemoryTopK int
}

// Planner ranks registry tools against a goal and emits a deterministic,
// ordered Plan (§4.3).
type Planner struct {
	registry    *registry.Registry
	memory      memory.Backend
	collector   *observability.Collector
	maxSteps    int
	defaultTool string
	memoryTopK  int
}

// NewPlanner builds a Planner from cfg.
func NewPlanner(cfg PlannerConfig) *Planner {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	topK := cfg.MemoryTopK
	if topK <= 0 {
		topK = 5
	}
	return &Planner{
		registry:    cfg.Registry,
		memory:      cfg.Memory,
		collector:   cfg.Collector,
		maxSteps:    maxSteps,
		defaultTool: cfg.DefaultTool,
		memoryTopK:  topK,
	}
}

type scoredTool struct {
	name  string
	score float64
}

// Plan runs the §4.3 algorithm for goal under profile (via policy's
// allowlist, which may be nil to permit every registered tool) and
// returns the resulting Plan. Re-invoking with the same
// (goal, registry snapshot, memory snapshot, profile) always yields an
// identical Plan (§4.3 "Determinism", §8 property irrelevant to routing
// but equally binding here).
func (p *Planner) Plan(ctx context.Context, goal string, execCtx contract.ExecutionContext, policy *guardrail.Policy) (contract.Plan, error) {
	if p.registry == nil {
		return contract.Plan{}, fmt.Errorf("agentcore: planner has no registry configured")
	}

	names := p.registry.Names()
	if len(names) == 0 {
		return contract.Plan{}, fmt.Errorf("agentcore: registry is empty")
	}

	goalTerms := termSet(normalizeTerms(goal))

	var memoryHitTools map[string]bool
	if p.memory != nil {
		hits, err := p.memory.Search(ctx, execCtx.Profile, strings.Join(sortedKeys(goalTerms), " "), p.memoryTopK)
		if err == nil {
			memoryHitTools = make(map[string]bool)
			for _, h := range hits {
				for _, term := range normalizeTerms(h.Record.Text) {
					memoryHitTools[term] = true
				}
			}
		}
	}

	var scored []scoredTool
	for _, name := range names {
		if policy != nil && !policy.CheckTool(name) {
			continue
		}
		spec, err := p.registry.Get(name)
		if err != nil {
			continue
		}
		candidateText := name + " " + spec.Description + " " + strings.Join(spec.Tags, " ")
		candidateTerms := normalizeTerms(candidateText)
		overlap := overlapCount(goalTerms, candidateTerms)
		score := 0.0
		if len(goalTerms) > 0 {
			score = float64(overlap) / float64(max(1, len(goalTerms)))
		}
		if memoryHitTools != nil && memoryHitTools[name] {
			score += memoryHitBonus
		}
		scored = append(scored, scoredTool{name: name, score: score})
	}

	order := make(map[string]int, len(names))
	for i, n := range names {
		order[n] = i
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return order[scored[i].name] < order[scored[j].name]
	})

	if len(scored) == 0 {
		return contract.Plan{}, fmt.Errorf("agentcore: no tool permitted under profile %q", execCtx.Profile)
	}

	allZero := true
	for _, s := range scored {
		if s.score > 0 {
			allZero = false
			break
		}
	}

	// N = clamp(config.max_steps, 1, num_nonzero_scored): "nonzero_scored"
	// is the number of tools the scoring pass actually evaluated (every
	// permitted tool receives a score, even 0), not a filter on score>0 —
	// ties at score 0 still fill out the plan via registry insertion
	// order, per scenario S1 (search_flights, compare_prices both chosen
	// though only the former scores above zero).
	var chosen []scoredTool
	if allZero {
		if p.defaultTool == "" {
			return contract.Plan{}, fmt.Errorf("agentcore: no tool scored against goal %q and no default tool configured", goal)
		}
		chosen = []scoredTool{{name: p.defaultTool, score: 0}}
	} else {
		n := clamp(p.maxSteps, 1, len(scored))
		chosen = scored[:n]
	}

	steps := make([]contract.PlanStep, len(chosen))
	for i, s := range chosen {
		steps[i] = contract.PlanStep{
			Tool:    s.name,
			Input:   map[string]any{"goal": goal},
			Reason:  fmt.Sprintf("score=%.4f", s.score),
			TraceID: execCtx.TraceID,
			Index:   i,
		}
	}

	plan := contract.Plan{Steps: steps}
	if err := plan.Validate(p.maxSteps); err != nil {
		return contract.Plan{}, err
	}

	if p.memory != nil {
		_ = p.memory.Remember(ctx, goal, map[string]any{"profile": execCtx.Profile, "trace_id": execCtx.TraceID})
	}

	p.emit(execCtx.TraceID, contract.EventPlanCreated, map[string]any{"steps_count": len(steps)})

	return plan, nil
}

// Process implements contract.Agent: it builds a Plan for req.Goal and
// wraps it in the SUCCESS/ERROR response shape (§4.3 "Output").
func (p *Planner) Process(ctx context.Context, req contract.AgentRequest) contract.AgentResponse {
	execCtx := contract.NewExecutionContext(req.Metadata.TraceID).WithProfile(req.Metadata.Profile)
	trace := []map[string]any{
		{"event": "plan:start", "trace_id": execCtx.TraceID},
	}

	plan, err := p.Plan(ctx, req.Goal, execCtx, nil)
	if err != nil {
		return contract.NewErrorResponse(
			contract.NewAgentError(contract.ErrorValidation, err.Error(), execCtx.TraceID),
			append(trace, map[string]any{"event": "plan:error", "trace_id": execCtx.TraceID, "error": err.Error()}),
		)
	}

	trace = append(trace,
		map[string]any{"event": "plan:steps", "trace_id": execCtx.TraceID, "steps_count": len(plan.Steps)},
		map[string]any{"event": "plan:complete", "trace_id": execCtx.TraceID},
	)

	resp, err := contract.NewSuccessResponse(map[string]any{"steps": plan.Steps}, trace)
	if err != nil {
		return contract.NewErrorResponse(contract.NewAgentError(contract.ErrorExecution, err.Error(), execCtx.TraceID), trace)
	}
	return resp
}

func (p *Planner) emit(traceID string, typ contract.EventType, attrs map[string]any) {
	if p.collector == nil {
		return
	}
	p.collector.Emit(observability.StructuredEvent{
		EventType:  string(typ),
		TraceID:    traceID,
		Status:     string(contract.EventStatusSuccess),
		Attributes: attrs,
	})
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
