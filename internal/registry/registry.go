// Package registry implements the Tool Registry & Execution pipeline
// (§4.4): ToolSpec definitions, allowlisted-namespace-enforced
// registration, JSON-Schema parameter validation, the sandbox profile
// contract, a circuit breaker per tool, and a job store backing async
// tool calls. It follows the shape of an
// internal/tools/policy package (Policy/Resolver allow-deny resolution,
// ToolGroup registration) generalized from chat-agent tool policy to a
// standalone execution pipeline, and on internal/retry/retry.go for the
// backoff/classification vocabulary it shares with the worker.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SandboxProfile is one of the five declarative execution environments a
// ToolSpec can run under (§4.4.2).
type SandboxProfile string

const (
	SandboxPySlim      SandboxProfile = "py-slim"
	SandboxPyFull      SandboxProfile = "py-full"
	SandboxNodeSlim    SandboxProfile = "node-slim"
	SandboxNodeFull    SandboxProfile = "node-full"
	SandboxOrchestrator SandboxProfile = "orchestrator"
)

// SandboxContract describes one sandbox profile's writable roots and
// network posture, per the §4.4.2 table.
type SandboxContract struct {
	Profile        SandboxProfile
	WritableRoots  []string
	NetworkAllowed bool
	PackageSurface string
}

// SandboxContracts is the full declarative table from §4.4.2.
var SandboxContracts = map[SandboxProfile]SandboxContract{
	SandboxPySlim: {
		Profile:        SandboxPySlim,
		WritableRoots:  []string{"/workdir"},
		NetworkAllowed: false,
		PackageSurface: "standard library",
	},
	SandboxPyFull: {
		Profile:        SandboxPyFull,
		WritableRoots:  []string{"/workdir", "/tmp"},
		NetworkAllowed: true,
		PackageSurface: "slim + vetted libs",
	},
	SandboxNodeSlim: {
		Profile:        SandboxNodeSlim,
		WritableRoots:  []string{"/workdir"},
		NetworkAllowed: false,
		PackageSurface: "core modules",
	},
	SandboxNodeFull: {
		Profile:        SandboxNodeFull,
		WritableRoots:  []string{"/workdir", "/tmp"},
		NetworkAllowed: true,
		PackageSurface: "core + vetted npm",
	},
	SandboxOrchestrator: {
		Profile:        SandboxOrchestrator,
		WritableRoots:  nil, // full filesystem access
		NetworkAllowed: true,
		PackageSurface: "trusted",
	},
}

// CanonicalizePath enforces the writable-root restriction for profile: it
// rejects any path that does not resolve under one of the profile's
// writable roots. The orchestrator profile has unrestricted writable
// roots and always passes.
func CanonicalizePath(profile SandboxProfile, path string) error {
	contract, ok := SandboxContracts[profile]
	if !ok {
		return fmt.Errorf("registry: unknown sandbox profile %q", profile)
	}
	if contract.WritableRoots == nil {
		return nil
	}
	clean := cleanPath(path)
	for _, root := range contract.WritableRoots {
		if clean == root || strings.HasPrefix(clean, root+"/") {
			return nil
		}
	}
	return fmt.Errorf("registry: path %q escapes sandbox %s writable roots %v", path, profile, contract.WritableRoots)
}

func cleanPath(path string) string {
	// Reject traversal attempts defensively; a full path canonicalizer
	// belongs to the sandbox runtime itself, not this declarative layer.
	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

// Handler is a tool's executable body: it receives decoded inputs and the
// invocation context (trace_id, profile, etc. carried on ctx) and returns
// a result or an error.
type Handler func(ctx context.Context, inputs map[string]any) (any, error)

// Overrides lets a specific tool deviate from the registry-wide retry
// policy (§[FULL-SUPPLEMENT]): a positive MaxAttempts replaces the
// policy's attempt count and a positive Timeout replaces TimeoutSeconds.
// Backoff (delays, multiplier, jitter) cannot be overridden per tool.
type Overrides struct {
	MaxAttempts int
	Timeout     time.Duration
}

// ToolSpec is the immutable definition of a registered tool (§3.1).
type ToolSpec struct {
	Name        string
	Description string
	Handler     Handler

	// ParametersSchema is the tool's JSON Schema for its inputs, compiled
	// once at registration time.
	ParametersSchema map[string]any

	Cost                   float64
	MaxTokens              int
	SandboxProfile         SandboxProfile
	NetworkAllowed         bool
	ReadOnly               bool
	TimeoutSeconds         float64
	ApprovalRequired       bool
	ApprovalTimeoutSeconds float64
	Allowlist              []string // permitted imports/modules
	Denylist               []string
	Tags                   []string
	Version                string

	// Async marks a tool whose handler is dispatched to the bounded
	// worker pool and polled via JobStore rather than awaited inline.
	Async bool

	Overrides Overrides

	compiledSchema *jsonschema.Schema
}

var (
	// ErrToolNotFound is returned by Get for unregistered tools.
	ErrToolNotFound = errors.New("registry: tool not found")

	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("registry: tool already registered")

	// ErrNamespaceNotAllowlisted is returned when a tool's declared
	// module namespace is not in the registry's allowlisted set
	// (§4.4.1 "Tools MUST belong to an allowlisted module namespace").
	ErrNamespaceNotAllowlisted = errors.New("registry: module namespace not allowlisted")
)

// Registry is the static name -> ToolSpec lookup described in §4.4.1. It
// enforces global name uniqueness and allowlisted-namespace registration;
// it never supports dynamic eval/exec of tool code.
type Registry struct {
	mu                 sync.RWMutex
	tools              map[string]*ToolSpec
	order              []string // insertion order, for deterministic planner tie-breaking
	allowedNamespaces  map[string]bool
	breakers           map[string]*CircuitBreaker
	breakerConfig      BreakerConfig
}

// New builds an empty Registry. allowedNamespaces lists the module
// namespace prefixes ("nexus", "mcp:search", ...) tools may declare
// themselves under; registration from any other namespace is rejected.
// An empty list disables the check and admits every namespace.
func New(allowedNamespaces []string, breakerConfig BreakerConfig) *Registry {
	allowed := make(map[string]bool, len(allowedNamespaces))
	for _, ns := range allowedNamespaces {
		allowed[ns] = true
	}
	return &Registry{
		tools:             make(map[string]*ToolSpec),
		allowedNamespaces: allowed,
		breakers:          make(map[string]*CircuitBreaker),
		breakerConfig:     breakerConfig,
	}
}

// namespaceOf derives a tool's module namespace from its name the same
// way a policy resolver derives a provider key: "nexus" for
// plain names, "mcp:<server>" for "mcp:<server>.<tool>" names.
func namespaceOf(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		rest := name[idx+1:]
		if dot := strings.Index(rest, "."); dot >= 0 {
			return name[:idx] + ":" + rest[:dot]
		}
		return name[:idx]
	}
	return "nexus"
}

// Register adds spec to the registry, compiling its parameter schema and
// enforcing namespace allowlisting and name uniqueness.
func (r *Registry) Register(spec *ToolSpec) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("registry: tool spec must have a name")
	}

	ns := namespaceOf(spec.Name)
	if len(r.allowedNamespaces) > 0 && !r.allowedNamespaces[ns] {
		return fmt.Errorf("%w: %q (namespace %q)", ErrNamespaceNotAllowlisted, spec.Name, ns)
	}

	schema, err := compileParameterSchema(spec.Name, spec.ParametersSchema)
	if err != nil {
		return fmt.Errorf("registry: compiling schema for %q: %w", spec.Name, err)
	}
	spec.compiledSchema = schema

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, spec.Name)
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	r.breakers[spec.Name] = NewCircuitBreaker(r.breakerConfig)
	return nil
}

func compileParameterSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{}
	}
	compiler := jsonschema.NewCompiler()
	resourceURL := "tool://" + name + "/parameters.json"
	loaded, err := toJSONSchemaResource(schema)
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(resourceURL, loaded); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceURL)
}

// Get returns the ToolSpec registered under name, or ErrToolNotFound.
func (r *Registry) Get(name string) (*ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return spec, nil
}

// Names returns every registered tool name in registration order, which
// the planner uses as its deterministic tie-breaking order (§4.3).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks inputs against spec's compiled JSON Schema.
func (spec *ToolSpec) Validate(inputs map[string]any) error {
	if spec.compiledSchema == nil {
		return nil
	}
	return spec.compiledSchema.Validate(toValidatable(inputs))
}

// Breaker returns the circuit breaker tracking this tool's recent
// invocation outcomes.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}
