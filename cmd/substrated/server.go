package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/substrate/internal/agentcore"
	"github.com/haasonsaas/substrate/internal/config"
	"github.com/haasonsaas/substrate/internal/guardrail"
	"github.com/haasonsaas/substrate/internal/memory"
	"github.com/haasonsaas/substrate/internal/observability"
	"github.com/haasonsaas/substrate/internal/registry"
	"github.com/haasonsaas/substrate/internal/retry"
	"github.com/haasonsaas/substrate/internal/worker"
	"github.com/haasonsaas/substrate/pkg/contract"
)

// server wires the substrate's core packages behind a minimal HTTP
// transport. Grounded on internal/gateway/http_server.go's
// mux/ListenAndServe/graceful-shutdown shape, generalized
// from the multi-channel gateway to the orchestrator's single
// POST /orchestrate boundary (§6).
type server struct {
	cfg       *config.Config
	collector *observability.Collector
	orch      *agentcore.Orchestrator
	policies  map[string]*guardrail.Policy

	httpServer   *http.Server
	httpListener net.Listener
	shutdownFns  []func(context.Context) error
}

func newServer(cfg *config.Config) (*server, error) {
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	exporters := []observability.Exporter{observability.NewConsoleExporter(nil, 256)}
	collector := observability.New(observability.CollectorConfig{
		BufferSize: cfg.Observability.BufferSize,
		Exporters:  exporters,
		Metrics:    metrics,
	})

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:  "substrated",
		Endpoint:     cfg.Observability.OTLPEndpoint,
		SamplingRate: cfg.Observability.TraceSampling,
	})
	_ = tracer

	memBackend, err := buildMemoryBackend(cfg.Memory)
	if err != nil {
		return nil, err
	}

	reg := registry.New([]string{"nexus"}, registry.DefaultBreakerConfig())
	registerBuiltinTools(reg)

	policies := make(map[string]*guardrail.Policy, len(cfg.Guardrail))
	for name, p := range cfg.Guardrail {
		policy := guardrail.NewPolicy(name, p.ToolAllowlist)
		policy.Budget = guardrail.Budget{MaxCost: p.BudgetMaxCost, MaxCalls: p.BudgetMaxCalls, MaxTokens: p.BudgetMaxTokens}
		if p.BudgetPolicy == "block" {
			policy.BudgetPolicy = guardrail.BudgetPolicyBlock
		}
		if p.BudgetWarningThreshold > 0 {
			policy.BudgetWarningThreshold = p.BudgetWarningThreshold
		}
		for _, tool := range p.RequireApproval {
			policy.ApprovalRules[tool] = true
		}
		policies[name] = policy
	}
	if _, ok := policies[cfg.Profile]; !ok {
		policies[cfg.Profile] = guardrail.NewPolicy(cfg.Profile, []string{"*"})
	}

	retryPolicy := retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
	}

	planner := agentcore.NewPlanner(agentcore.PlannerConfig{
		Registry:    reg,
		Memory:      memBackend,
		Collector:   collector,
		MaxSteps:    cfg.MaxSteps,
		DefaultTool: "echo",
	})

	orch := agentcore.NewOrchestrator(agentcore.Config{
		Planner:     planner,
		Collector:   collector,
		Policies:    policies,
		RetryPolicy: retryPolicy,
		MaxSteps:    cfg.MaxSteps,
	})
	orch.RegisterWorker(worker.New(worker.Config{
		ID:          "worker-1",
		Registry:    reg,
		Memory:      memBackend,
		Collector:   collector,
		RetryPolicy: retryPolicy,
		Jobs:        registry.NewJobStore(4),
	}))

	return &server{
		cfg:       cfg,
		collector: collector,
		orch:      orch,
		policies:  policies,
		shutdownFns: []func(context.Context) error{
			shutdownTracer,
			func(ctx context.Context) error { collector.Shutdown(ctx); return nil },
		},
	}, nil
}

func buildMemoryBackend(cfg config.MemoryConfig) (memory.Backend, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return memory.NewRedisBackend(client, "substrate:memory"), nil
	default:
		backend := memory.NewLocalBackend(cfg.StatePath)
		if cfg.StatePath != "" {
			_ = backend.Load(context.Background(), cfg.StatePath)
		}
		return backend, nil
	}
}

// registerBuiltinTools registers the always-available demonstration tool
// so a freshly started substrated can answer a request with no extra
// wiring; real deployments register domain tools via the registry
// before calling Start.
func registerBuiltinTools(reg *registry.Registry) {
	_ = reg.Register(&registry.ToolSpec{
		Name:        "echo",
		Description: "repeats the goal text back, useful as a smoke-test tool",
		SandboxProfile: registry.SandboxOrchestrator,
		Handler: func(ctx context.Context, inputs map[string]any) (any, error) {
			return inputs["goal"], nil
		},
	})
}

type orchestrateRequest struct {
	Goal           string         `json:"goal"`
	TraceID        string         `json:"trace_id"`
	Profile        string         `json:"profile"`
	Metadata       map[string]any `json:"metadata"`
	TimeoutSeconds float64        `json:"timeout_seconds"`
}

func (s *server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Goal == "" {
		http.Error(w, "goal is required", http.StatusBadRequest)
		return
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	if req.Profile == "" {
		req.Profile = s.cfg.Profile
	}

	execCtx := contract.NewExecutionContext(req.TraceID).WithProfile(req.Profile)
	for k, v := range req.Metadata {
		execCtx = execCtx.WithMetadata(k, v)
	}

	ctx := r.Context()
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds*float64(time.Second)))
		defer cancel()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, canFlush := w.(http.Flusher)

	events := s.orch.Orchestrate(ctx, req.Goal, execCtx, contract.FailFast)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

func (s *server) start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)
	mux := http.NewServeMux()
	mux.HandleFunc("/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.httpListener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()
	slog.Info("substrated listening", "addr", addr)
	return nil
}

func (s *server) shutdown(ctx context.Context) {
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
	for _, fn := range s.shutdownFns {
		if fn == nil {
			continue
		}
		_ = fn(ctx)
	}
}
