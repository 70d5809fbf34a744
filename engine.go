// Package graphflow is a reconfigurable orchestrator for multi-agent
// workflows: a process is a directed graph of heterogeneous agents
// described entirely in a YAML DSL, and the engine drives it from the
// start node to termination over an immutable, deep-merged global state.
//
// Usage:
//
//	import "github.com/dmoreira/graphflow"
//
//	eng, err := graphflow.Load("process.yaml",
//	    graphflow.WithProvider(myProvider),
//	    graphflow.WithToolRegistry(myTools),
//	)
//	if err != nil { ... }                       // DSL validation failed
//	final := eng.Run(ctx, map[string]any{...})  // never raises; faults land in quality.error
package graphflow

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/config"
	"github.com/dmoreira/graphflow/internal/metrics"
	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/process/dsl"
	"github.com/dmoreira/graphflow/process/graph"
	"github.com/dmoreira/graphflow/process/state"
	"github.com/dmoreira/graphflow/process/tools"
)

// Engine is a compiled, validated process plus its runner. Construction
// is strict (any DSL violation fails New); running is forgiving (agent
// faults are folded into quality.error, never raised).
type Engine struct {
	def    *graph.Definition
	runner *graph.Runner
	cfg    *config.Config
	logger *zap.Logger
}

type engineOptions struct {
	provider  llmclient.Provider
	tools     *tools.Registry
	logger    *zap.Logger
	cfg       *config.Config
	collector *metrics.Collector
}

// Option configures the engine created by New or Load.
type Option func(*engineOptions)

// WithProvider sets the model client every model-backed agent kind calls.
func WithProvider(p llmclient.Provider) Option {
	return func(o *engineOptions) { o.provider = p }
}

// WithToolRegistry sets the registry backing deterministic functions,
// reflection rules and tool_using tools.
func WithToolRegistry(r *tools.Registry) Option {
	return func(o *engineOptions) { o.tools = r }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithConfig overrides the default runtime configuration.
func WithConfig(c *config.Config) Option {
	return func(o *engineOptions) { o.cfg = c }
}

// WithCollector attaches a Prometheus collector for step, agent and
// loop-guard metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(o *engineOptions) { o.collector = c }
}

// New constructs an Engine from YAML bytes. It returns an error -- a
// *dsl.ValidationErrors for structural violations -- without building
// any agent when the document is invalid.
func New(source []byte, opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.tools == nil {
		o.tools = tools.NewRegistry()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}

	doc, err := dsl.Load(source, o.tools)
	if err != nil {
		return nil, err
	}

	def, err := graph.Compile(doc, graph.Deps{
		Provider:      o.provider,
		Tools:         o.tools,
		Logger:        o.logger,
		MaxReactSteps: o.cfg.Process.MaxReactSteps,
		UTCPTimeout:   o.cfg.Process.UTCPTimeout,
		LLMMaxRetries: o.cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	runnerOpts := []graph.RunnerOption{
		graph.WithLogger(o.logger),
		graph.WithMaxVisits(o.cfg.Process.MaxVisitsPerNode),
	}
	if o.collector != nil {
		runnerOpts = append(runnerOpts, graph.WithCollector(o.collector))
	}

	return &Engine{
		def:    def,
		runner: graph.NewRunner(def, runnerOpts...),
		cfg:    o.cfg,
		logger: o.logger,
	}, nil
}

// Load reads a process definition from a file and constructs an Engine.
func Load(path string, opts ...Option) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read process definition %s: %w", path, err)
	}
	return New(data, opts...)
}

// Run executes the process to termination and returns the final state.
// Runtime faults never surface as errors: they are observable in
// quality.error and in the messages audit trail.
func (e *Engine) Run(ctx context.Context, initialContext map[string]any) state.Global {
	return e.runner.Run(ctx, initialContext)
}

// Definition exposes the compiled process, mainly for inspection and tests.
func (e *Engine) Definition() *graph.Definition { return e.def }
