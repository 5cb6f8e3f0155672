// Package orchestration drives agent invocations end to end: snapshot the
// factory, ask the advisor pipeline, apply the resulting actions.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/pipeline"
	"github.com/zulandar/intellifactory/internal/simulation"
)

// ErrUnknownAgent is returned for an agent name or slug that is not configured.
var ErrUnknownAgent = errors.New("orchestration: unknown agent")

// Snapshotter reads the current factory state.
type Snapshotter interface {
	Snapshot(ctx context.Context) (factory.Snapshot, error)
}

// Runner produces a decision for one agent.
type Runner interface {
	Run(ctx context.Context, agentName string, snap factory.Snapshot) decision.Decision
}

// Applier applies actions to factory state.
type Applier interface {
	Apply(ctx context.Context, actions []decision.Action) []simulation.Update
}

// Opts wires an Orchestrator.
type Opts struct {
	Store    Snapshotter
	Pipeline Runner
	Engine   Applier
	Logger   logging.Logger
}

// Orchestrator runs single agents or all agents in one cycle.
type Orchestrator struct {
	store    Snapshotter
	pipeline Runner
	engine   Applier
	log      logging.Logger
}

// AgentResult is the outcome of one agent invocation.
type AgentResult struct {
	Decision decision.Decision   `json:"decision"`
	Updates  []simulation.Update `json:"updates"`
}

// RunAllResult is the outcome of a run-all cycle. Agents is keyed by result
// key ("production_agent", "energy_agent", ...).
type RunAllResult struct {
	Agents  map[string]decision.Decision `json:"agents"`
	Updates []simulation.Update          `json:"updates"`
}

// New validates opts and returns an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestration: store is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("orchestration: pipeline is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("orchestration: engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Orchestrator{
		store:    opts.Store,
		pipeline: opts.Pipeline,
		engine:   opts.Engine,
		log:      opts.Logger.With("component", "orchestration"),
	}, nil
}

// RunAgent snapshots the factory, runs the named agent and applies its actions.
func (o *Orchestrator) RunAgent(ctx context.Context, name string) (*AgentResult, error) {
	agent, ok := pipeline.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestration: snapshot: %w", err)
	}

	d := o.pipeline.Run(ctx, agent.Name, snap)
	updates := o.engine.Apply(ctx, d.Actions)
	o.log.Info("agent run complete", "agent", agent.Name, "actions", len(d.Actions), "updates", len(updates), "fallback", d.Fallback)
	return &AgentResult{Decision: d, Updates: updates}, nil
}

// RunAll runs every agent concurrently against one snapshot, then applies
// their actions one decision at a time in agent order.
func (o *Orchestrator) RunAll(ctx context.Context) (*RunAllResult, error) {
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestration: snapshot: %w", err)
	}

	decisions := make([]decision.Decision, len(pipeline.Agents))
	var wg sync.WaitGroup
	for i, a := range pipeline.Agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			decisions[i] = o.pipeline.Run(ctx, name, snap)
		}(i, a.Name)
	}
	wg.Wait()

	result := &RunAllResult{
		Agents:  make(map[string]decision.Decision, len(pipeline.Agents)),
		Updates: []simulation.Update{},
	}
	for i, a := range pipeline.Agents {
		d := decisions[i]
		result.Agents[a.ResultKey()] = d
		result.Updates = append(result.Updates, o.engine.Apply(ctx, d.Actions)...)
	}
	o.log.Info("run-all complete", "agents", len(decisions), "updates", len(result.Updates))
	return result, nil
}
