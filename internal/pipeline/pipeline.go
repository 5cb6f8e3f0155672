// Package pipeline turns a factory snapshot into a validated decision for one
// advisor role: prompt, query, validate, retry, fall back, persist, broadcast.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/intellifactory/internal/advisor"
	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/factory"
	"github.com/zulandar/intellifactory/internal/logging"
)

// DecisionSaver persists terminal decisions.
type DecisionSaver interface {
	SaveDecision(ctx context.Context, d decision.Decision) error
}

// Pipeline runs advisor roles against snapshots. It holds no per-run state
// and is safe for concurrent use.
type Pipeline struct {
	client advisor.Client
	saver  DecisionSaver
	pub    events.Publisher
	policy RetryPolicy
	log    logging.Logger
}

// New creates a Pipeline. pub and logger may be nil.
func New(client advisor.Client, saver DecisionSaver, pub events.Publisher, policy RetryPolicy, logger logging.Logger) *Pipeline {
	if pub == nil {
		pub = events.PublisherFunc(func(events.Event) {})
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		client: client,
		saver:  saver,
		pub:    pub,
		policy: policy,
		log:    logger.With("component", "pipeline"),
	}
}

// Prompt is the user message sent for agent with the serialized snapshot.
func Prompt(agentName string, snapshot []byte) string {
	return fmt.Sprintf("%s: Analyze factory state.\n%s\n", agentName, snapshot)
}

// Run asks agentName's advisor role for a decision on snap. It always returns
// a decision: a validated one, or a fallback once the retry policy is spent.
// The decision is persisted and broadcast before Run returns; a persistence
// failure is logged only.
func (p *Pipeline) Run(ctx context.Context, agentName string, snap factory.Snapshot) decision.Decision {
	role := ""
	if a, ok := Lookup(agentName); ok {
		agentName, role = a.Name, a.Role
	} else {
		p.log.Warn("unknown agent, running without role prompt", "agent", agentName)
	}

	body, err := json.Marshal(snap)
	var d decision.Decision
	if err != nil {
		d = p.policy.fallback()(agentName, 0, "", fmt.Errorf("marshal snapshot: %w", err), time.Now())
	} else {
		prompt := Prompt(agentName, body)
		system := advisor.SystemPrompt(role)
		d = p.policy.Do(ctx, agentName, p.log, func(ctx context.Context, attempt int) (decision.Decision, string, error) {
			raw, err := p.client.Query(ctx, prompt, system)
			if err != nil {
				return decision.Decision{}, raw, err
			}
			parsed, err := decision.Parse(agentName, raw, time.Now())
			return parsed, raw, err
		})
	}

	if p.saver != nil {
		if err := p.saver.SaveDecision(context.WithoutCancel(ctx), d); err != nil {
			p.log.Error("save decision", "agent", agentName, "err", err)
		}
	}
	p.pub.Publish(events.New(events.TypeDecision, d))
	return d
}
