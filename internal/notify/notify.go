// Package notify forwards factory events to chat platforms (Slack, Discord).
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/logging"
)

// Notifier delivers one formatted event to a chat platform.
type Notifier interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Notify sends evt. Implementations honor ctx cancellation.
	Notify(ctx context.Context, evt FormattedEvent) error
}

// FormattedEvent is a factory event rendered for chat.
type FormattedEvent struct {
	Title    string  // headline, e.g. "EnergyAgent fell back"
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint
	Fields   []Field // key-value metadata
}

// Field is a key-value pair displayed with an event.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Source is the subscribe side of the event hub.
type Source interface {
	Subscribe() *events.Subscription
	Unsubscribe(*events.Subscription)
}

// RelayOpts configures a Relay.
type RelayOpts struct {
	Source    Source
	Notifiers []Notifier
	// FallbackOnly forwards only fallback decisions and drops everything else.
	FallbackOnly bool
	Logger       logging.Logger
}

// Relay subscribes to the hub and forwards each event to every notifier.
type Relay struct {
	source       Source
	notifiers    []Notifier
	fallbackOnly bool
	log          logging.Logger
}

// NewRelay validates opts and returns a Relay.
func NewRelay(opts RelayOpts) (*Relay, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("notify: source is required")
	}
	if len(opts.Notifiers) == 0 {
		return nil, fmt.Errorf("notify: at least one notifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Relay{
		source:       opts.Source,
		notifiers:    opts.Notifiers,
		fallbackOnly: opts.FallbackOnly,
		log:          opts.Logger.With("component", "notify"),
	}, nil
}

// Run forwards events until ctx is done or the hub closes. Delivery failures
// are logged and never stop the relay.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.source.Subscribe()
	defer r.source.Unsubscribe(sub)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("notify: next event: %w", err)
		}
		r.Handle(ctx, ev)
	}
}

// Handle formats ev and sends it to every notifier.
func (r *Relay) Handle(ctx context.Context, ev events.Event) {
	if r.fallbackOnly && !IsFallback(ev) {
		return
	}
	fe, ok := Format(ev)
	if !ok {
		return
	}
	for _, n := range r.notifiers {
		if err := n.Notify(ctx, fe); err != nil {
			r.log.Warn("notification failed", "notifier", n.Name(), "event", ev.Type, "err", err)
		}
	}
}
