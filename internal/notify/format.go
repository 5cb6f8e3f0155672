package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/events"
	"github.com/zulandar/intellifactory/internal/models"
	"github.com/zulandar/intellifactory/internal/simulation"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Format renders a hub event for chat. ok is false for event types that are
// not forwarded.
func Format(ev events.Event) (FormattedEvent, bool) {
	switch ev.Type {
	case events.TypeDecision:
		d, ok := decisionPayload(ev.Payload)
		if !ok {
			return FormattedEvent{}, false
		}
		return FormatDecision(d), true
	case events.TypeStateUpdate:
		updates, ok := ev.Payload.([]simulation.Update)
		if !ok || len(updates) == 0 {
			return FormattedEvent{}, false
		}
		return FormatStateUpdate(updates), true
	default:
		return FormattedEvent{}, false
	}
}

// IsFallback reports whether ev carries a fallback decision.
func IsFallback(ev events.Event) bool {
	if ev.Type != events.TypeDecision {
		return false
	}
	d, ok := decisionPayload(ev.Payload)
	return ok && d.Fallback
}

func decisionPayload(p any) (decision.Decision, bool) {
	switch d := p.(type) {
	case decision.Decision:
		return d, true
	case *decision.Decision:
		if d == nil {
			return decision.Decision{}, false
		}
		return *d, true
	}
	return decision.Decision{}, false
}

// FormatDecision formats an advisor decision.
func FormatDecision(d decision.Decision) FormattedEvent {
	severity := "success"
	title := fmt.Sprintf("%s proposed %d action(s)", d.Agent, len(d.Actions))
	switch {
	case d.Fallback:
		severity = "warning"
		title = fmt.Sprintf("%s fell back to no action", d.Agent)
	case len(d.Actions) == 0:
		severity = "info"
		title = fmt.Sprintf("%s proposed no changes", d.Agent)
	}

	var lines []string
	for _, a := range d.Actions {
		lines = append(lines, fmt.Sprintf("• %s on machine %s (%s)", a.Type, string(a.MachineID), formatNumber(float64(a.Value))))
	}
	if d.Impact.Notes != "" {
		lines = append(lines, d.Impact.Notes)
	}

	fields := []Field{
		{Name: "Agent", Value: d.Agent, Short: true},
		{Name: "Attempts", Value: strconv.Itoa(d.Attempts), Short: true},
	}
	if !d.Fallback {
		fields = append(fields,
			Field{Name: "Throughput", Value: formatPercent(float64(d.Impact.ThroughputChangePercent)), Short: true},
			Field{Name: "Energy", Value: formatPercent(float64(d.Impact.EnergyChangePercent)), Short: true},
		)
	}

	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatStateUpdate formats the machine changes from one apply.
func FormatStateUpdate(updates []simulation.Update) FormattedEvent {
	severity := "info"
	lines := make([]string, 0, len(updates))
	for _, u := range updates {
		if u.NewStatus == models.MachineMaintenance {
			severity = "warning"
		}
		lines = append(lines, fmt.Sprintf("Machine %d: %s at %s%%", u.MachineID, u.NewStatus, formatNumber(u.NewUtilization)))
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("%d machine(s) updated", len(updates)),
		Body:     strings.Join(lines, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(v float64) string {
	s := formatNumber(v) + "%"
	if v > 0 {
		s = "+" + s
	}
	return s
}
