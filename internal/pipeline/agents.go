package pipeline

import (
	"strings"

	"github.com/zulandar/intellifactory/internal/decision"
)

// Agent is one advisor role: a name used in prompts and the audit log, a
// short slug used by the CLI and HTTP routes, and the role prompt.
type Agent struct {
	Name    string
	Slug    string
	Role    string
	Allowed []decision.ActionType
}

// Agents lists every role in the order run-all applies them.
var Agents = []Agent{
	{
		Name: "ProductionAgent",
		Slug: "production",
		Role: `You are a production scheduling agent.
- Allowed actions: increase_speed, reduce_speed, reassign_job, schedule_maintenance
- Focus on optimizing throughput, balancing machine load, and meeting order deadlines.
`,
		Allowed: []decision.ActionType{decision.IncreaseSpeed, decision.ReduceSpeed, decision.ReassignJob, decision.ScheduleMaintenance},
	},
	{
		Name: "EnergyAgent",
		Slug: "energy",
		Role: `You are an energy optimization agent.
- Allowed actions: reduce_speed, schedule_maintenance
- Focus on minimizing energy costs while keeping production goals intact.
`,
		Allowed: []decision.ActionType{decision.ReduceSpeed, decision.ScheduleMaintenance},
	},
	{
		Name: "QualityAgent",
		Slug: "quality",
		Role: `You are a quality control agent.
- Allowed actions: schedule_maintenance, reduce_speed
- Focus on preventing quality issues by detecting risks in process parameters.
`,
		Allowed: []decision.ActionType{decision.ScheduleMaintenance, decision.ReduceSpeed},
	},
	{
		Name: "MaintenanceAgent",
		Slug: "maintenance",
		Role: `You are a maintenance planning agent.
- Allowed actions: schedule_maintenance
- Focus on scheduling preventive maintenance without disrupting critical orders.
`,
		Allowed: []decision.ActionType{decision.ScheduleMaintenance},
	},
	{
		Name: "SupplyChainAgent",
		Slug: "supply",
		Role: `You are a supply chain agent.
- Allowed actions: reassign_job
- Focus on managing order allocation and ensuring materials are available.
`,
		Allowed: []decision.ActionType{decision.ReassignJob},
	},
}

// Lookup finds an agent by name or slug, case-insensitively.
func Lookup(name string) (Agent, bool) {
	for _, a := range Agents {
		if strings.EqualFold(a.Name, name) || strings.EqualFold(a.Slug, name) {
			return a, true
		}
	}
	return Agent{}, false
}

// ResultKey is the key under which run-all reports this agent's decision,
// e.g. "production_agent".
func (a Agent) ResultKey() string {
	return a.Slug + "_agent"
}
