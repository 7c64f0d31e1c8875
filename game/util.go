package game

import (
	"cmp"
	"slices"

	"github.com/pthm-cable/flock/telemetry"
)

// sortAgentStates orders snapshot agents by id.
func sortAgentStates(states []telemetry.AgentState) {
	slices.SortFunc(states, func(a, b telemetry.AgentState) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
