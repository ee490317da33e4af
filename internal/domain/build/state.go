package build

import "github.com/thesara-space/forge/internal/shared/types"

// transitions lists the allowed status changes. Failure is reachable from
// every non-terminal state; terminal states have no exits.
var transitions = map[types.BuildStatus][]types.BuildStatus{
	types.BuildQueued:    {types.BuildBundling, types.BuildFailed},
	types.BuildBundling:  {types.BuildVerifying, types.BuildFailed},
	types.BuildVerifying: {types.BuildPublished, types.BuildFailed},
	types.BuildPublished: {},
	types.BuildFailed:    {},
}

// CanTransition reports whether a build may move from one status to another.
func CanTransition(from, to types.BuildStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
