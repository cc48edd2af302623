package agent

import (
	"sort"

	"github.com/waypointlabs/waypoint/api/schemas"
)

// Action classes drive the within-turn ordering policy. Data collection runs
// before captures, captures before suspension, suspension before terminals,
// and navigation last so that a model emitting "collect(...) click(...)" in
// one response banks the data before the page mutates underneath it.
const (
	classCollect = iota
	classCapture
	classSuspend
	classTerminal
	classNavigation
)

func classify(name string) int {
	switch name {
	case ToolCollect, ToolExtractData:
		return classCollect
	case ToolCaptureDiagram:
		return classCapture
	case ToolAskUser:
		return classSuspend
	case ToolDone, ToolGiveUp:
		return classTerminal
	default:
		return classNavigation
	}
}

// orderInvocations sorts one model turn's invocations by class, stable within
// a class so the model's own ordering of same-class calls is preserved.
func orderInvocations(invs []schemas.ToolInvocation) []schemas.ToolInvocation {
	out := make([]schemas.ToolInvocation, len(invs))
	copy(out, invs)
	sort.SliceStable(out, func(i, j int) bool {
		return classify(out[i].Name) < classify(out[j].Name)
	})
	return out
}

func hasClass(invs []schemas.ToolInvocation, class int) bool {
	for _, inv := range invs {
		if classify(inv.Name) == class {
			return true
		}
	}
	return false
}

// wantsContextReset reports whether a turn both banked data (a fragment or a
// captured artifact) and navigated onward without terminating, the signature
// of a multi-item goal moving to its next target. The controller resets
// breadcrumbs and browser state so each item is pursued from a clean slate.
func wantsContextReset(invs []schemas.ToolInvocation) bool {
	return (hasClass(invs, classCollect) || hasClass(invs, classCapture)) &&
		hasClass(invs, classNavigation) &&
		!hasClass(invs, classTerminal) &&
		!hasClass(invs, classSuspend)
}

// isTerminal reports whether the invocation ends the session.
func isTerminal(name string) bool {
	return name == ToolDone || name == ToolGiveUp
}
