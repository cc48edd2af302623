package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waypointlabs/waypoint/api/schemas"
)

func inv(name string) schemas.ToolInvocation {
	return schemas.ToolInvocation{Name: name, Args: map[string]schemas.Value{}}
}

func names(invs []schemas.ToolInvocation) []string {
	out := make([]string, 0, len(invs))
	for _, i := range invs {
		out = append(out, i.Name)
	}
	return out
}

func TestOrderInvocationsCollectBeforeNavigation(t *testing.T) {
	ordered := orderInvocations([]schemas.ToolInvocation{
		inv(ToolClick), inv(ToolCollect), inv(ToolCaptureDiagram), inv(ToolDone),
	})
	assert.Equal(t, []string{ToolCollect, ToolCaptureDiagram, ToolDone, ToolClick}, names(ordered))
}

func TestOrderInvocationsStableWithinClass(t *testing.T) {
	a := schemas.ToolInvocation{Name: ToolCollect, Args: map[string]schemas.Value{"label": schemas.StrValue("first")}}
	b := schemas.ToolInvocation{Name: ToolCollect, Args: map[string]schemas.Value{"label": schemas.StrValue("second")}}
	ordered := orderInvocations([]schemas.ToolInvocation{a, inv(ToolClick), b})
	assert.Equal(t, "first", ordered[0].StrArg("label"))
	assert.Equal(t, "second", ordered[1].StrArg("label"))
	assert.Equal(t, ToolClick, ordered[2].Name)
}

func TestWantsContextReset(t *testing.T) {
	assert.True(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCollect), inv(ToolClick)}))
	assert.True(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCaptureDiagram), inv(ToolClick)}),
		"captured artifacts are banked data too")
	assert.True(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolExtractData), inv(ToolGoBack)}))
	assert.False(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCollect), inv(ToolDone)}),
		"terminal turn never resets")
	assert.False(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCollect), inv(ToolClick), inv(ToolDone)}))
	assert.False(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolClick)}),
		"navigation without collection is normal exploration")
	assert.False(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCollect)}))
	assert.False(t, wantsContextReset([]schemas.ToolInvocation{inv(ToolCollect), inv(ToolClick), inv(ToolAskUser)}))
}

func TestClassifyTerminals(t *testing.T) {
	assert.True(t, isTerminal(ToolDone))
	assert.True(t, isTerminal(ToolGiveUp))
	assert.False(t, isTerminal(ToolAskUser))
	assert.Equal(t, classNavigation, classify("some_future_tool"))
}
