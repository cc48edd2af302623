package agent

// LoopState represents the controller's position in its navigation state
// machine. Terminal states end the Navigate call; AWAITING_USER suspends it.
type LoopState string

const (
	StateExploring         LoopState = "EXPLORING"
	StateAwaitingModel     LoopState = "AWAITING_MODEL"
	StateDispatching       LoopState = "DISPATCHING"
	StateAwaitingUser      LoopState = "AWAITING_USER"
	StateTerminatedSuccess LoopState = "TERMINATED_SUCCESS"
	StateTerminatedFailure LoopState = "TERMINATED_FAILURE"
)

// Tool names the dispatcher understands. These match the decoder's default
// tool table.
const (
	ToolClick          = "click"
	ToolTypeText       = "type_text"
	ToolScroll         = "scroll"
	ToolGoBack         = "go_back"
	ToolCloseOverlay   = "close_overlay"
	ToolExpandAll      = "expand_all"
	ToolCollect        = "collect"
	ToolExtractData    = "extract_data"
	ToolCaptureDiagram = "capture_diagram"
	ToolAskUser        = "ask_user"
	ToolDone           = "done"
	ToolGiveUp         = "give_up"
)

// Fragment is one labeled piece of data the agent stored during a session.
type Fragment struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}
