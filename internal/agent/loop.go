// Package agent contains the navigation controller: the state machine that
// drives a model-guided exploration of a web UI toward a natural-language
// goal, learning replayable paths as it goes.
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/config"
	"github.com/waypointlabs/waypoint/internal/pathmemory"
	"github.com/waypointlabs/waypoint/internal/toolcall"
)

// ModelGateway is the never-throws completion boundary the controller talks
// to. *llmclient.Gateway satisfies it.
type ModelGateway interface {
	Call(ctx context.Context, req schemas.GenerationRequest) schemas.GenerationResult
}

// Controller owns one navigation session at a time. It is not safe for
// concurrent use; the UI collaborator is a serially-accessed resource.
type Controller struct {
	gateway    ModelGateway
	driver     schemas.Driver
	memory     *pathmemory.Memory
	decoder    *toolcall.Decoder
	dispatcher *Dispatcher
	cfg        config.AgentConfig
	logger     *zap.Logger

	state    LoopState
	session  *SessionState
	messages []schemas.Message
	tools    []schemas.ToolDef
}

// NewController wires a controller over its collaborators.
func NewController(gateway ModelGateway, driver schemas.Driver, memory *pathmemory.Memory, cfg config.AgentConfig, logger *zap.Logger) *Controller {
	log := logger.Named("controller")
	return &Controller{
		gateway:    gateway,
		driver:     driver,
		memory:     memory,
		decoder:    toolcall.NewDecoder(log),
		dispatcher: NewDispatcher(driver, log),
		cfg:        cfg,
		logger:     log,
		state:      StateExploring,
		tools:      toolcall.Defs(toolcall.DefaultTools()),
	}
}

// State exposes the controller's position in the state machine.
func (c *Controller) State() LoopState { return c.state }

// Navigate pursues the goal to completion, suspension, or failure. A learned
// path for the goal is replayed before the model is consulted at all; a
// replay that fails mid-sequence falls back to exploration from wherever the
// UI ended up, never from scratch.
func (c *Controller) Navigate(ctx context.Context, goal string) (schemas.SessionResult, error) {
	if c.state == StateAwaitingUser {
		return schemas.SessionResult{}, fmt.Errorf("session %s is suspended awaiting user input; call Resume", c.session.ID)
	}

	c.session = NewSessionState(goal, c.cfg.FingerprintWindow)
	c.state = StateExploring
	c.messages = nil
	c.logger.Info("Starting navigation session",
		zap.String("session", c.session.ID), zap.String("goal", goal))

	outcome := c.memory.Replay(ctx, goal, c.driver)
	if outcome.Path != nil {
		if outcome.Success {
			if err := c.memory.RecordSuccess(outcome.Key, outcome.Path.Steps, outcome.Data); err != nil {
				c.logger.Warn("Failed to persist replay success", zap.Error(err))
			}
			c.cleanup(ctx)
			c.state = StateTerminatedSuccess
			return schemas.SessionResult{
				Success:    true,
				Data:       outcome.Data,
				Path:       outcome.Path.Steps,
				Steps:      outcome.StepsRun,
				TokensUsed: &c.session.Usage,
			}, nil
		}
		// The learned entry stays; a transient UI hiccup should not unlearn
		// the path. Exploration resumes from wherever the replay stopped.
		c.logger.Info("Replay aborted, exploring from current state",
			zap.String("goal", goal), zap.Int("steps_run", outcome.StepsRun))
	}

	return c.explore(ctx)
}

// Resume continues a session suspended by ask_user, feeding the user's answer
// back into the conversation.
func (c *Controller) Resume(ctx context.Context, answer string) (schemas.SessionResult, error) {
	if c.state != StateAwaitingUser {
		return schemas.SessionResult{}, fmt.Errorf("no suspended session to resume (state %s)", c.state)
	}
	c.session.UserAnswer = answer
	c.messages = append(c.messages, schemas.Message{Role: "user", Content: "USER ANSWER: " + answer})
	c.state = StateExploring
	c.logger.Info("Resuming session", zap.String("session", c.session.ID))
	return c.explore(ctx)
}

// explore runs model turns until a terminal tool, a detected dead end, or the
// hard step ceiling.
func (c *Controller) explore(ctx context.Context) (schemas.SessionResult, error) {
	for c.session.StepCount < c.cfg.MaxSteps {
		snap, err := c.driver.Snapshot(ctx)
		if err != nil {
			// Even a dying browser yields a structured result with the path
			// walked so far, not a bare error.
			return c.finishFailure(ctx, fmt.Sprintf("snapshot failed: %v", err)), nil
		}
		c.messages = append(c.messages, schemas.Message{Role: "user", Content: renderSnapshot(snap)})

		c.state = StateAwaitingModel
		result := c.gateway.Call(ctx, schemas.GenerationRequest{
			SystemPrompt: buildSystemPrompt(c.session.Goal, c.session.Note, c.memory.FailedFor(c.session.Goal)),
			Messages:     c.messages,
			Tools:        c.tools,
		})
		c.session.StepCount++
		c.session.Usage.Add(result.Usage)

		if result.Failed() {
			// The turn is consumed; the step ceiling bounds repeated outages.
			c.logger.Warn("Model turn lost to gateway failure",
				zap.String("session", c.session.ID), zap.Int("step", c.session.StepCount))
			continue
		}
		c.messages = append(c.messages, schemas.Message{Role: "assistant", Content: result.Text})

		invs := c.decoder.Decode(result.Text)
		if len(invs) == 0 {
			if isSurrender(result.Text) {
				return c.finishFailure(ctx, "model declined the goal: "+firstLine(result.Text)), nil
			}
			c.messages = append(c.messages, schemas.Message{
				Role:    "user",
				Content: "No tool call was recognized. Respond with tool calls only, one per line.",
			})
			continue
		}

		c.state = StateDispatching
		sr, done, err := c.runTurn(ctx, invs, snap)
		if done || err != nil {
			return sr, err
		}
	}

	return c.finishFailure(ctx, fmt.Sprintf("step limit of %d reached", c.cfg.MaxSteps)), nil
}

// runTurn dispatches one model turn's invocations in policy order. done=true
// means the session ended or suspended and sr is the final result.
func (c *Controller) runTurn(ctx context.Context, invs []schemas.ToolInvocation, snap schemas.PageSnapshot) (schemas.SessionResult, bool, error) {
	ordered := orderInvocations(invs)
	var results []schemas.ToolResult
	navFailed := false

	for _, inv := range ordered {
		if inv.Name == ToolDone {
			return c.finishSuccess(ctx, inv.StrArg("summary")), true, nil
		}
		if inv.Name == ToolGiveUp {
			reason := inv.StrArg("reason")
			if reason == "" {
				reason = "model gave up"
			}
			return c.finishFailure(ctx, reason), true, nil
		}

		res := c.dispatcher.Dispatch(ctx, inv, snap, c.session)
		results = append(results, res)

		if res.NeedsUserInput {
			// Remaining calls of the turn are dropped; the answer may change
			// everything the model planned after the question.
			c.state = StateAwaitingUser
			c.messages = append(c.messages, schemas.Message{Role: "user", Content: renderResults(results)})
			return schemas.SessionResult{
				Success:        true,
				NeedsUserInput: true,
				Question:       res.Question,
				Options:        res.Options,
				Path:           c.session.Steps,
				Steps:          c.session.StepCount,
				TokensUsed:     &c.session.Usage,
			}, true, nil
		}

		if inv.Name == ToolExtractData && res.Success && inv.BoolArg("complete") {
			return c.finishSuccess(ctx, ""), true, nil
		}

		if classify(inv.Name) == classNavigation {
			if !res.Success {
				navFailed = true
			} else if fresh, err := c.driver.Snapshot(ctx); err == nil {
				// Later calls in the same turn resolve against the page the
				// earlier ones produced.
				snap = fresh
			}
		}

		if last := c.session.Fingerprints.Last(); last != "" &&
			c.session.Fingerprints.looping(last, c.cfg.LoopThreshold) {
			return c.finishFailure(ctx, "loop detected: action repeated without progress ("+last+")"), true, nil
		}
	}

	stale := c.session.ObserveDispatch(!navFailed, snap.Hash())
	if stale >= c.cfg.StaleSnapshotLimit {
		return c.finishFailure(ctx, "dead end: repeated failures with no page change"), true, nil
	}

	if wantsContextReset(invs) {
		c.logger.Info("Context reset after collection",
			zap.String("session", c.session.ID), zap.Int("fragments", len(c.session.Fragments)))
		c.session.ContextReset()
		c.messages = nil
		if err := c.driver.Reset(ctx); err != nil {
			c.logger.Warn("UI reset failed", zap.Error(err))
		}
		return schemas.SessionResult{}, false, nil
	}

	c.messages = append(c.messages, schemas.Message{Role: "user", Content: renderResults(results)})
	return schemas.SessionResult{}, false, nil
}

func (c *Controller) finishSuccess(ctx context.Context, summary string) schemas.SessionResult {
	data := c.session.CombinedData()
	if data == "" {
		data = summary
	}
	if err := c.memory.RecordSuccess(c.session.Goal, c.session.Steps, data); err != nil {
		c.logger.Warn("Failed to persist learned path", zap.Error(err))
	}
	c.cleanup(ctx)
	c.state = StateTerminatedSuccess
	c.logger.Info("Session succeeded",
		zap.String("session", c.session.ID), zap.Int("steps", c.session.StepCount))
	return schemas.SessionResult{
		Success:    true,
		Data:       data,
		Path:       c.session.Steps,
		Steps:      c.session.StepCount,
		Images:     c.session.Artifacts,
		TokensUsed: &c.session.Usage,
	}
}

func (c *Controller) finishFailure(ctx context.Context, reason string) schemas.SessionResult {
	if err := c.memory.RecordFailure(c.session.Goal, c.session.Selectors()); err != nil {
		c.logger.Warn("Failed to persist failed path", zap.Error(err))
	}
	c.cleanup(ctx)
	c.state = StateTerminatedFailure
	c.logger.Warn("Session failed",
		zap.String("session", c.session.ID),
		zap.Int("steps", c.session.StepCount),
		zap.String("reason", reason))
	return schemas.SessionResult{
		Success:    false,
		Reason:     reason,
		Path:       c.session.Steps,
		Steps:      c.session.StepCount,
		Images:     c.session.Artifacts,
		TokensUsed: &c.session.Usage,
	}
}

// cleanup returns the UI to its canonical state so the next session starts
// from a known point. Best effort; a half-cleaned UI is recoverable, a
// crashed session is not.
func (c *Controller) cleanup(ctx context.Context) {
	if snap, err := c.driver.Snapshot(ctx); err == nil && snap.ModalOpen {
		if err := c.driver.CloseOverlay(ctx); err != nil {
			c.logger.Debug("Cleanup overlay close failed", zap.Error(err))
		}
	}
	if err := c.driver.Reset(ctx); err != nil {
		c.logger.Warn("Cleanup reset failed", zap.Error(err))
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
