// File: internal/loop/controller.go

// Package loop orchestrates the multi-turn exchange with the remote model:
// it detects pending computer calls, hands them to the action executor,
// submits each result, and repeats until the model stops requesting actions
// or a safety policy halts the chain.
package loop

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hexlane/operant/internal/action"
	"github.com/hexlane/operant/internal/config"
	"github.com/hexlane/operant/internal/modelapi"
)

// ResponseClient is the slice of the model API the controller consumes.
type ResponseClient interface {
	GetResponse(ctx context.Context, responseID string) (*modelapi.Response, error)
	SendComputerCallOutput(ctx context.Context, params modelapi.SubmitOutputParams) (*modelapi.Response, error)
}

// ActionExecutor executes one model-issued action against the browsing
// surface.
type ActionExecutor interface {
	Execute(ctx context.Context, act action.Action) (*action.Result, error)
}

// Recorder persists one resolved iteration. Implementations must tolerate
// being called once per loop iteration; failures are logged, never fatal.
type Recorder interface {
	RecordIteration(ctx context.Context, rec IterationRecord) error
}

// IterationRecord is the transcript entry for one resolved call.
type IterationRecord struct {
	ConversationID     string
	CallID             string
	ActionType         string
	Output             string
	CurrentURL         string
	ResponseID         string
	AcknowledgedChecks int
}

// NotifyFunc surfaces a plain-language notice in the conversation. Breaker
// trips and unresolved-chain aborts go through it; ordinary degraded actions
// do not.
type NotifyFunc func(message string)

// Turn describes the in-progress conversation turn being resolved.
type Turn struct {
	ConversationID string
	// HasImage marks that the turn's message already carries a captured
	// image, which the halt heuristic treats as the primary request being
	// fulfilled.
	HasImage bool
}

// ErrAlreadyResolving is returned when a resolve pass is triggered while one
// is in flight. The trigger must treat it as a no-op.
var ErrAlreadyResolving = errors.New("a resolve pass is already running")

// Controller drives the agent loop for one conversation. Confine each
// instance to a single coordinating context; it is not safe for concurrent
// multi-turn use.
type Controller struct {
	logger   *zap.Logger
	cfg      config.LoopConfig
	client   ResponseClient
	executor ActionExecutor
	recorder Recorder
	notify   NotifyFunc

	state State
}

// New creates a Controller. recorder and notify may be nil.
func New(client ResponseClient, exec ActionExecutor, cfg config.LoopConfig, logger *zap.Logger, recorder Recorder, notify NotifyFunc) *Controller {
	if notify == nil {
		notify = func(string) {}
	}
	return &Controller{
		logger:   logger.Named("loop"),
		cfg:      cfg,
		client:   client,
		executor: exec,
		recorder: recorder,
		notify:   notify,
	}
}

// State exposes the loop state for observation.
func (c *Controller) State() *State { return &c.state }

// Resolve runs the bounded main loop starting from responseID, which must be
// the id of a response already known (or suspected) to contain a pending
// computer call. It returns the final response of the chain when it ended
// cleanly, or nil when the chain was aborted.
//
// Every terminal path leaves the system ready for the next user message:
// lastResponseID is "" unless the chain ended cleanly with no pending calls.
func (c *Controller) Resolve(ctx context.Context, turn Turn, responseID string) (*modelapi.Response, error) {
	if !c.state.beginResolving() {
		c.logger.Debug("Duplicate resolve trigger ignored.")
		return nil, ErrAlreadyResolving
	}
	defer c.state.endResolving()

	c.state.setLastResponseID(responseID)
	log := c.logger.With(zap.String("conversation_id", turn.ConversationID))

	var final *modelapi.Response
	for iteration := 0; iteration < c.cfg.MaxIterations; iteration++ {
		// Cancellation is observed between steps; in-flight work is never
		// forcibly interrupted, but no further iteration begins.
		if err := ctx.Err(); err != nil {
			c.state.clearLastResponseID()
			return nil, err
		}

		lastID := c.state.LastResponseID()
		if lastID == "" {
			return final, nil
		}

		resp, err := c.client.GetResponse(ctx, lastID)
		if err != nil {
			log.Warn("Failed to fetch response; halting chain.", zap.String("response_id", lastID), zap.Error(err))
			c.state.clearLastResponseID()
			return nil, fmt.Errorf("fetch response %s: %w", lastID, err)
		}
		final = resp

		call, found := modelapi.LatestComputerCall(resp)
		if !found {
			// Chain complete: no pending calls, lastResponseID stays set.
			log.Debug("No pending computer calls; chain complete.", zap.Int("iterations", iteration))
			return final, nil
		}

		// Heuristic halt: an image already attached to the message means the
		// primary request is visually satisfied; redundant follow-up actions
		// are a known model failure pattern.
		if c.cfg.HaltOnExistingImage && turn.HasImage {
			log.Info("Turn already carries an image; halting without executing further calls.")
			c.state.clearLastResponseID()
			return final, nil
		}

		if call.CallID == "" {
			log.Warn("Pending computer call has no call id; cannot submit output.", zap.String("item_id", call.ItemID))
			c.state.clearLastResponseID()
			return final, nil
		}

		halted, err := c.resolveOne(ctx, log, turn, call)
		if err != nil {
			return nil, err
		}
		if halted {
			return final, nil
		}
	}

	// Iteration bound hit with the chain still active. Terminate rather
	// than trust the protocol to converge.
	log.Warn("Loop iteration limit reached; aborting chain.", zap.Int("limit", c.cfg.MaxIterations))
	c.notify("The browsing agent stopped after reaching its action limit for this message.")
	c.state.clearLastResponseID()
	return final, nil
}

// resolveOne executes one pending call and submits its result. It returns
// halted=true when the chain must stop without error.
func (c *Controller) resolveOne(ctx context.Context, log *zap.Logger, turn Turn, call *modelapi.PendingToolCall) (halted bool, err error) {
	acked, halt := c.handleSafetyChecks(log, call)
	if halt {
		c.state.clearLastResponseID()
		return true, nil
	}

	result, err := c.executor.Execute(ctx, call.Action)
	if err != nil {
		// Fatal action failure: no usable visual evidence, so the call can
		// never be answered. Sever the chain reference.
		log.Warn("Action execution failed; aborting chain.",
			zap.String("call_id", call.CallID),
			zap.String("action", string(call.Action.Type)),
			zap.String("code", string(action.CodeOf(err))),
			zap.Error(err),
		)
		c.state.clearLastResponseID()
		return false, fmt.Errorf("execute action %s: %w", call.Action.Type, err)
	}

	if tripped := c.applyBreaker(log, call.Action.Type); tripped {
		c.notify("The browsing agent was stopped because it kept waiting without making progress.")
		c.state.clearLastResponseID()
		return true, nil
	}

	if len(result.Screenshot) == 0 {
		// No evidence to return; continuing would leave the model waiting
		// on a call we cannot answer.
		log.Warn("Action produced no screenshot; halting chain.", zap.String("call_id", call.CallID))
		c.state.clearLastResponseID()
		return true, nil
	}

	c.state.setAwaitingOutput(true)
	defer c.state.setAwaitingOutput(false)

	next, err := c.client.SendComputerCallOutput(ctx, modelapi.SubmitOutputParams{
		CallID:                   call.CallID,
		ImageDataURL:             result.ScreenshotDataURL(),
		PreviousResponseID:       c.state.LastResponseID(),
		AcknowledgedSafetyChecks: acked,
		CurrentURL:               result.CurrentURL,
	})
	if err != nil {
		log.Warn("Tool output submission failed; aborting chain.", zap.String("call_id", call.CallID), zap.Error(err))
		c.state.clearLastResponseID()
		return false, fmt.Errorf("submit output for call %s: %w", call.CallID, err)
	}

	c.state.setLastResponseID(next.ID)
	c.record(ctx, turn, call, result, next.ID, len(acked))
	return false, nil
}

// handleSafetyChecks applies the acknowledgment policy. The default
// auto-acknowledges with a Warn log; the conservative knob halts instead.
func (c *Controller) handleSafetyChecks(log *zap.Logger, call *modelapi.PendingToolCall) (acked []modelapi.SafetyCheck, halt bool) {
	if len(call.PendingSafetyChecks) == 0 {
		return nil, false
	}
	if c.cfg.RequireSafetyConfirmation {
		log.Warn("Pending safety checks require confirmation; halting chain.",
			zap.Int("checks", len(call.PendingSafetyChecks)))
		c.notify("The browsing agent stopped because the model flagged this action for review.")
		return nil, true
	}
	for _, check := range call.PendingSafetyChecks {
		log.Warn("Auto-acknowledging model safety check.",
			zap.String("check_id", check.ID),
			zap.String("code", check.Code),
			zap.String("message", check.Message),
		)
	}
	return call.PendingSafetyChecks, false
}

// applyBreaker updates the consecutive-wait counter and reports whether the
// anti-loop breaker tripped.
func (c *Controller) applyBreaker(log *zap.Logger, actionType action.Type) bool {
	if actionType != action.TypeWait {
		c.state.resetWaits()
		return false
	}
	count := c.state.noteWait()
	if count >= c.cfg.MaxConsecutiveWaits {
		log.Warn("Anti-loop breaker tripped on consecutive waits.", zap.Int("count", count))
		return true
	}
	return false
}

func (c *Controller) record(ctx context.Context, turn Turn, call *modelapi.PendingToolCall, result *action.Result, responseID string, ackedChecks int) {
	if c.recorder == nil {
		return
	}
	rec := IterationRecord{
		ConversationID:     turn.ConversationID,
		CallID:             call.CallID,
		ActionType:         string(call.Action.Type),
		Output:             result.Output,
		CurrentURL:         result.CurrentURL,
		ResponseID:         responseID,
		AcknowledgedChecks: ackedChecks,
	}
	if err := c.recorder.RecordIteration(ctx, rec); err != nil {
		c.logger.Warn("Failed to record loop iteration.", zap.Error(err))
	}
}
