// File: internal/modelapi/types.go

// Package modelapi implements the client for the remote model's responses
// API: create a response, fetch a response by id, and submit computer-call
// output. The wire contract is fixed and external; everything here mirrors
// it verbatim.
package modelapi

import (
	"encoding/json"

	"github.com/hexlane/operant/internal/action"
)

// ItemTypeComputerCall marks an output item carrying a pending browser
// action the system must execute and answer.
const ItemTypeComputerCall = "computer_call"

// ItemTypeMessage marks an output item carrying assistant text.
const ItemTypeMessage = "message"

// SafetyCheck is a model-flagged concern attached to a computer call. The
// system acknowledges the set it acted on when submitting the output.
type SafetyCheck struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ContentPart is one fragment of an assistant message.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// OutputItem is one entry of a response's output array.
type OutputItem struct {
	Type                string          `json:"type"`
	ID                  string          `json:"id,omitempty"`
	Status              string          `json:"status,omitempty"`
	CallID              string          `json:"call_id,omitempty"`
	Action              json.RawMessage `json:"action,omitempty"`
	PendingSafetyChecks []SafetyCheck   `json:"pending_safety_checks,omitempty"`
	Role                string          `json:"role,omitempty"`
	Content             []ContentPart   `json:"content,omitempty"`
}

// Response is the full response object returned by the model API.
type Response struct {
	ID     string       `json:"id"`
	Status string       `json:"status,omitempty"`
	Model  string       `json:"model,omitempty"`
	Output []OutputItem `json:"output"`
	Error  *APIError    `json:"error,omitempty"`
}

// APIError is the error object the API embeds in failed responses.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// AssistantText concatenates the text content of all assistant message
// items, used to present the final answer once the chain completes.
func (r *Response) AssistantText() string {
	var out string
	for _, item := range r.Output {
		if item.Type != ItemTypeMessage {
			continue
		}
		for _, part := range item.Content {
			if part.Text != "" {
				if out != "" {
					out += "\n"
				}
				out += part.Text
			}
		}
	}
	return out
}

// PendingToolCall identifies one outstanding model-issued action. Created
// when a response contains an unresolved computer-call item; consumed
// exactly once by the loop controller; never mutated.
type PendingToolCall struct {
	CallID              string
	ItemID              string
	Action              action.Action
	PendingSafetyChecks []SafetyCheck
}

// LatestComputerCall locates the most recent unresolved computer-call item
// in the response and decodes its action snapshot.
func LatestComputerCall(resp *Response) (*PendingToolCall, bool) {
	if resp == nil {
		return nil, false
	}
	for i := len(resp.Output) - 1; i >= 0; i-- {
		item := resp.Output[i]
		if item.Type != ItemTypeComputerCall {
			continue
		}
		call := &PendingToolCall{
			CallID:              item.CallID,
			ItemID:              item.ID,
			PendingSafetyChecks: item.PendingSafetyChecks,
		}
		if len(item.Action) > 0 {
			if act, err := action.Parse(item.Action); err == nil {
				call.Action = act
			}
		}
		return call, true
	}
	return nil, false
}

// ComputerScreenshot is the tool-output payload wrapping the captured image.
type ComputerScreenshot struct {
	Type     string `json:"type"` // always "computer_screenshot"
	ImageURL string `json:"image_url"`
}

// computerCallOutputItem is the input item submitted to answer one call.
type computerCallOutputItem struct {
	Type                     string             `json:"type"` // "computer_call_output"
	CallID                   string             `json:"call_id"`
	Output                   ComputerScreenshot `json:"output"`
	AcknowledgedSafetyChecks []SafetyCheck      `json:"acknowledged_safety_checks,omitempty"`
	CurrentURL               string             `json:"current_url,omitempty"`
}

// SubmitOutputParams carries everything needed to answer one resolved call.
type SubmitOutputParams struct {
	CallID                   string
	ImageDataURL             string
	PreviousResponseID       string
	AcknowledgedSafetyChecks []SafetyCheck
	CurrentURL               string
}
