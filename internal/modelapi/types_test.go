// File: internal/modelapi/types_test.go
package modelapi

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/operant/internal/action"
)

func TestLatestComputerCall(t *testing.T) {
	t.Run("should pick the most recent call item", func(t *testing.T) {
		resp := &Response{
			ID: "r1",
			Output: []OutputItem{
				{Type: ItemTypeComputerCall, ID: "item1", CallID: "c1", Action: json.RawMessage(`{"type": "click", "x": 1, "y": 2}`)},
				{Type: ItemTypeMessage},
				{Type: ItemTypeComputerCall, ID: "item2", CallID: "c2", Action: json.RawMessage(`{"type": "scroll", "scroll_y": 300}`)},
			},
		}

		call, found := LatestComputerCall(resp)
		require.True(t, found)

		want := &PendingToolCall{
			CallID: "c2",
			ItemID: "item2",
			Action: action.Action{
				Type:   action.TypeScroll,
				Params: map[string]any{"scroll_y": float64(300)},
			},
		}
		if diff := cmp.Diff(want, call); diff != "" {
			t.Errorf("decoded call mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should carry pending safety checks", func(t *testing.T) {
		resp := &Response{
			Output: []OutputItem{{
				Type:                ItemTypeComputerCall,
				CallID:              "c1",
				PendingSafetyChecks: []SafetyCheck{{ID: "sc1", Message: "review"}},
			}},
		}

		call, found := LatestComputerCall(resp)
		require.True(t, found)
		require.Len(t, call.PendingSafetyChecks, 1)
		assert.Equal(t, "sc1", call.PendingSafetyChecks[0].ID)
	})

	t.Run("should report absence", func(t *testing.T) {
		_, found := LatestComputerCall(&Response{Output: []OutputItem{{Type: ItemTypeMessage}}})
		assert.False(t, found)

		_, found = LatestComputerCall(nil)
		assert.False(t, found)
	})

	t.Run("should tolerate an undecodable action snapshot", func(t *testing.T) {
		resp := &Response{
			Output: []OutputItem{{Type: ItemTypeComputerCall, CallID: "c1", Action: json.RawMessage(`{broken`)}},
		}

		call, found := LatestComputerCall(resp)
		require.True(t, found)
		assert.Equal(t, "c1", call.CallID)
		assert.Empty(t, call.Action.Type)
	})
}

func TestAssistantText(t *testing.T) {
	resp := &Response{
		Output: []OutputItem{
			{Type: ItemTypeComputerCall, CallID: "c1"},
			{Type: ItemTypeMessage, Content: []ContentPart{{Type: "output_text", Text: "First."}}},
			{Type: ItemTypeMessage, Content: []ContentPart{{Type: "output_text", Text: "Second."}, {Type: "output_text"}}},
		},
	}
	assert.Equal(t, "First.\nSecond.", resp.AssistantText())

	assert.Equal(t, "", (&Response{}).AssistantText())
}
