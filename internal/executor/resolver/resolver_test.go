// File: internal/executor/resolver/resolver_test.go
package resolver

import (
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickScript(t *testing.T) {
	script := ClickScript(412.5, 96, false)

	assert.Contains(t, script, "const px = 412.5, py = 96, wantDouble = false;")
	assert.Contains(t, script, "elementsFromPoint", "must consider the full element stack, not the topmost node")
	assert.Contains(t, script, "consentOverride")
	assert.Contains(t, script, "findMenuControl", "corner guardrail must be compiled in")

	double := ClickScript(10, 10, true)
	assert.Contains(t, double, "wantDouble = true")
	assert.Contains(t, double, "dblclick")
}

func TestTextClickScriptEscapesLabel(t *testing.T) {
	// Quotes and script tags in the label must arrive as inert string data.
	script := TextClickScript(`"Search</script>'`, 100, 200)

	assert.NotContains(t, script, `= ""Search`)
	assert.NotContains(t, script, "</script>'")
	assert.Contains(t, script, `\"Search`)
	assert.Contains(t, script, "const hx = 100, hy = 200;")
}

func TestMoveScript(t *testing.T) {
	script := MoveScript(50, 60)
	assert.Contains(t, script, "const px = 50, py = 60;")
	assert.Contains(t, script, "mouseover")
}

func TestJSString(t *testing.T) {
	cases := map[string]string{
		"plain":        `"plain"`,
		`with "quote"`: `"with \"quote\""`,
		"line\nbreak":  `"line\nbreak"`,
	}
	for in, want := range cases {
		assert.Equal(t, want, jsString(in))
	}
}

// The outcome structs must round-trip the exact field names the scripts emit.
func TestOutcomeDecoding(t *testing.T) {
	var click ClickOutcome
	err := json.Unmarshal([]byte(`{"clicked": false, "refused": true, "reason": "top-left corner click refused: no menu-labeled control nearby"}`), &click)
	require.NoError(t, err)
	assert.True(t, click.Refused)
	assert.False(t, click.Clicked)
	assert.True(t, strings.HasPrefix(click.Reason, "top-left corner"))

	var text TextClickOutcome
	err = json.Unmarshal([]byte(`{"clicked": true, "score": 60.5, "tag": "BUTTON", "text": "Search"}`), &text)
	require.NoError(t, err)
	assert.True(t, text.Clicked)
	assert.Equal(t, 60.5, text.Score)
	assert.Equal(t, "BUTTON", text.Tag)
}
