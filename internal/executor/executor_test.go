// File: internal/executor/executor_test.go
package executor

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hexlane/operant/internal/action"
	"github.com/hexlane/operant/internal/config"
	"github.com/hexlane/operant/internal/executor/resolver"
	"github.com/hexlane/operant/internal/surface"
)

// fakeSurface is a scripted Surface. Script evaluation is routed by content
// markers, mirroring how the production surface would run each injected
// expression against a live document.
type fakeSurface struct {
	attached bool
	metrics  surface.Metrics
	location string

	navigations []string
	navErr      error

	clickOutcome resolver.ClickOutcome
	textOutcome  resolver.TextClickOutcome
	typeResult   typeOutcome
	hasContent   bool
	evalErr      error

	clickEvals int
	captures   int
	captureFn  func(attempt int) ([]byte, error)
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		attached:     true,
		metrics:      surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 1},
		location:     "https://example.com/",
		clickOutcome: resolver.ClickOutcome{Clicked: true, Tag: "BUTTON", Text: "Submit"},
		typeResult:   typeOutcome{Typed: true, Tag: "INPUT"},
		hasContent:   true,
		captureFn: func(int) ([]byte, error) {
			return bytes.Repeat([]byte{0x89}, 64), nil
		},
	}
}

// assign marshals v through JSON into out, the same round-trip the production
// surface performs on evaluation results.
func assign(out, v any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeSurface) Attached() bool { return f.attached }

func (f *fakeSurface) Navigate(_ context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.navigations = append(f.navigations, url)
	f.location = url
	return nil
}

func (f *fakeSurface) Evaluate(_ context.Context, script string, out any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	switch {
	case strings.Contains(script, "readyState"):
		return assign(out, true)
	case strings.Contains(script, "about:blank"):
		return assign(out, f.hasContent)
	case strings.Contains(script, "refused"):
		f.clickEvals++
		return assign(out, f.clickOutcome)
	case strings.Contains(script, "score"):
		return assign(out, f.textOutcome)
	case strings.Contains(script, "typed"):
		return assign(out, f.typeResult)
	}
	return assign(out, map[string]any{})
}

func (f *fakeSurface) EvaluateAsync(_ context.Context, _ string, out any) error {
	return assign(out, true)
}

func (f *fakeSurface) CaptureScreenshot(_ context.Context) ([]byte, error) {
	f.captures++
	return f.captureFn(f.captures)
}

func (f *fakeSurface) Location(_ context.Context) (string, error) { return f.location, nil }

func (f *fakeSurface) Metrics(_ context.Context) (surface.Metrics, error) {
	return f.metrics, nil
}

func (f *fakeSurface) Close(_ context.Context) error { return nil }

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		ReadyTimeout:       time.Second,
		SettleDelay:        0,
		SettleDelayClick:   0,
		ScreenshotRetries:  3,
		ScreenshotBackoff:  0,
		ScreenshotMinBytes: 16,
		SuppressionWindow:  500 * time.Millisecond,
		DefaultWait:        time.Second,
	}
}

// newTestExecutor neutralizes real time so tests run instantly; slept
// durations are recorded for assertions.
func newTestExecutor(t *testing.T, fs *fakeSurface) (*Executor, *[]time.Duration) {
	t.Helper()
	e := New(fs, testExecutorConfig(), zaptest.NewLogger(t))
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	return e, &slept
}

func TestExecuteDetachedSurface(t *testing.T) {
	fs := newFakeSurface()
	fs.attached = false
	e, _ := newTestExecutor(t, fs)

	_, err := e.Execute(context.Background(), action.Action{Type: action.TypeScreenshot})
	assert.ErrorIs(t, err, action.ErrSurfaceUnavailable)
}

func TestExecuteUnknownActionStillCaptures(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{Type: action.Type("teleport")})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "unrecognized action type")
	assert.NotEmpty(t, result.Screenshot, "unknown actions must still yield visual state")
	assert.Equal(t, "https://example.com/", result.CurrentURL)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name         string
		metrics      surface.Metrics
		inX, inY     float64
		wantX, wantY float64
	}{
		{"within viewport untouched", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 2}, 640, 400, 640, 400},
		{"device pixels divided by scale", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 2}, 2000, 1200, 1000, 600},
		{"both axes rescale together", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 2}, 100, 1200, 50, 600},
		{"clamped to right and bottom edges", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 1}, 5000, 5000, 1279, 799},
		{"negative clamps to origin", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 1}, -50, -10, 0, 0},
		{"zero scale treated as one", surface.Metrics{Width: 1280, Height: 800, DeviceScaleFactor: 0}, 1300, 500, 1279, 500},
		{"unknown viewport passes through", surface.Metrics{}, 9999, 9999, 9999, 9999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeSurface()
			fs.metrics = tc.metrics
			e, _ := newTestExecutor(t, fs)

			p, err := e.normalize(context.Background(), tc.inX, tc.inY)
			require.NoError(t, err)
			assert.Equal(t, tc.wantX, p.X)
			assert.Equal(t, tc.wantY, p.Y)
		})
	}
}

func TestClickDispatch(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeClick,
		Params: map[string]any{"x": "320", "y": 240},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fs.clickEvals)
	assert.Contains(t, result.Output, `clicked <button> "Submit"`)
}

func TestClickRefused(t *testing.T) {
	fs := newFakeSurface()
	fs.clickOutcome = resolver.ClickOutcome{
		Refused: true,
		Reason:  "point falls in the top-left corner with no menu control nearby",
	}
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeClick,
		Params: map[string]any{"x": 10, "y": 10},
	})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "click refused")
	assert.NotEmpty(t, result.Screenshot, "a refused click still reports visual state")
}

func TestClickMissingCoordinates(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	_, err := e.Execute(context.Background(), action.Action{Type: action.TypeClick})
	assert.ErrorIs(t, err, action.ErrInvalidParameters)
}

func TestSubmitSearchOpensSuppressionWindow(t *testing.T) {
	fs := newFakeSurface()
	fs.textOutcome = resolver.TextClickOutcome{Clicked: true, Score: 100, Tag: "BUTTON", Text: "Search"}
	e, _ := newTestExecutor(t, fs)

	base := time.Now()
	e.now = func() time.Time { return base }

	outcome, err := e.SubmitSearch(context.Background(), "Search", 600, 300)
	require.NoError(t, err)
	require.True(t, outcome.Clicked)

	// A model click inside the window is swallowed without dispatch.
	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeClick,
		Params: map[string]any{"x": 600, "y": 300},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "click suppressed")
	assert.Zero(t, fs.clickEvals, "suppressed clicks must never reach the page")

	// After the window expires the same click dispatches normally.
	e.now = func() time.Time { return base.Add(600 * time.Millisecond) }
	result, err = e.Execute(context.Background(), action.Action{
		Type:   action.TypeClick,
		Params: map[string]any{"x": 600, "y": 300},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.clickEvals)
	assert.NotContains(t, result.Output, "suppressed")
}

func TestSubmitSearchMissWithoutClick(t *testing.T) {
	fs := newFakeSurface()
	fs.textOutcome = resolver.TextClickOutcome{Clicked: false, Score: 0}
	e, _ := newTestExecutor(t, fs)

	base := time.Now()
	e.now = func() time.Time { return base }

	outcome, err := e.SubmitSearch(context.Background(), "Search", 0, 0)
	require.NoError(t, err)
	assert.False(t, outcome.Clicked)

	// No suppression window without a successful dispatch.
	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeClick,
		Params: map[string]any{"x": 600, "y": 300},
	})
	require.NoError(t, err)
	assert.NotContains(t, result.Output, "suppressed")
}

func TestNavigate(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeNavigate,
		Params: map[string]any{"url": "example.com/search"},
	})
	require.NoError(t, err)

	require.Len(t, fs.navigations, 1)
	assert.Equal(t, "https://example.com/search", fs.navigations[0], "missing scheme defaults to https")
	assert.Contains(t, result.Output, "navigated to https://example.com/search")
}

func TestNavigateInvalidURL(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	_, err := e.Execute(context.Background(), action.Action{Type: action.TypeNavigate})
	assert.ErrorIs(t, err, action.ErrInvalidParameters)

	_, err = e.Execute(context.Background(), action.Action{
		Type:   action.TypeNavigate,
		Params: map[string]any{"url": "https://"},
	})
	assert.ErrorIs(t, err, action.ErrInvalidParameters)
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"example.com", "https://example.com", false},
		{"  example.com/path?q=1 ", "https://example.com/path?q=1", false},
		{"http://example.com", "http://example.com", false},
		{"https://", "", true},
	}
	for _, tc := range cases {
		got, err := normalizeURL(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func TestTypeSoftFailure(t *testing.T) {
	fs := newFakeSurface()
	fs.typeResult = typeOutcome{Typed: false, Reason: "no focused element"}
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeType,
		Params: map[string]any{"text": "hello"},
	})
	require.NoError(t, err, "an unfocused page is not an execution failure")
	assert.Contains(t, result.Output, "typing skipped: no focused element")
}

func TestWaitUsesRequestedDuration(t *testing.T) {
	fs := newFakeSurface()
	e, slept := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeWait,
		Params: map[string]any{"seconds": 2},
	})
	require.NoError(t, err)

	assert.Contains(t, *slept, 2*time.Second)
	assert.Contains(t, result.Output, "waited 2s")
}

func TestScreenshotPlaceholderAfterRetries(t *testing.T) {
	fs := newFakeSurface()
	fs.captureFn = func(int) ([]byte, error) {
		// Implausibly small capture on every attempt.
		return []byte{0x89, 0x50}, nil
	}
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{Type: action.TypeScreenshot})
	require.NoError(t, err)

	assert.Equal(t, testExecutorConfig().ScreenshotRetries, fs.captures)
	require.NotEmpty(t, result.Screenshot, "exhausted retries must degrade to a placeholder, never nil")

	img, decodeErr := png.Decode(bytes.NewReader(result.Screenshot))
	require.NoError(t, decodeErr, "placeholder must be a decodable png")
	assert.Equal(t, placeholderWidth, img.Bounds().Dx())
	assert.Equal(t, placeholderHeight, img.Bounds().Dy())
}

func TestScreenshotRetryThenSuccess(t *testing.T) {
	good := bytes.Repeat([]byte{0xAB}, 64)
	fs := newFakeSurface()
	fs.captureFn = func(attempt int) ([]byte, error) {
		if attempt < 3 {
			return nil, context.DeadlineExceeded
		}
		return good, nil
	}
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{Type: action.TypeScreenshot})
	require.NoError(t, err)

	assert.Equal(t, 3, fs.captures)
	assert.Equal(t, good, result.Screenshot)
}

func TestScreenshotImplicitNavigation(t *testing.T) {
	fs := newFakeSurface()
	fs.hasContent = false
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeScreenshot,
		Params: map[string]any{"url": "example.com"},
	})
	require.NoError(t, err)

	require.Len(t, fs.navigations, 1)
	assert.Equal(t, "https://example.com", fs.navigations[0])
	assert.Contains(t, result.Output, "before capture")
}

func TestResolveKeySpec(t *testing.T) {
	cases := []struct {
		name string
		keys []string
		want keySpec
	}{
		{"select all as list", []string{"ctrl", "a"}, keySpec{ExecCommand: "selectAll"}},
		{"select all as combo string", []string{"ctrl+a"}, keySpec{ExecCommand: "selectAll"}},
		{"mac copy", []string{"CMD", "C"}, keySpec{ExecCommand: "copy"}},
		{"enter", []string{"Enter"}, keySpec{Key: "Enter", Code: "Enter", KeyCode: 13}},
		{"escape alias", []string{"esc"}, keySpec{Key: "Escape", Code: "Escape", KeyCode: 27}},
		{"unmapped combo falls back to last key", []string{"shift", "F5"}, keySpec{Key: "F5", Code: "F5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolveKeySpec(tc.keys))
		})
	}
}

func TestDrag(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	result, err := e.Execute(context.Background(), action.Action{
		Type: action.TypeDrag,
		Params: map[string]any{
			"path": []any{
				map[string]any{"x": 100, "y": 100},
				map[string]any{"x": 300, "y": 400},
			},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "dragged from (100, 100) to (300, 400)")
}

func TestDragRequiresTwoPoints(t *testing.T) {
	fs := newFakeSurface()
	e, _ := newTestExecutor(t, fs)

	_, err := e.Execute(context.Background(), action.Action{
		Type:   action.TypeDrag,
		Params: map[string]any{"path": []any{map[string]any{"x": 1, "y": 2}}},
	})
	assert.ErrorIs(t, err, action.ErrInvalidParameters)
}
