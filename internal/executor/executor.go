// File: internal/executor/executor.go

// Package executor turns one abstract model-issued action into concrete
// operations against the owned browsing surface and always ends with a
// validated screenshot attempt, so the agent loop has visual evidence to
// return regardless of how the action itself went.
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hexlane/operant/internal/action"
	"github.com/hexlane/operant/internal/config"
	"github.com/hexlane/operant/internal/executor/resolver"
	"github.com/hexlane/operant/internal/surface"
)

// handlerFunc executes one action type and returns a human-readable outcome.
// A returned error aborts the action only when it is one of the fatal
// sentinels; anything else degrades to descriptive output, because the
// remote model, not the local system, judges whether the action "worked".
type handlerFunc func(ctx context.Context, act action.Action) (string, error)

// Executor owns one browsing surface and executes one action at a time.
// Not safe for concurrent use: the surface's DOM state is serial and the
// suppression window is only written from the loop's own sequential path.
type Executor struct {
	logger   *zap.Logger
	cfg      config.ExecutorConfig
	surface  surface.Surface
	handlers map[action.Type]handlerFunc

	// suppressUntil marks "ignore model-issued clicks until T", set after a
	// programmatic search submission so the model cannot double-act on a
	// page still settling.
	suppressUntil time.Time

	// Indirections for tests.
	now   func() time.Time
	sleep func(d time.Duration)
}

// New creates an Executor bound to the given surface.
func New(s surface.Surface, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		logger:  logger.Named("executor"),
		cfg:     cfg,
		surface: s,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers = map[action.Type]handlerFunc{
		action.TypeNavigate:    e.handleNavigate,
		action.TypeClick:       e.handleClick,
		action.TypeDoubleClick: e.handleClick,
		action.TypeMove:        e.handleMove,
		action.TypeType:        e.handleType,
		action.TypeKeypress:    e.handleKeypress,
		action.TypeDrag:        e.handleDrag,
		action.TypeScroll:      e.handleScroll,
		action.TypeScreenshot:  e.handleScreenshot,
		action.TypeWait:        e.handleWait,
	}
}

// Execute runs one action and returns its result. The screenshot is omitted
// from the result only when the surface is structurally unable to render;
// every other capture failure degrades to a diagnostic placeholder.
func (e *Executor) Execute(ctx context.Context, act action.Action) (*action.Result, error) {
	act = act.Canonical()
	log := e.logger.With(zap.String("action", string(act.Type)))

	if !e.surface.Attached() {
		return nil, fmt.Errorf("%w: surface not attached to a renderable context", action.ErrSurfaceUnavailable)
	}

	result := &action.Result{}

	handler, known := e.handlers[act.Type]
	if !known {
		// Unknown types are not failures: the vocabulary belongs to the
		// model provider. Proceed straight to the post-action screenshot so
		// the caller always receives current visual state.
		log.Warn("Unknown action type; capturing current state instead.")
		result.Output = fmt.Sprintf("unrecognized action type %q; returning current page state", act.Type)
	} else {
		output, err := handler(ctx, act)
		if err != nil {
			if isFatal(err) {
				return nil, err
			}
			// Non-fatal anomalies degrade to descriptive output.
			log.Debug("Action degraded to descriptive output.",
				zap.String("code", string(action.CodeOf(err))),
				zap.Error(err),
			)
			output = err.Error()
		}
		result.Output = output
	}

	e.settle(ctx, act.Type)

	if loc, err := e.surface.Location(ctx); err == nil {
		result.CurrentURL = loc
	} else {
		log.Debug("Could not read current URL.", zap.Error(err))
	}

	shot := e.captureValidated(ctx)
	result.Screenshot = shot

	return result, nil
}

// isFatal reports whether the error must propagate to the controller rather
// than degrade into output.
func isFatal(err error) bool {
	return errors.Is(err, action.ErrSurfaceUnavailable) ||
		errors.Is(err, action.ErrInvalidParameters) ||
		errors.Is(err, action.ErrNavigationFailed)
}

// -- Handlers --

func (e *Executor) handleNavigate(ctx context.Context, act action.Action) (string, error) {
	raw, ok := act.String("url")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: navigate requires a 'url' parameter", action.ErrInvalidParameters)
	}
	target, err := normalizeURL(raw)
	if err != nil {
		return "", fmt.Errorf("%w: unparseable url %q", action.ErrInvalidParameters, raw)
	}
	if err := e.surface.Navigate(ctx, target); err != nil {
		return "", err
	}
	return fmt.Sprintf("navigated to %s", target), nil
}

func (e *Executor) handleClick(ctx context.Context, act action.Action) (string, error) {
	x, y, err := e.normalizedPoint(ctx, act)
	if err != nil {
		return "", err
	}

	if until := e.suppressUntil; e.now().Before(until) {
		// A just-submitted search is still settling; do not dispatch.
		return "click suppressed: page is settling after a programmatic submission", nil
	}

	var outcome resolver.ClickOutcome
	double := act.Type == action.TypeDoubleClick
	if err := e.surface.Evaluate(ctx, resolver.ClickScript(x, y, double), &outcome); err != nil {
		return "", fmt.Errorf("click script failed: %w", err)
	}
	switch {
	case outcome.Refused:
		return fmt.Sprintf("click refused: %s", outcome.Reason), nil
	case !outcome.Clicked:
		return fmt.Sprintf("click had no effect: %s", outcome.Reason), nil
	}
	return describeClick(act.Type, outcome, x, y), nil
}

func describeClick(t action.Type, outcome resolver.ClickOutcome, x, y float64) string {
	verb := "clicked"
	if t == action.TypeDoubleClick {
		verb = "double-clicked"
	}
	if outcome.Text != "" {
		return fmt.Sprintf("%s <%s> %q near (%.0f, %.0f)", verb, strings.ToLower(outcome.Tag), outcome.Text, x, y)
	}
	return fmt.Sprintf("%s <%s> near (%.0f, %.0f)", verb, strings.ToLower(outcome.Tag), x, y)
}

func (e *Executor) handleMove(ctx context.Context, act action.Action) (string, error) {
	x, y, err := e.normalizedPoint(ctx, act)
	if err != nil {
		return "", err
	}
	if err := e.surface.Evaluate(ctx, resolver.MoveScript(x, y), nil); err != nil {
		return "", fmt.Errorf("move script failed: %w", err)
	}
	return fmt.Sprintf("moved pointer to (%.0f, %.0f)", x, y), nil
}

func (e *Executor) handleType(ctx context.Context, act action.Action) (string, error) {
	text, ok := act.String("text")
	if !ok {
		return "", fmt.Errorf("%w: type requires a 'text' parameter", action.ErrInvalidParameters)
	}
	var outcome typeOutcome
	if err := e.surface.Evaluate(ctx, typeScript(text), &outcome); err != nil {
		return "", fmt.Errorf("type script failed: %w", err)
	}
	if !outcome.Typed {
		// Soft failure: descriptive output, not an error.
		return fmt.Sprintf("typing skipped: %s", outcome.Reason), nil
	}
	return fmt.Sprintf("typed %d characters into <%s>", len(text), strings.ToLower(outcome.Tag)), nil
}

func (e *Executor) handleKeypress(ctx context.Context, act action.Action) (string, error) {
	keys := act.Keys()
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: keypress requires a 'keys' parameter", action.ErrInvalidParameters)
	}
	spec := resolveKeySpec(keys)
	if err := e.surface.Evaluate(ctx, keypressScript(spec), nil); err != nil {
		return "", fmt.Errorf("keypress script failed: %w", err)
	}
	return fmt.Sprintf("pressed %s", strings.Join(keys, "+")), nil
}

func (e *Executor) handleDrag(ctx context.Context, act action.Action) (string, error) {
	path := act.Path()
	if len(path) < 2 {
		return "", fmt.Errorf("%w: drag requires a 'path' of at least two points", action.ErrInvalidParameters)
	}
	start, err := e.normalize(ctx, path[0].X, path[0].Y)
	if err != nil {
		return "", err
	}
	end, err := e.normalize(ctx, path[len(path)-1].X, path[len(path)-1].Y)
	if err != nil {
		return "", err
	}
	if err := e.surface.Evaluate(ctx, dragScript(start, end), nil); err != nil {
		return "", fmt.Errorf("drag script failed: %w", err)
	}
	return fmt.Sprintf("dragged from (%.0f, %.0f) to (%.0f, %.0f)", start.X, start.Y, end.X, end.Y), nil
}

func (e *Executor) handleScroll(ctx context.Context, act action.Action) (string, error) {
	dx, dy := act.ScrollDeltas()
	if err := e.surface.Evaluate(ctx, scrollScript(dx, dy), nil); err != nil {
		return "", fmt.Errorf("scroll script failed: %w", err)
	}
	return fmt.Sprintf("scrolled by (%.0f, %.0f)", dx, dy), nil
}

func (e *Executor) handleScreenshot(ctx context.Context, act action.Action) (string, error) {
	// Screenshot-with-implicit-navigation fallback: when nothing is loaded
	// yet and the action carries a url, navigate first.
	var hasContent bool
	if err := e.surface.Evaluate(ctx, hasContentScript, &hasContent); err != nil {
		e.logger.Debug("Content probe failed before screenshot.", zap.Error(err))
	}
	if !hasContent {
		if raw, ok := act.String("url"); ok && strings.TrimSpace(raw) != "" {
			target, err := normalizeURL(raw)
			if err == nil {
				if err := e.surface.Navigate(ctx, target); err != nil {
					return "", err
				}
				return fmt.Sprintf("navigated to %s before capture", target), nil
			}
		}
	}
	return "captured current page state", nil
}

func (e *Executor) handleWait(_ context.Context, act action.Action) (string, error) {
	d := act.WaitDuration(e.cfg.DefaultWait)
	// A pure delay, deliberately not cancellable mid-wait.
	e.sleep(d)
	return fmt.Sprintf("waited %s", d), nil
}

// -- Text-based resolution --

// SubmitSearch resolves a click target by visible text, used for
// programmatic search submission rather than raw coordinates. On success it
// opens the suppression window so an immediately following model-issued
// click cannot race the settling page.
func (e *Executor) SubmitSearch(ctx context.Context, label string, hintX, hintY float64) (*resolver.TextClickOutcome, error) {
	if !e.surface.Attached() {
		return nil, fmt.Errorf("%w: surface not attached", action.ErrSurfaceUnavailable)
	}
	var outcome resolver.TextClickOutcome
	if err := e.surface.Evaluate(ctx, resolver.TextClickScript(label, hintX, hintY), &outcome); err != nil {
		return nil, fmt.Errorf("text resolution script failed: %w", err)
	}
	if outcome.Clicked {
		e.suppressUntil = e.now().Add(e.cfg.SuppressionWindow)
		e.logger.Debug("Suppression window opened after search submission.",
			zap.Duration("window", e.cfg.SuppressionWindow),
			zap.String("target", outcome.Text),
		)
	}
	return &outcome, nil
}

// -- Coordinate normalization --

// normalizedPoint extracts and normalizes the action's coordinate pair.
func (e *Executor) normalizedPoint(ctx context.Context, act action.Action) (float64, float64, error) {
	x, y, ok := act.Point()
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s requires numeric 'x' and 'y'", action.ErrInvalidParameters, act.Type)
	}
	p, err := e.normalize(ctx, x, y)
	if err != nil {
		return 0, 0, err
	}
	return p.X, p.Y, nil
}

// normalize maps a model-estimated coordinate into the CSS viewport. Points
// beyond the viewport are assumed to be expressed in device pixels and are
// divided by the device pixel ratio, then clamped to viewport bounds.
func (e *Executor) normalize(ctx context.Context, x, y float64) (action.PathPoint, error) {
	m, err := e.surface.Metrics(ctx)
	if err != nil {
		return action.PathPoint{}, fmt.Errorf("could not read viewport metrics: %w", err)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return action.PathPoint{X: x, Y: y}, nil
	}
	if x > m.Width || y > m.Height {
		scale := m.DeviceScaleFactor
		if scale <= 0 {
			scale = 1
		}
		x /= scale
		y /= scale
	}
	return action.PathPoint{
		X: clamp(x, 0, m.Width-1),
		Y: clamp(y, 0, m.Height-1),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeURL parses a model-supplied URL, defaulting a missing scheme to
// https.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}
