// File: internal/executor/screenshot.go
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hexlane/operant/internal/action"
)

// readyPollInterval paces the post-action document readiness probe.
const readyPollInterval = 100 * time.Millisecond

// settle runs the post-action protocol: wait for a minimal ready document,
// wait for at least one confirmed paint, then apply the settle delay. Every
// step is best-effort with a bounded timeout; a readiness check that never
// succeeds must not prevent the turn from reaching screenshot capture.
func (e *Executor) settle(ctx context.Context, actionType action.Type) {
	e.waitReady(ctx)

	var painted bool
	if err := e.surface.EvaluateAsync(ctx, paintConfirmScript, &painted); err != nil {
		e.logger.Debug("Paint confirmation failed; proceeding to capture.", zap.Error(err))
	}

	// Clicks get a longer settle so client-side frameworks can react.
	delay := e.cfg.SettleDelay
	if actionType == action.TypeClick || actionType == action.TypeDoubleClick {
		delay = e.cfg.SettleDelayClick
	}
	if delay > 0 {
		e.sleep(delay)
	}
}

// waitReady polls the document's ready state until it reports at least
// interactive, bounded by the configured timeout.
func (e *Executor) waitReady(ctx context.Context) {
	deadline := e.now().Add(e.cfg.ReadyTimeout)
	for e.now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		var ready bool
		if err := e.surface.Evaluate(ctx, readyStateScript, &ready); err == nil && ready {
			return
		}
		e.sleep(readyPollInterval)
	}
	e.logger.Debug("Document readiness poll timed out; proceeding anyway.")
}

// captureValidated attempts the screenshot with bounded retries. An attempt
// is rejected when the image is implausibly small, since spurious near-empty
// captures are the dominant real-world failure mode of headless rendering.
// After exhausting retries a diagnostic placeholder is synthesized: the
// agent loop must always receive some visual artifact. The only nil return
// is a surface that cannot render at all.
func (e *Executor) captureValidated(ctx context.Context) []byte {
	if !e.surface.Attached() {
		e.logger.Warn("Surface detached; no screenshot possible.")
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.ScreenshotRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		shot, err := e.surface.CaptureScreenshot(ctx)
		if err == nil && len(shot) >= e.cfg.ScreenshotMinBytes {
			return shot
		}
		if err != nil {
			lastErr = err
			e.logger.Debug("Screenshot attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			e.logger.Debug("Screenshot rejected as implausibly small.",
				zap.Int("attempt", attempt),
				zap.Int("bytes", len(shot)),
				zap.Int("floor", e.cfg.ScreenshotMinBytes),
			)
		}
		e.sleep(e.cfg.ScreenshotBackoff)
	}

	msg := action.ErrCaptureFailed.Error() + " after retries"
	if lastErr != nil {
		msg = action.ErrCaptureFailed.Error() + ": " + lastErr.Error()
	}
	e.logger.Warn("Synthesizing placeholder screenshot.",
		zap.String("code", string(action.ErrCodeCaptureFailed)),
		zap.String("reason", msg),
	)
	return placeholderImage(msg)
}
