// File: internal/surface/surface.go
package surface

import "context"

// Metrics describes the surface's CSS viewport and device pixel ratio, used
// by the executor to normalize model-estimated coordinates.
type Metrics struct {
	Width             float64
	Height            float64
	DeviceScaleFactor float64
}

// Surface abstracts the single renderable browsing surface the executor
// drives. The contract is strictly serial: callers must never issue two
// operations concurrently against the same surface, since DOM state is
// explicitly serial. The production implementation is a headless Chrome tab;
// tests swap in a scripted fake.
type Surface interface {
	// Attached reports whether the surface is connected to a renderable
	// context. Every other method fails when it is not.
	Attached() bool

	// Navigate loads the given absolute URL and blocks until the load
	// completes or errors.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a JavaScript expression in the current document and
	// unmarshals its JSON result into out (out may be nil).
	Evaluate(ctx context.Context, script string, out any) error

	// EvaluateAsync runs an expression that yields a promise and resolves
	// it before unmarshaling, used for paint-confirmation round-trips.
	EvaluateAsync(ctx context.Context, script string, out any) error

	// CaptureScreenshot captures the current viewport as PNG bytes.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// Location returns the document's current URL.
	Location(ctx context.Context) (string, error)

	// Metrics returns the current viewport geometry.
	Metrics(ctx context.Context) (Metrics, error)

	// Close releases the surface and its browser resources.
	Close(ctx context.Context) error
}
