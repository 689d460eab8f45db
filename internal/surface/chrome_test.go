// File: internal/surface/chrome_test.go
package surface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCombineContext(t *testing.T) {
	t.Run("should cancel when the secondary context is cancelled", func(t *testing.T) {
		primary := context.Background()
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := combineContext(primary, secondary)
		defer cancel()

		cancelSecondary()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled")
		}
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("should cancel when the primary context is cancelled", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		secondary := context.Background()

		combined, cancel := combineContext(primary, secondary)
		defer cancel()

		cancelPrimary()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled")
		}
	})

	t.Run("should inherit values from the primary context", func(t *testing.T) {
		type key struct{}
		primary := context.WithValue(context.Background(), key{}, "target")

		combined, cancel := combineContext(primary, context.Background())
		defer cancel()

		require.Equal(t, "target", combined.Value(key{}))
		cancel()
	})

	t.Run("explicit cancel releases the watcher goroutine", func(t *testing.T) {
		combined, cancel := combineContext(context.Background(), context.Background())
		cancel()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("cancel did not propagate")
		}
	})
}
