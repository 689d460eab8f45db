// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hexlane/operant/internal/executor"
	"github.com/hexlane/operant/internal/loop"
	"github.com/hexlane/operant/internal/modelapi"
	"github.com/hexlane/operant/internal/observability"
	"github.com/hexlane/operant/internal/store"
	"github.com/hexlane/operant/internal/surface"
)

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Run a single agent turn: send the objective to the model and resolve its browser actions until it finishes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTurn(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTurn(parent context.Context, objective string) error {
	logger := observability.GetLogger()
	cfg := appCfg

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	surf, err := surface.NewChromeSurface(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browsing surface: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := surf.Close(closeCtx); err != nil {
			logger.Warn("Error closing browsing surface.", zap.Error(err))
		}
	}()

	var recorder loop.Recorder
	if cfg.Store.DSN != "" {
		st, err := store.Connect(ctx, cfg.Store.DSN, logger)
		if err != nil {
			return fmt.Errorf("failed to connect transcript store: %w", err)
		}
		defer st.Close()
		recorder = st
	}

	client := modelapi.NewClient(cfg.API, cfg.Browser, logger)
	exec := executor.New(surf, cfg.Executor, logger)
	notify := func(message string) {
		fmt.Println(message)
	}
	controller := loop.New(client, exec, cfg.Loop, logger, recorder, notify)

	turn := loop.Turn{ConversationID: uuid.New().String()}

	g, gctx := errgroup.WithContext(ctx)
	turnDone := make(chan struct{})

	g.Go(func() error {
		defer close(turnDone)

		resp, err := client.SendChat(gctx, objective)
		if err != nil {
			return fmt.Errorf("chat request failed: %w", err)
		}

		if _, pending := modelapi.LatestComputerCall(resp); pending {
			resp, err = controller.Resolve(gctx, turn, resp.ID)
			if err != nil {
				return err
			}
		}

		if resp != nil {
			if text := resp.AssistantText(); text != "" {
				fmt.Println(text)
			}
		}
		return nil
	})

	// A crashed or killed browser otherwise surfaces only as a hung model
	// exchange; the watcher fails the turn promptly instead.
	g.Go(func() error {
		return watchSurface(gctx, turnDone, surf.Attached, surfaceWatchInterval)
	})

	return g.Wait()
}

// surfaceWatchInterval paces the browser liveness probe during a turn.
const surfaceWatchInterval = 2 * time.Second

// watchSurface polls attached until the turn completes, the context ends, or
// the browsing surface detaches. Only detachment is an error; the other two
// exits are owned by the turn itself.
func watchSurface(ctx context.Context, done <-chan struct{}, attached func() bool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !attached() {
				return fmt.Errorf("browsing surface detached mid-turn")
			}
		}
	}
}
