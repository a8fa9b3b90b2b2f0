package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/web"
	"github.com/harhit22/new-auto-attendace/internal/web/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the faceverify HTTP API.
The server loads the enrolled gallery from PostgreSQL, verifies and
identifies camera bursts, enrols identities and exposes Prometheus metrics.
With REDIS_URL set, gallery changes are announced to and received from
other instances.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (overrides LISTEN_ADDR)")
}

// followGallery applies gallery changes announced by other instances until
// ctx is cancelled.
func followGallery(ctx context.Context, a *app) {
	err := a.notifier.Subscribe(ctx, nil, func(id string) {
		if err := a.gallery.Sync(ctx, a.repo, id); err != nil {
			a.logger.Error("failed to sync identity", zap.String("identity_id", id), zap.Error(err))
		}
	})
	if err != nil {
		a.logger.Error("gallery subscription stopped", zap.Error(err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	if addr := mustGetString(cmd, "addr"); addr != "" {
		a.cfg.Server.Addr = addr
	}

	health := []handlers.HealthCheck{{Name: "database", Check: a.pool.Ping}}
	if a.notifier != nil {
		health = append(health, handlers.HealthCheck{Name: "redis", Check: a.notifier.Health})
		go followGallery(ctx, a)
	}

	server := web.NewServer(a.cfg.Server, web.Deps{
		Pipeline:    a.pipeline,
		Enroller:    a.enroller,
		Identities:  a.repo,
		Gallery:     a.gallery,
		Publisher:   a.notifier,
		Health:      health,
		ModelStatus: a.models.Status,
		Gatherer:    a.registry,
	}, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		a.logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	snap := a.gallery.Snapshot()
	a.logger.Info("gallery ready",
		zap.Int("identities", snap.Len()),
		zap.Int("descriptors", snap.Descriptors()),
	)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
