package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/cli/internal/watch"
	"github.com/satishbabariya/prisma-go-client/internal/config"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/httpengine"
	"github.com/satishbabariya/prisma-go-client/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		schemaPath string
		listen     string
		watchFlag  bool
	)
	cmd := &cobra.Command{
		Use:   "serve [schema-path]",
		Short: "Serve a query engine over HTTP",
		Long: `Serve the configured memory or sql engine over HTTP.

Remote clients connect with httpengine.New. Prometheus metrics are served
on /metrics unless metrics are disabled in the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), getSchemaPath(schemaPath, args), watchFlag)
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to schema file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	cmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Re-validate the schema when it changes")
	return cmd
}

func runServe(ctx context.Context, schemaPath string, watchSchema bool) error {
	if cfg.Engine == config.EngineHTTP {
		return errors.New("serve needs a memory or sql engine")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	dm, err := loadSchema(schemaPath)
	if err != nil {
		return err
	}
	e, err := openEngine(cfg, dm)
	if err != nil {
		return err
	}
	if lc, ok := e.(engine.Lifecycle); ok {
		if err := lc.Connect(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newServeHandler(e, cfg.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if lc, ok := e.(engine.Lifecycle); ok {
			if derr := lc.Disconnect(shutdownCtx); err == nil {
				err = derr
			}
		}
		ui.PrintInfo("engine stopped")
		return err
	})
	if watchSchema {
		w, err := watch.NewWatcher(schemaPath, func() error {
			if _, err := loadSchema(schemaPath); err != nil {
				ui.PrintError("schema is invalid: %v", err)
				return err
			}
			ui.PrintWarning("%s changed; restart the engine to apply it", schemaPath)
			return nil
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	ui.PrintSuccess("%s engine listening on %s (%d models)", cfg.Engine, cfg.Listen, len(dm.Models))
	return g.Wait()
}

// newServeHandler routes /metrics to Prometheus and everything else to the
// engine protocol.
func newServeHandler(e engine.Engine, metrics bool) http.Handler {
	router := mux.NewRouter()
	if metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		if inspector, ok := e.(engine.Inspector); ok {
			reg.MustRegister(telemetry.OpenTransactionsGauge(inspector))
		}
		router.Handle("/metrics", telemetry.Handler(reg)).Methods("GET")
	}
	router.PathPrefix("/").Handler(httpengine.NewHandler(e))
	return router
}
