// Command rollserve is the standalone launcher for a roll.App: parse
// configuration, wire the optional extensions the config asks for, and
// run the accept loop until SIGINT/SIGTERM, mirroring the teacher's own
// "one binary, one purpose" cmd layout without depending on Caddy's own
// module-registration machinery (see DESIGN.md's dropped-dependency
// entry for why).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pyrates/roll"
	"github.com/pyrates/roll/extensions"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "rollserve",
		Short: "Run a roll application server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(viper.New(), configFile)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(cfg Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app := roll.New(roll.WithLogger(logger), roll.WithIdleTimeout(cfg.IdleTimeout))

	if cfg.EnableCORS {
		extensions.CORS(app, cfg.CORSOrigin)
	}
	if cfg.EnableOPTIONS {
		extensions.Options(app)
	}
	if cfg.RequestID {
		extensions.RequestID(app)
	}
	extensions.Traceback(app, logger)

	if err := registerDemoRoute(app); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(cfg.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	return cfg.Build()
}

// registerDemoRoute gives a freshly launched rollserve something to
// answer besides silence; real deployments register their own routes
// by depending on this package's App construction instead of main().
func registerDemoRoute(app *roll.App) error {
	return app.Route("/healthz", []string{http.MethodGet}, "healthz",
		func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
			resp.SetBody("ok")
			return nil
		})
}
