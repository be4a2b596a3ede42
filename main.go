package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/liveness-check/internal/config"
	"github.com/example/liveness-check/internal/handlers"
	"github.com/example/liveness-check/internal/imageprocessor"
	"github.com/example/liveness-check/internal/livenessclient"
	"github.com/example/liveness-check/internal/logging"
	"github.com/example/liveness-check/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "liveness-check",
		Short:         "Face liveness check front-end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pflags := root.PersistentFlags()
	pflags.String("config", "", "Path to a YAML config file")
	pflags.String("env-file", "", "Path to an env file (defaults to .env when present)")

	root.AddCommand(newServeCmd(), newCheckCmd())
	return root
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	uc     *usecase.LivenessUseCase
}

func loadApp(cmd *cobra.Command) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Options{
		Environment: cfg.Environment,
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	client := livenessclient.New(cfg, logger)
	uc := usecase.NewLivenessUseCase(imageprocessor.NewNormalizer(cfg.JPEGQuality), client, logger)
	return &app{cfg: cfg, logger: logger, uc: uc}, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front-end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			r := handlers.NewRouter(a.uc, a.logger)
			server := &http.Server{
				Addr:              a.cfg.HTTP.Addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			a.logger.Info("liveness front-end listening",
				zap.String("addr", a.cfg.HTTP.Addr),
				zap.String("endpoint", a.cfg.Endpoint),
			)
			if err := serveHTTPServer(server, a.cfg.HTTP.ShutdownTimeout, a.logger); err != nil {
				a.logger.Error("server failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().Duration("timeout", 0, "Timeout for the liveness service call")
	return cmd
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-signalCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
