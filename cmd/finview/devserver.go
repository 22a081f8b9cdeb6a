package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/devserver"
)

var (
	devPort  int
	devToken string
)

func init() {
	devserverCmd.Flags().IntVar(&devPort, "port", 0, "listen port (default devserver.port)")
	devserverCmd.Flags().StringVar(&devToken, "token", "", "accepted session cookie value (default devserver.token)")
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory Project Service for local use",
	Long: `Run an in-memory Project Service that speaks the same HTTP contract as the
real one. Point the client at it with --server and set session.cookie to the
token.

Examples:
  finview devserver --port 3000 --token dev-session
  FINVIEW_SESSION_COOKIE=dev-session finview --server http://localhost:3000 projects list`,
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

func runDevserver(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	scfg := &devserver.Config{
		Host:       cfg.DevServer.Host,
		Port:       cfg.DevServer.Port,
		CookieName: cfg.Session.CookieName,
		Token:      cfg.DevServer.Token.Value(),
	}
	if devPort != 0 {
		scfg.Port = devPort
	}
	if devToken != "" {
		scfg.Token = devToken
	}
	srv, err := devserver.NewServer(logger, scfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info(ctx, "devserver listening", zap.String("addr", srv.Addr()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
