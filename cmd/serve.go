package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/session"
	"github.com/sells-group/brreg-matcher/internal/web"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		sessions := session.NewManager(session.ManagerConfig{
			MaxSessions:         cfg.Server.MaxSessions,
			TTL:                 time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute,
			DefaultCRMPath:      cfg.Data.CRMPath,
			DefaultRegistryPath: cfg.Data.RegistryPath,
			Options:             env.sessionOptions(),
		}, env.newEnricher)
		defer sessions.Purge()

		srv, err := web.New(ctx, web.Config{
			Password:       cfg.Server.Password,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			SortByRevenue:  cfg.Matcher.SortByRevenue,
		}, sessions)
		if err != nil {
			return err
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		if cfg.Server.Password == "" {
			zap.L().Warn("server.password is empty, the UI is open to anyone who can reach it")
		}
		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
