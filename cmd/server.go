/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/api"
	"github.com/mautops/crm-gin/internal/config"
	"github.com/mautops/crm-gin/internal/container"
	"github.com/mautops/crm-gin/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the CRM Gin API server.
The server will listen on the configured host and port and serve the task,
settings, notification and workload REST interfaces. When the scheduler is
enabled, due recurrence rules are materialized periodically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		if err := api.InitTracing(&cfg.Tracing); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 配置文件变更时热更新日志级别
		if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, logger)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				if level, err := logrus.ParseLevel(newCfg.Log.Level); err == nil {
					logger.SetLevel(level)
					logger.WithField("level", level.String()).Info("log level reloaded")
				}
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("failed to watch config file")
			}
			defer watcher.Stop()
		}

		collector := metrics.NewCollector(ctr.DB(), 15*time.Second, logger.WithField("component", "metrics"))
		collector.CollectOnce()
		collector.Start()
		defer collector.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if cfg.Scheduler.Enabled {
			scheduler := ctr.NewScheduler()
			scheduler.Start(ctx)
			defer scheduler.Stop()
			logger.WithField("interval", scheduler.Interval().String()).Info("recurrence scheduler started")
		}

		router := api.SetupRoutesWithConfig(api.RouterDeps{
			Config:        cfg,
			DB:            ctr.DB(),
			Storage:       ctr.Storage(),
			Authenticator: ctr.Authenticator(),
			Tasks:         ctr.Tasks(),
			Settings:      ctr.Settings(),
			Notifications: ctr.Notifications(),
			Workload:      ctr.Workload(),
			Statistics:    ctr.Statistics(),
		})

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		}

		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := api.ShutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to shutdown tracing")
		}
		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
