package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantlab/backgrid/internal/api"
	"github.com/quantlab/backgrid/internal/api/handler"
	"github.com/quantlab/backgrid/internal/api/job"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backgrid HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	jobs := job.NewStore(a.cfg.Server.MaxJobs,
		time.Duration(a.cfg.Server.JobTTLHours)*time.Hour)

	backtestHandler := handler.NewBacktest(jobs, a.runner, a.series, a.cfg.Engine, a.registry)
	gridHandler := handler.NewGrid(a.scheduler, a.archiver, a.log)

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}

	server := api.NewServer(api.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		MetricsPath: metricsPath,
	}, backtestHandler, gridHandler, a.registry, a.log)

	go func() {
		if err := server.Start(); err != nil {
			a.log.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.log.Info("shutting down backgrid server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
