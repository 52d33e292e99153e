package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kestrel-os/kcore/internal/logging"

	"github.com/kestrel-os/kcore"
)

func newRunCmd() *cobra.Command {
	var (
		taskMapPath string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot a simulated kernel from a task map and serve it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			k, err := kcore.New(cfg)
			if err != nil {
				return err
			}

			tm := defaultTaskMap()
			if taskMapPath != "" {
				tm, err = loadTaskMap(taskMapPath)
				if err != nil {
					return err
				}
			}

			tasks, err := k.Boot(tm)
			if err != nil {
				return err
			}
			logger := logging.Default().WithComponent("kcored")
			for _, t := range tasks {
				logger.Info("task running", "task_id", t.ID, "name", t.Name)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			k.Start(ctx)
			defer k.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(k.Metrics.Registry, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server exited", "error", err)
				}
			}()
			defer srv.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			fmt.Printf("kcored running %d tasks, metrics at http://%s/metrics\n", len(tasks), metricsAddr)
			<-sigCh
			logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&taskMapPath, "task-map", "", "path to a YAML task map (defaults to a single init task)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	return cmd
}

func defaultTaskMap() kcore.TaskMap {
	return kcore.TaskMap{Records: []kcore.TaskMapRecord{
		{PhysAddr: 0, Size: 4096, Name: "init"},
	}}
}
