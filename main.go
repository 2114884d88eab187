package main

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
	"github.com/spf13/cobra"

	"methylexplorer/internal/config"
	"methylexplorer/internal/dataset"
	"methylexplorer/internal/logger"
	"methylexplorer/internal/metrics"
	"methylexplorer/internal/ranking"
	"methylexplorer/internal/store"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "methylexplorer",
		Short:         "Explore DNA methylation points per experimental group",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "Path to the YAML config file")

	rootCmd.AddCommand(serveCommand(&configFile), rankCommand(&configFile))
	return rootCmd
}

func setup(configFile string) (*config.Settings, *logger.Logger, error) {
	settings, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(settings.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return settings, log, nil
}

func serveCommand(configFile *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the methylation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, log, err := setup(*configFile)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cmd.Flags().Changed("port") {
				settings.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, settings, log)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, settings *config.Settings, log *logger.Logger) error {
	m := metrics.New()

	st, err := store.Open(settings.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := dataset.New(ctx, settings, log, dataset.WithSink(st), dataset.WithMetrics(m))
	if err != nil {
		return err
	}

	gin.SetMode(settings.Server.Mode)
	router := newRouter(&server{data: data, store: st, metrics: m, log: log})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to run server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func rankCommand(configFile *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Compute the gene variation ranking and write it as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, log, err := setup(*configFile)
			if err != nil {
				return err
			}
			defer log.Sync()
			if output == "" {
				output = settings.Paths.TopGenes
			}

			data, err := dataset.New(cmd.Context(), settings, log)
			if err != nil {
				return err
			}
			snap := data.Snapshot()
			if snap.Annotations == nil {
				return fmt.Errorf("annotation file %s is required to rank genes", settings.Paths.AnnotatedBed)
			}

			ranked := ranking.Build(snap.Annotations, snap.Table)
			if err := ranking.WriteCSV(output, ranked); err != nil {
				return err
			}
			log.Info("gene variation written", "path", output, "genes", len(ranked))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV (defaults to paths.top_genes)")
	return cmd
}
