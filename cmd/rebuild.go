package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zblob/internal/domain"
	"github.com/zzenonn/zblob/internal/rebuilder"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild lost or corrupt chunks",
}

var rebuildRunCmd = &cobra.Command{
	Use:   "run [container-id/content-id/chunk-id ...]",
	Short: "Run rebuild tasks from arguments or a JSON-lines file",
	Long: `Run rebuild tasks. Tasks are given as container-id/content-id/chunk-id
arguments, or read from --file as one JSON object per line ("-" reads stdin):

  {"namespace":"ZBLOB","container_id":"...","content_id":"...","chunk_id":"..."}`,
	Run: func(cmd *cobra.Command, args []string) {
		rcfg := rebuilderConfig(cmd)

		feed, closeFeed, err := rebuildFeed(cmd, args)
		if err != nil {
			fmt.Printf("Error reading tasks: %v\n", err)
			return
		}
		defer closeFeed()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		metrics := rebuilder.NewMetrics(registry)
		if cfg.MetricsAddr != "" {
			shutdown := serveMetrics(cfg.MetricsAddr, registry)
			defer shutdown()
		}

		var mu sync.Mutex
		outcomes := make(map[string]int)
		var bytes int64
		sink := rebuilder.SinkFunc(func(r rebuilder.Result) {
			mu.Lock()
			defer mu.Unlock()
			outcomes[r.Outcome]++
			bytes += r.Bytes
			if r.Err != nil {
				fmt.Printf("%-20s %s/%s/%s: %v\n", r.Outcome, r.Task.ContainerID, r.Task.ContentID, r.Task.ChunkID, r.Err)
				return
			}
			fmt.Printf("%-20s %s/%s/%s (%d bytes in %s)\n", r.Outcome, r.Task.ContainerID, r.Task.ContentID, r.Task.ChunkID, r.Bytes, r.Duration.Round(time.Millisecond))
		})

		rb := rebuilder.New(rcfg, contents, metadata, metrics)
		if err := rb.Run(ctx, feed, sink); err != nil {
			fmt.Printf("Rebuild stopped: %v\n", err)
		}

		fmt.Printf("Rebuild finished: %d bytes written, outcomes %v\n", bytes, outcomes)
	},
}

// rebuilderConfig merges command flags over the configuration file.
func rebuilderConfig(cmd *cobra.Command) rebuilder.Config {
	rcfg := rebuilder.Config{
		Namespace:               cfg.Namespace,
		Workers:                 cfg.Rebuilder.Workers,
		AllowSameRawx:           cfg.Rebuilder.AllowSameRawx,
		ReadAllAvailableSources: cfg.Rebuilder.ReadAllAvailableSources,
		ServiceID:               cfg.Rebuilder.ServiceID,
		MetadataTimeout:         cfg.Timeouts.Metadata,
	}
	if cmd.Flags().Changed("workers") {
		rcfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("allow-same-rawx") {
		rcfg.AllowSameRawx, _ = cmd.Flags().GetBool("allow-same-rawx")
	}
	if cmd.Flags().Changed("read-all") {
		rcfg.ReadAllAvailableSources, _ = cmd.Flags().GetBool("read-all")
	}
	if cmd.Flags().Changed("service-id") {
		rcfg.ServiceID, _ = cmd.Flags().GetString("service-id")
	}
	return rcfg
}

func rebuildFeed(cmd *cobra.Command, args []string) (rebuilder.Feed, func(), error) {
	file, _ := cmd.Flags().GetString("file")
	noop := func() {}

	switch {
	case file != "" && len(args) > 0:
		return nil, noop, errors.New("give tasks as arguments or with --file, not both")
	case file == "-":
		return rebuilder.NewJSONLinesFeed(os.Stdin), noop, nil
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, noop, err
		}
		return rebuilder.NewJSONLinesFeed(f), func() { f.Close() }, nil
	case len(args) == 0:
		return nil, noop, errors.New("no task given")
	}

	tasks := make([]domain.RebuildTask, 0, len(args))
	for _, arg := range args {
		parts := strings.Split(arg, "/")
		if len(parts) != 3 {
			return nil, noop, fmt.Errorf("task %q is not container-id/content-id/chunk-id", arg)
		}
		tasks = append(tasks, domain.RebuildTask{
			Namespace:   cfg.Namespace,
			ContainerID: parts[0],
			ContentID:   parts[1],
			ChunkID:     parts[2],
		})
	}
	return rebuilder.NewSliceFeed(tasks...), noop, nil
}

// serveMetrics exposes registry on addr until the returned function is called.
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
}

func init() {
	rebuildRunCmd.Flags().StringP("file", "f", "", "JSON-lines task file, - for stdin")
	rebuildRunCmd.Flags().Int("workers", 4, "Number of concurrent rebuild workers")
	rebuildRunCmd.Flags().Bool("allow-same-rawx", false, "Allow writing the rebuilt chunk back to the broken node")
	rebuildRunCmd.Flags().Bool("read-all", false, "Read all fragments of an erasure-coded metachunk and salvage suspect ones")
	rebuildRunCmd.Flags().String("service-id", "", "Node whose chunks are rebuilt, to pick among copies sharing a chunk id")

	rebuildCmd.AddCommand(rebuildRunCmd)
	rootCmd.AddCommand(rebuildCmd)
}

