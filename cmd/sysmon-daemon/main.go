package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nvoss/sysmond/internal/collector"
	"github.com/nvoss/sysmond/internal/config"
	"github.com/nvoss/sysmond/internal/csvlog"
	dbussvc "github.com/nvoss/sysmond/internal/dbus"
	"github.com/nvoss/sysmond/internal/sampler"
	"github.com/nvoss/sysmond/internal/sensor"
	"github.com/nvoss/sysmond/internal/storage"
)

// topicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		// Check record-level attrs as fallback.
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

func main() {
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: sensor,tick,cleanup (or 'all')")
	configPath := flag.String("config", "/etc/sysmond/config.toml", "path to the TOML config file")
	resetDB := flag.Bool("reset-db", false, "delete the database and start fresh")
	flag.Parse()

	topics := make(map[string]bool)
	if *verbose {
		topics["all"] = true
	}
	if *logFlag != "" {
		for _, t := range strings.Split(*logFlag, ",") {
			topics[strings.TrimSpace(t)] = true
		}
	}

	handler := &topicHandler{
		inner:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
	logger := slog.New(handler)

	sensorLog := logger.With("topic", "sensor")
	tickLog := logger.With("topic", "tick")
	cleanupLog := logger.With("topic", "cleanup")

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no config file, using defaults", "path", *configPath)
		cfg = config.DefaultConfig()
	} else if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		logger.Error("create data dir", "err", err)
		os.Exit(1)
	}

	if *resetDB {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(cfg.Storage.DBPath + suffix); err != nil && !os.IsNotExist(err) {
				logger.Error("delete database", "err", err)
				os.Exit(1)
			}
		}
		logger.Info("database deleted", "path", cfg.Storage.DBPath)
		return
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Sensor tree: CPU temps from hwmon always, NVIDIA GPU via NVML
	// when a device is present.
	root := &sensor.Node{Kind: sensor.KindMotherboard, Name: "system"}
	hwmon := sensor.NewHwmonProvider()
	root.Children = append(root.Children, hwmon.Root())
	if nv, err := sensor.NewNvmlProvider(); err != nil {
		sensorLog.Warn("nvml unavailable", "err", err)
	} else {
		root.Children = append(root.Children, nv.Root())
		defer nv.Close()
	}

	csv := csvlog.New(time.Duration(cfg.Logging.ThrottleSeconds) * time.Second)
	if cfg.Logging.CSVPath != "" {
		if err := csv.Start(cfg.Logging.CSVPath); err != nil {
			logger.Error("start csv logging", "err", err)
			os.Exit(1)
		}
		logger.Info("csv logging started", "path", cfg.Logging.CSVPath)
	}
	defer csv.Stop()

	pipeline := &sampler.Pipeline{
		Root:      root,
		Counters:  collector.NewCounterSampler(collector.PsutilCounters{}),
		Processes: collector.NewProcessSampler(collector.PsutilSource{}, collector.CoreCount()),
		Agg:       collector.NewAggregator(collector.TotalPhysicalMemory()),
		TopN:      cfg.Sampling.TopProcesses,
	}

	orch := sampler.New(pipeline,
		time.Duration(cfg.Sampling.IntervalSeconds)*time.Second,
		time.Duration(cfg.Sampling.TickTimeoutSeconds)*time.Second,
		logger,
		sampler.SinkFunc(func(snap collector.Snapshot) {
			tickLog.Info("snapshot",
				"cpu_pct", snap.CPUUsagePct,
				"ram_available_mb", snap.RAMAvailableMB,
				"gpu_available", snap.GPUAvailable,
				"top_n", len(snap.TopProcesses))
			if err := store.InsertSnapshot(snap); err != nil {
				logger.Error("store snapshot", "err", err)
			}
		}),
		sampler.SinkFunc(func(snap collector.Snapshot) {
			if err := csv.Record(snap); err != nil {
				logger.Error("csv record", "err", err)
			}
		}),
	)

	svc := dbussvc.NewService(store, orch, csv)
	conn, err := svc.Export()
	if err != nil {
		logger.Error("export dbus service", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("D-Bus service registered", "name", "dev.sysmond.Monitor1")

	if err := orch.Start(); err != nil {
		logger.Error("start sampler", "err", err)
		os.Exit(1)
	}
	defer orch.Stop()

	cleanupTicker := time.NewTicker(time.Duration(cfg.Cleanup.IntervalHours) * time.Hour)
	defer cleanupTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("sysmon-daemon started",
		"interval_secs", cfg.Sampling.IntervalSeconds,
		"top_processes", cfg.Sampling.TopProcesses)

	runCleanup(store, cleanupLog, cfg.Cleanup.RetentionDays)
	for {
		select {
		case <-cleanupTicker.C:
			runCleanup(store, cleanupLog, cfg.Cleanup.RetentionDays)
		case <-sigCh:
			logger.Info("shutting down")
			return
		}
	}
}

func runCleanup(store *storage.DB, logger *slog.Logger, retentionDays int) {
	before := time.Now().AddDate(0, 0, -retentionDays).Unix()
	deleted, err := store.DeleteOlderThan(before)
	if err != nil {
		logger.Error("cleanup failed", "err", err)
		return
	}
	if deleted > 0 {
		logger.Info("cleanup done", "deleted_rows", deleted, "retention_days", retentionDays)
	} else {
		logger.Debug("cleanup done, nothing to delete", "retention_days", retentionDays)
	}
}
