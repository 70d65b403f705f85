// Package serve implements the "serve" subcommand: the long-running
// dispatcher daemon that owns the queue, tracker, monitors, worker
// supervisor, and the glue dispatcher loop.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arach/transcribe-dispatch/internal/config"
	"github.com/arach/transcribe-dispatch/internal/controlplane"
	"github.com/arach/transcribe-dispatch/internal/dispatcher"
	"github.com/arach/transcribe-dispatch/internal/events"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/observability"
	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queue"
	"github.com/arach/transcribe-dispatch/internal/queuemonitor"
	"github.com/arach/transcribe-dispatch/internal/supervisor"
	"github.com/arach/transcribe-dispatch/internal/tracker"
)

var logger = logging.ForService("serve")

// depthSampleInterval governs how often the input queue's length is fed
// into the queue monitor so has_backpressure reflects live depth.
const depthSampleInterval = 1 * time.Second

// metricsSampleInterval governs how often the Prometheus queue/worker gauges
// are refreshed from the queue monitor and supervisor.
const metricsSampleInterval = 5 * time.Second

// Command builds the "serve" subcommand.
func Command(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher daemon: queue, tracker, monitors, and worker supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}
}

func run(ctx context.Context, settings *config.Settings) error {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if _, err := events.Initialize(events.DefaultConfig()); err != nil {
		return fmt.Errorf("initializing event bus: %w", err)
	}

	input, results, closeQueues, err := buildQueues(settings)
	if err != nil {
		return fmt.Errorf("building queues: %w", err)
	}
	defer closeQueues()

	tr := tracker.New(tracker.Config{
		MaxRetries:     settings.Tracker.MaxRetries,
		TimeoutSeconds: int(settings.Tracker.MessageTimeout.Seconds()),
	}, nil)

	qm := queuemonitor.New(queuemonitor.Config{
		HighDepth:    settings.Queue.HighWaterMark,
		HighPressure: queuemonitor.DefaultHighPressure,
	})

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewDispatchMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	cpm := controlplane.New(tr, qm,
		controlplane.WithErrorHook(metrics.RecordControlPlaneError),
		controlplane.WithMessageHook(metrics.RecordWorkerMessage),
	)

	disp := dispatcher.New(input, results, tr, qm,
		func(chunk protocol.AudioChunk, err error) {
			logger.Error("chunk enqueue failed", "id", chunk.ID, "error", err)
		},
		func(result protocol.Result) {
			if result.Error != nil {
				logger.Warn("transcription failed", "id", result.ID, "error", result.Error.Message)
				return
			}
			logger.Info("transcription completed", "id", result.ID, "text", result.Transcript.Text)
		},
	)

	sup := supervisor.New(supervisor.Config{
		WorkerCount:       settings.Worker.Count,
		BinaryPath:        settings.Worker.BinaryPath,
		Args:              settings.Worker.Args,
		MaxRestarts:       settings.Worker.MaxRestarts,
		InitialBackoff:    settings.Worker.InitialBackoff,
		MaxBackoff:        settings.Worker.MaxBackoff,
		HeartbeatInterval: settings.Worker.HeartbeatInterval,
		ResponseTimeout:   settings.Worker.ResponseTimeout,
		StopTimeout:       settings.Worker.StopTimeout,
	},
		supervisor.WithRestartHook(func(slotID string) {
			metrics.RecordWorkerRestart(slotID)
		}),
		supervisor.WithExitHook(disp.HandleWorkerExit),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sup.Start(runCtx); err != nil {
		return fmt.Errorf("starting worker supervisor: %w", err)
	}
	defer sup.Stop()

	if settings.Queue.Backend == "volatile" {
		startVolatileListeners(runCtx, settings, input, results, cpm, disp)
	} else {
		go func() {
			if err := cpm.Listen(runCtx, fmt.Sprintf("%s:%d", settings.Queue.VolatileHost, settings.Queue.ControlPort)); err != nil {
				logger.Warn("control plane listener did not start", "error", err)
			}
		}()
	}

	go disp.Run(runCtx)
	go disp.RunTimeoutSweep(runCtx, settings.Tracker.CheckInterval)
	go disp.RunCleanupSweep(runCtx, settings.Tracker.CleanupInterval, settings.Tracker.CleanupAge)
	go disp.RunDepthSweep(runCtx, depthSampleInterval)
	go sampleMetrics(runCtx, qm, sup, metrics)

	if settings.Observability.Enabled {
		go func() {
			if err := observability.Serve(runCtx, settings.Observability.Listen, registry); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	return nil
}

func startVolatileListeners(ctx context.Context, settings *config.Settings, input queue.Queue[protocol.AudioChunk], results queue.Queue[protocol.Result], cpm *controlplane.ControlPlaneMonitor, disp *dispatcher.Dispatcher) {
	host := settings.Queue.VolatileHost
	if wq, ok := input.(*queue.WireQueue[protocol.AudioChunk]); ok {
		go func() {
			if err := wq.ServePush(ctx, fmt.Sprintf("%s:%d", host, settings.Queue.PushPort), disp.Submit); err != nil {
				logger.Error("push listener stopped", "error", err)
			}
		}()
	}
	if wq, ok := results.(*queue.WireQueue[protocol.Result]); ok {
		go func() {
			if err := wq.ServePull(ctx, fmt.Sprintf("%s:%d", host, settings.Queue.PullPort)); err != nil {
				logger.Error("pull listener stopped", "error", err)
			}
		}()
	}
	go func() {
		if err := cpm.Listen(ctx, fmt.Sprintf("%s:%d", host, settings.Queue.ControlPort)); err != nil {
			logger.Error("control plane listener stopped", "error", err)
		}
	}()
}

// sampleMetrics refreshes the queue/worker gauges from the queue monitor and
// supervisor on interval, until ctx is cancelled.
func sampleMetrics(ctx context.Context, qm *queuemonitor.QueueMonitor, sup *supervisor.Supervisor, metrics *observability.DispatchMetrics) {
	ticker := time.NewTicker(metricsSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := qm.Health()
			metrics.RecordQueueHealth(health.DepthEstimate, health.IngressRate, health.EgressRate, health.HasBackpressure, sup.ActiveCount())
		}
	}
}

func buildQueues(settings *config.Settings) (queue.Queue[protocol.AudioChunk], queue.Queue[protocol.Result], func(), error) {
	if settings.Queue.Backend == "durable" {
		if err := os.MkdirAll(settings.Queue.DurablePath, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("creating durable queue directory: %w", err)
		}
		input, err := queue.OpenDurable(filepath.Join(settings.Queue.DurablePath, "input.db"), chunkIDFunc, settings.Queue.MaxQueueDepth)
		if err != nil {
			return nil, nil, nil, err
		}
		results, err := queue.OpenDurable(filepath.Join(settings.Queue.DurablePath, "results.db"), resultIDFunc, settings.Queue.MaxQueueDepth)
		if err != nil {
			_ = input.Close()
			return nil, nil, nil, err
		}
		return input, results, func() { _ = input.Close(); _ = results.Close() }, nil
	}

	input := queue.NewWire(chunkIDFunc, settings.Queue.MaxQueueDepth)
	results := queue.NewWire(resultIDFunc, settings.Queue.MaxQueueDepth)
	return input, results, func() { _ = input.Close(); _ = results.Close() }, nil
}

func chunkIDFunc(c protocol.AudioChunk) uuid.UUID { return c.ID }
func resultIDFunc(r protocol.Result) uuid.UUID    { return r.ID }
