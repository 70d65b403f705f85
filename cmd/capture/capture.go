// Package capture implements the "capture" subcommand: a one-shot audio
// capture session that records until interrupted, normalizes and chunks
// the result, and pushes each chunk to a running dispatcher over the
// volatile wire protocol.
package capture

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arach/transcribe-dispatch/internal/audio"
	"github.com/arach/transcribe-dispatch/internal/config"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queue"
)

var logger = logging.ForService("capture")

// Command builds the "capture" subcommand.
func Command(settings *config.Settings) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture audio until interrupted, then push the chunks to the dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, device)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "capture device name, empty for system default")
	return cmd
}

func run(settings *config.Settings, device string) error {
	if device == "" {
		device = settings.Audio.Device
	}

	pipeline := audio.New(audio.Config{
		Device:           device,
		NativeSampleRate: 48000,
		NativeChannels:   1,
		ChunkDuration:    time.Duration(settings.Audio.ChunkDurationSecs * float64(time.Second)),
	})

	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	fmt.Println("Recording... press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	chunks, warnings, err := pipeline.Stop()
	for _, w := range warnings {
		logger.Warn("normalization warning", "warning", w)
	}
	if err != nil {
		return fmt.Errorf("stopping capture: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", settings.Queue.VolatileHost, settings.Queue.PushPort)
	client, err := queue.DialPush[protocol.AudioChunk](addr)
	if err != nil {
		return fmt.Errorf("dialing dispatcher at %s: %w", addr, err)
	}
	defer client.Close()

	for _, chunk := range chunks {
		if err := client.Push(chunk); err != nil {
			return fmt.Errorf("pushing chunk %s: %w", chunk.ID, err)
		}
	}
	fmt.Printf("Pushed %d chunks to %s\n", len(chunks), addr)
	return nil
}
