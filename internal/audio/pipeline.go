package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arach/transcribe-dispatch/internal/protocol"
)

// Config controls one capture session.
type Config struct {
	Device           string
	NativeSampleRate int
	NativeChannels   int
	ChunkDuration    time.Duration
	CaptureDir       string
}

// WithDefaults fills unset fields with the pipeline's standard values.
func (c Config) WithDefaults() Config {
	if c.NativeSampleRate == 0 {
		c.NativeSampleRate = 48000
	}
	if c.NativeChannels == 0 {
		c.NativeChannels = 1
	}
	if c.ChunkDuration == 0 {
		c.ChunkDuration = 5 * time.Second
	}
	if c.CaptureDir == "" {
		c.CaptureDir = os.TempDir()
	}
	return c
}

// Pipeline owns one capture-to-chunks session: select a device, capture to
// a single native-format file, and on Stop normalize and frame the result
// into fixed-duration chunks ready for the dispatcher to push.
type Pipeline struct {
	cfg      Config
	capturer *Capturer
	filePath string
	started  time.Time
}

// New prepares a pipeline; no device I/O happens until Start.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg.WithDefaults()}
}

// Start selects the configured device and begins capture.
func (p *Pipeline) Start() error {
	p.filePath = filepath.Join(p.cfg.CaptureDir, fmt.Sprintf("capture-%d.wav", time.Now().UnixNano()))
	p.capturer = NewCapturer(p.filePath)
	p.started = time.Now()
	return p.capturer.Start(p.cfg.Device, p.cfg.NativeSampleRate, p.cfg.NativeChannels)
}

// Stop ends capture, normalizes the recorded samples to 16 kHz mono f32,
// and frames them into fixed-duration chunks. Survivable normalization
// anomalies are returned as warnings rather than failing the call.
func (p *Pipeline) Stop() ([]protocol.AudioChunk, []string, error) {
	if p.capturer == nil {
		return nil, nil, fmt.Errorf("pipeline not started")
	}

	raw, format, err := p.capturer.Stop()
	defer func() { _ = os.Remove(p.filePath) }()
	if err != nil {
		return nil, nil, err
	}

	normalized, warnings, err := Normalize(raw, format)
	if err != nil {
		return nil, warnings, err
	}

	startMs := p.started.UnixMilli()
	chunks := Chunk(normalized, WhisperSampleRate, p.cfg.ChunkDuration, startMs)
	return chunks, warnings, nil
}
