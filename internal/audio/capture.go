package audio

import (
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gen2brain/malgo"

	"github.com/arach/transcribe-dispatch/internal/errors"
)

// wavBitDepth and wavAudioFmt match what malgo is configured to deliver:
// 16-bit signed PCM, the most broadly supported capture format across
// backends.
const (
	wavBitDepth = 16
	wavAudioFmt = 1 // PCM
	wavDivisor  = 32768.0
)

// Capturer records one session straight to a single file in the device's
// native format, with no intermediate ring buffer. Stop() finalizes the
// file and hands back the raw samples for normalization.
type Capturer struct {
	filePath string

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	file    *os.File
	encoder *wav.Encoder
	format  NativeFormat
	started time.Time
	err     error
}

// NewCapturer prepares a capturer that will write to filePath on Start.
func NewCapturer(filePath string) *Capturer {
	return &Capturer{filePath: filePath}
}

// Start selects deviceName (or the system default) and begins capture.
func (c *Capturer) Start(deviceName string, sampleRate, channels int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	backend, err := backendForPlatform()
	if err != nil {
		return err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	deviceInfo, err := SelectDevice(infos, deviceName)
	if err != nil {
		_ = ctx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	file, err := os.Create(c.filePath)
	if err != nil {
		_ = ctx.Uninit()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", c.filePath).
			Build()
	}

	encoder := wav.NewEncoder(file, sampleRate, wavBitDepth, channels, wavAudioFmt)

	c.format = NativeFormat{SampleRateHz: sampleRate, Channels: channels}

	onData := func(_, input []byte, frameCount uint32) {
		c.writeFrames(input)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		_ = file.Close()
		_ = ctx.Uninit()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = file.Close()
		_ = ctx.Uninit()
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Build()
	}

	c.ctx = ctx
	c.device = device
	c.file = file
	c.encoder = encoder
	c.started = time.Now()

	logger.Info("capture started", "device", deviceInfo.Name(), "sample_rate", sampleRate, "channels", channels)
	return nil
}

// writeFrames appends raw S16 interleaved samples to the output file.
func (c *Capturer) writeFrames(input []byte) {
	if c.encoder == nil || len(input) == 0 {
		return
	}

	samples := make([]int, len(input)/2)
	for i := range samples {
		lo := int(input[i*2])
		hi := int(int8(input[i*2+1]))
		samples[i] = hi<<8 | lo
	}

	buf := &audio.IntBuffer{
		Data:   samples,
		Format: &audio.Format{SampleRate: c.format.SampleRateHz, NumChannels: c.format.Channels},
	}
	if err := c.encoder.Write(buf); err != nil {
		c.err = errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("operation", "write_frames").
			Build()
	}
}

// Stop halts capture, finalizes the file, and reads back the full native
// buffer for normalization.
func (c *Capturer) Stop() ([]float32, NativeFormat, error) {
	c.mu.Lock()
	device, ctx, encoder, file, writeErr, format := c.device, c.ctx, c.encoder, c.file, c.err, c.format
	c.device, c.ctx, c.encoder, c.file, c.err = nil, nil, nil, nil, nil
	c.mu.Unlock()

	if device == nil {
		return nil, format, errors.Newf("capture not started").
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	device.Uninit()
	if ctx != nil {
		_ = ctx.Uninit()
	}
	if encoder != nil {
		_ = encoder.Close()
	}
	if file != nil {
		_ = file.Close()
	}
	if writeErr != nil {
		return nil, format, writeErr
	}

	samples, err := readWAVFile(c.filePath)
	if err != nil {
		return nil, format, err
	}
	return samples, format, nil
}

// readWAVFile decodes a PCM WAV file into float32 samples in [-1, 1],
// matching the int-buffer-to-float conversion used for offline WAV ingest.
func readWAVFile(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("invalid wav file").
			Component("audio").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	var divisor float32
	switch decoder.BitDepth {
	case 16:
		divisor = wavDivisor
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, errors.Newf("unsupported bit depth %d", decoder.BitDepth).
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}

	var out []float32
	buf := &audio.IntBuffer{
		Data:   make([]int, 4096),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: int(decoder.NumChans)},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(err).
				Component("audio").
				Category(errors.CategoryFileIO).
				Context("operation", "pcm_buffer").
				Build()
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			out = append(out, float32(sample)/divisor)
		}
	}
	return out, nil
}
