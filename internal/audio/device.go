// Package audio implements the capture → normalize → chunk pipeline: pick a
// device, record into a single native-format file, and on session stop
// convert the captured samples to 16 kHz mono f32 and frame them into
// fixed-duration chunks for the dispatcher to push onto the queue.
package audio

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
)

var logger = logging.ForService("audio")

// DeviceInfo describes one capture-capable device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system: %s", runtime.GOOS).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Build()
	}
}

// EnumerateDevices lists the available capture devices.
func EnumerateDevices() ([]DeviceInfo, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// SelectDevice picks a device by name, falling back to the system default
// when name is empty or "default".
func SelectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}

	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("no matching audio device found").
		Component("audio").
		Category(errors.CategoryValidation).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
