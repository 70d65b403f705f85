package audio

import (
	"math"

	"github.com/arach/transcribe-dispatch/internal/errors"
)

// WhisperSampleRate is the canonical sample rate required by the downstream
// speech model: 16 kHz, mono, f32 samples in [-1, 1].
const WhisperSampleRate = 16000

// NativeFormat describes the format audio was actually captured in, before
// normalization.
type NativeFormat struct {
	SampleRateHz int
	Channels     int
}

// Validate rejects buffers that cannot be normalized and reports anomalies
// that are survivable (logged, not fatal) through the returned warnings.
func Validate(samples []float32, format NativeFormat) (warnings []string, err error) {
	if len(samples) == 0 {
		return nil, errors.Newf("empty audio buffer").
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}
	if format.SampleRateHz < 8000 || format.SampleRateHz > 192000 {
		return nil, errors.Newf("sample rate %d out of supported range [8000, 192000]", format.SampleRateHz).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("sample_rate", format.SampleRateHz).
			Build()
	}
	if format.Channels < 1 {
		return nil, errors.Newf("invalid channel count %d", format.Channels).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("channels", format.Channels).
			Build()
	}

	for _, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, errors.Newf("non-finite sample in audio buffer").
				Component("audio").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	if estimated := estimateSampleRate(samples, format.Channels); estimated > 0 {
		delta := math.Abs(float64(estimated - format.SampleRateHz))
		if format.SampleRateHz == WhisperSampleRate && delta > 8000 {
			warnings = append(warnings, "zero-crossing rate estimate diverges sharply from the reported sample rate")
		}
	}

	return warnings, nil
}

// estimateSampleRate gives a rough sanity reading from zero-crossing
// density; it is a heuristic, not a precise measurement, and is only used
// to flag gross device/driver misreporting.
func estimateSampleRate(samples []float32, channels int) int {
	mono := samples
	if channels > 1 {
		mono = FoldToMono(samples, channels)
	}
	if len(mono) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(mono); i++ {
		if (mono[i-1] < 0) != (mono[i] < 0) {
			crossings++
		}
	}
	// A pure tone crosses zero twice per cycle; without a cycle-length
	// estimate this only gives a coarse density figure, scaled so that
	// typical speech content lands near common device rates.
	return crossings * 2
}

// FoldToMono averages interleaved channels down to a single channel.
func FoldToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += samples[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample performs linear-interpolation resampling from srcRate to
// dstRate. Extreme ratios (capture misconfiguration, not normal device
// variance) are reported through the returned warning.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, string) {
	if srcRate == dstRate || len(samples) == 0 {
		return samples, ""
	}

	ratio := float64(dstRate) / float64(srcRate)
	var warning string
	if ratio < 0.1 || ratio > 10.0 {
		warning = "resample ratio is extreme; captured sample rate may be misreported"
	}

	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	srcRatio := float64(srcRate) / float64(dstRate)

	for i := 0; i < outLen; i++ {
		src := float64(i) * srcRatio
		idx := int(src)
		frac := src - float64(idx)

		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		out[i] = samples[idx]*float32(1-frac) + samples[idx+1]*float32(frac)
	}
	return out, warning
}

// Normalize runs the full validate → fold → resample pipeline, producing
// 16 kHz mono f32 samples ready for chunking.
func Normalize(samples []float32, format NativeFormat) ([]float32, []string, error) {
	warnings, err := Validate(samples, format)
	if err != nil {
		return nil, warnings, err
	}

	mono := FoldToMono(samples, format.Channels)

	resampled, resampleWarning := Resample(mono, format.SampleRateHz, WhisperSampleRate)
	if resampleWarning != "" {
		warnings = append(warnings, resampleWarning)
	}

	return resampled, warnings, nil
}
