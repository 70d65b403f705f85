package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyBuffer(t *testing.T) {
	_, err := Validate(nil, NativeFormat{SampleRateHz: 48000, Channels: 1})
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangeSampleRate(t *testing.T) {
	_, err := Validate([]float32{0.1}, NativeFormat{SampleRateHz: 1000, Channels: 1})
	assert.Error(t, err)

	_, err = Validate([]float32{0.1}, NativeFormat{SampleRateHz: 300000, Channels: 1})
	assert.Error(t, err)
}

func TestValidateRejectsNonFiniteSamples(t *testing.T) {
	_, err := Validate([]float32{0.1, float32(math.NaN())}, NativeFormat{SampleRateHz: 48000, Channels: 1})
	assert.Error(t, err)

	_, err = Validate([]float32{0.1, float32(math.Inf(1))}, NativeFormat{SampleRateHz: 48000, Channels: 1})
	assert.Error(t, err)
}

func TestValidateAcceptsWellFormedBuffer(t *testing.T) {
	warnings, err := Validate([]float32{0.1, -0.2, 0.3}, NativeFormat{SampleRateHz: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestFoldToMonoAveragesChannels(t *testing.T) {
	// two channels, three frames: L/R pairs
	stereo := []float32{1.0, -1.0, 0.5, 0.5, 0.0, 1.0}
	mono := FoldToMono(stereo, 2)

	require.Len(t, mono, 3)
	assert.InDelta(t, 0.0, mono[0], 1e-6)
	assert.InDelta(t, 0.5, mono[1], 1e-6)
	assert.InDelta(t, 0.5, mono[2], 1e-6)
}

func TestFoldToMonoPassesThroughSingleChannel(t *testing.T) {
	mono := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, mono, FoldToMono(mono, 1))
}

func TestResampleNoopWhenRatesMatch(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	out, warning := Resample(samples, 16000, 16000)
	assert.Equal(t, samples, out)
	assert.Empty(t, warning)
}

func TestResampleDownsamplesHalvesLength(t *testing.T) {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = float32(i) / 100
	}
	out, warning := Resample(samples, 32000, 16000)

	assert.InDelta(t, 50, len(out), 2)
	assert.Empty(t, warning)
}

func TestResampleWarnsOnExtremeRatio(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3, 0.4}
	_, warning := Resample(samples, 192000, 8000)
	assert.NotEmpty(t, warning)
}

func TestNormalizeProducesCanonicalFormat(t *testing.T) {
	stereo := make([]float32, 48000*2) // 1 second, stereo, 48kHz
	for i := range stereo {
		stereo[i] = 0.1
	}

	out, _, err := Normalize(stereo, NativeFormat{SampleRateHz: 48000, Channels: 2})
	require.NoError(t, err)
	assert.InDelta(t, 16000, len(out), 5)
}
