package audio

import (
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/protocol"
)

// MinFinalChunkDuration is the shortest trailing chunk that is still worth
// emitting; anything shorter is dropped rather than sent to the model.
const MinFinalChunkDuration = 100 * time.Millisecond

// Chunk frames normalized 16 kHz mono samples into fixed-duration,
// non-overlapping windows. The final partial window is emitted only if it
// meets MinFinalChunkDuration.
func Chunk(samples []float32, sampleRate int, duration time.Duration, startTimestampMs int64) []protocol.AudioChunk {
	if len(samples) == 0 || sampleRate <= 0 || duration <= 0 {
		return nil
	}

	windowSize := int(duration.Seconds() * float64(sampleRate))
	if windowSize <= 0 {
		return nil
	}
	minSamples := int(MinFinalChunkDuration.Seconds() * float64(sampleRate))

	var chunks []protocol.AudioChunk
	for offset := 0; offset < len(samples); offset += windowSize {
		end := offset + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		if end-offset < minSamples {
			break
		}

		windowSamples := make([]float32, end-offset)
		copy(windowSamples, samples[offset:end])

		elapsedMs := int64(float64(offset) / float64(sampleRate) * 1000)
		chunks = append(chunks, protocol.AudioChunk{
			ID:          uuid.New(),
			Samples:     windowSamples,
			SampleRate:  sampleRate,
			Channels:    1,
			TimestampMs: startTimestampMs + elapsedMs,
		})
	}
	return chunks
}
