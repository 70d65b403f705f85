// Package transcriptionclient implements the submit/poll/wait API callers
// use to push audio into the queue and correlate responses back to their
// originating request. It never retries a transport failure itself — that
// is the tracker's concern; the client only frames, pushes, and polls.
package transcriptionclient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queue"
)

var logger = logging.ForService("transcriptionclient")

// defaultPollInterval governs wait_for_result's polling cadence.
const defaultPollInterval = 100 * time.Millisecond

// Client submits AudioChunks to an input queue and correlates results
// popped from a result queue by id.
type Client struct {
	input        queue.Queue[protocol.AudioChunk]
	results      queue.Queue[protocol.Result]
	pollInterval time.Duration
}

// New builds a client over the given input and result queues.
func New(input queue.Queue[protocol.AudioChunk], results queue.Queue[protocol.Result]) *Client {
	return &Client{input: input, results: results, pollInterval: defaultPollInterval}
}

// WithPollInterval overrides the polling cadence used by WaitForResult.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	c.pollInterval = d
	return c
}

// Transcribe frames samples as an AudioChunk and pushes it onto the input
// queue, returning the id callers use to correlate a later result.
func (c *Client) Transcribe(samples []float32, sampleRate int) (uuid.UUID, error) {
	chunk := protocol.AudioChunk{
		ID:          uuid.New(),
		Samples:     samples,
		SampleRate:  sampleRate,
		Channels:    1,
		TimestampMs: time.Now().UnixMilli(),
	}

	if err := c.input.Push(chunk); err != nil {
		return uuid.Nil, err
	}
	logger.Debug("chunk submitted", "id", chunk.ID, "sample_rate", sampleRate, "samples", len(samples))
	return chunk.ID, nil
}

// PollResult scans the result queue for a matching id and removes it on
// match. It never blocks: ok is false when no result is present yet.
func (c *Client) PollResult(id uuid.UUID) (transcript *protocol.Transcript, transcriptionErr *protocol.TranscriptionError, ok bool, err error) {
	result, found := c.results.Get(id)
	if !found {
		return nil, nil, false, nil
	}
	if !c.results.Remove(id) {
		// Another poller already claimed it between Get and Remove.
		return nil, nil, false, nil
	}
	if result.Error != nil {
		return nil, result.Error, true, nil
	}
	return result.Transcript, nil, true, nil
}

// WaitForResult polls PollResult at pollInterval until a result arrives,
// ctx is cancelled, or timeout elapses.
func (c *Client) WaitForResult(ctx context.Context, id uuid.UUID, timeout time.Duration) (*protocol.Transcript, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		transcript, transcriptionErr, ok, err := c.PollResult(id)
		if err != nil {
			return nil, err
		}
		if ok {
			if transcriptionErr != nil {
				return nil, errors.Newf("%s", transcriptionErr.Message).
					Component("transcriptionclient").
					Category(errors.CategoryProcessing).
					Context("id", id.String()).
					Context("error_code", transcriptionErr.ErrorCode).
					Build()
			}
			return transcript, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, errors.Newf("timed out waiting for transcription result").
				Component("transcriptionclient").
				Category(errors.CategoryTimeout).
				Context("id", id.String()).
				Build()
		case <-ticker.C:
			continue
		}
	}
}

// TranscribeSync is a convenience composition of Transcribe + WaitForResult.
func (c *Client) TranscribeSync(ctx context.Context, samples []float32, sampleRate int, timeout time.Duration) (string, error) {
	id, err := c.Transcribe(samples, sampleRate)
	if err != nil {
		return "", err
	}

	transcript, err := c.WaitForResult(ctx, id, timeout)
	if err != nil {
		return "", err
	}
	return transcript.Text, nil
}
