package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/arach/transcribe-dispatch/internal/errors"
)

// schemaVersion is the first byte of every encoded envelope. Bumping it is a
// breaking wire change; decoders reject anything they don't recognize rather
// than guessing at a migration.
const schemaVersion byte = 1

const maxFrameBytes = 64 << 20 // 64 MiB guards against a corrupt length prefix

// Encode serializes v into a schema-versioned msgpack envelope:
// one version byte followed by the msgpack body.
func Encode(v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Newf("encode message").
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("encode_err", err.Error()).
			Build()
	}
	out := make([]byte, 1+len(body))
	out[0] = schemaVersion
	copy(out[1:], body)
	return out, nil
}

// Decode parses a schema-versioned envelope produced by Encode into v.
func Decode(envelope []byte, v any) error {
	if len(envelope) == 0 {
		return errors.Newf("empty envelope").
			Component("protocol").
			Category(errors.CategoryValidation).
			Build()
	}
	if envelope[0] != schemaVersion {
		return errors.Newf("unsupported schema version %d", envelope[0]).
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("version", envelope[0]).
			Build()
	}
	if err := msgpack.Unmarshal(envelope[1:], v); err != nil {
		return errors.Newf("decode message").
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("decode_err", err.Error()).
			Build()
	}
	return nil
}

// WriteFrame writes a length-prefixed, schema-versioned frame to w: a
// big-endian uint32 byte count followed by the envelope from Encode.
func WriteFrame(w io.Writer, v any) error {
	envelope, err := Encode(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(envelope)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Newf("write frame length").
			Component("protocol").
			Category(errors.CategoryNetwork).
			Build()
	}
	if _, err := w.Write(envelope); err != nil {
		return errors.Newf("write frame body").
			Component("protocol").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes it into v.
func ReadFrame(r *bufio.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err // includes io.EOF, left untranslated so callers can detect stream close
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxFrameBytes {
		return errors.Newf("frame length %d out of bounds", n).
			Component("protocol").
			Category(errors.CategoryNetwork).
			Context("length", n).
			Build()
	}
	envelope := make([]byte, n)
	if _, err := io.ReadFull(r, envelope); err != nil {
		return errors.Newf("read frame body").
			Component("protocol").
			Category(errors.CategoryNetwork).
			Build()
	}
	return Decode(envelope, v)
}
