package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrCorruptBlob is returned when a stored record cannot be unpacked.
var ErrCorruptBlob = errors.New("corrupt record blob")

// Blob header flags.
const (
	blobRaw byte = iota
	blobLZ4
)

// maxBlobSize bounds the decompressed size accepted from a blob header.
const maxBlobSize = 1 << 30

// packRecord encodes v with codec and compresses the result with LZ4 block
// compression. Incompressible payloads are stored raw.
func packRecord(codec Codec, v any) ([]byte, error) {
	var buf bytes.Buffer

	err := codec.Encode(&buf, v)
	if err != nil {
		return nil, err
	}

	plain := buf.Bytes()

	header := make([]byte, 1+binary.MaxVarintLen64)
	n := binary.PutUvarint(header[1:], uint64(len(plain)))

	compressed := make([]byte, 1+n+lz4.CompressBlockBound(len(plain)))

	written, err := lz4.CompressBlock(plain, compressed[1+n:], nil)
	if err != nil || written == 0 || written >= len(plain) {
		out := make([]byte, 1+len(plain))
		out[0] = blobRaw
		copy(out[1:], plain)

		return out, nil
	}

	compressed[0] = blobLZ4
	copy(compressed[1:], header[1:1+n])

	return compressed[:1+n+written], nil
}

// unpackRecord reverses packRecord into v.
func unpackRecord(codec Codec, blob []byte, v any) error {
	if len(blob) == 0 {
		return ErrCorruptBlob
	}

	var plain []byte

	switch blob[0] {
	case blobRaw:
		plain = blob[1:]
	case blobLZ4:
		size, n := binary.Uvarint(blob[1:])
		if n <= 0 || size > maxBlobSize {
			return fmt.Errorf("%w: bad length header", ErrCorruptBlob)
		}

		plain = make([]byte, size)

		written, err := lz4.UncompressBlock(blob[1+n:], plain)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptBlob, err)
		}

		plain = plain[:written]
	default:
		return fmt.Errorf("%w: unknown flag %d", ErrCorruptBlob, blob[0])
	}

	return codec.Decode(bytes.NewReader(plain), v)
}
