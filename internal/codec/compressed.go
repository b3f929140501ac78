package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error

	newZstdEncoder = func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	}
	newZstdDecoder = func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	}
)

// EncodeAll and DecodeAll are safe for concurrent use, so one shared
// encoder and decoder serve every caller.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		var encErr, decErr error
		zstdEncoder, encErr = newZstdEncoder()
		zstdDecoder, decErr = newZstdDecoder()
		if encErr != nil || decErr != nil {
			zstdErr = fmt.Errorf("creating zstd coders: %w", errors.Join(encErr, decErr))
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Zstd compresses the Varint form. It pays off for terms with long position
// lists in large fields.
type Zstd struct{}

func (Zstd) Name() string { return "zstd" }

func (Zstd) Encode(positions []int) ([]byte, error) {
	raw, err := Varint{}.Encode(positions)
	if err != nil {
		return nil, err
	}
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, nil), nil
}

func (Zstd) Decode(data []byte) ([]int, error) {
	_, dec, err := zstdCoders()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, decodeErr("zstd: %v", err)
	}
	return Varint{}.Decode(raw)
}

const (
	lz4Raw        byte = 0
	lz4Compressed byte = 1
)

// LZ4 block-compresses the Varint form behind a one byte flag and the raw
// length. Short lists that do not compress are stored raw.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Encode(positions []int) ([]byte, error) {
	raw, err := Varint{}.Encode(positions)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1, 1+binary.MaxVarintLen64+lz4.CompressBlockBound(len(raw)))
	out = binary.AppendUvarint(out, uint64(len(raw)))
	header := len(out)
	out = out[:header+lz4.CompressBlockBound(len(raw))]
	n, err := lz4.CompressBlock(raw, out[header:], nil)
	if err != nil || n == 0 || n >= len(raw) {
		out[0] = lz4Raw
		return append(out[:header], raw...), nil
	}
	out[0] = lz4Compressed
	return out[:header+n], nil
}

func (LZ4) Decode(data []byte) ([]int, error) {
	if len(data) == 0 {
		return nil, decodeErr("empty lz4 block")
	}
	flag := data[0]
	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, decodeErr("bad lz4 length header")
	}
	body := data[1+n:]
	switch flag {
	case lz4Raw:
		if uint64(len(body)) != size {
			return nil, decodeErr("raw block length %d, header says %d", len(body), size)
		}
		return Varint{}.Decode(body)
	case lz4Compressed:
		if size > 1<<26 {
			return nil, decodeErr("lz4 block claims %d bytes", size)
		}
		raw := make([]byte, size)
		m, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, decodeErr("lz4: %v", err)
		}
		if uint64(m) != size {
			return nil, decodeErr("lz4 size mismatch: got %d, want %d", m, size)
		}
		return Varint{}.Decode(raw)
	}
	return nil, decodeErr("unknown lz4 block flag %d", flag)
}
