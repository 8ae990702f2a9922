package cas

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/zerr"
)

// Compression is the payload encoding recorded in an envelope.
type Compression uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone Compression = iota
	// CompressionLZ4 stores an LZ4 block.
	CompressionLZ4
	// CompressionZstd stores a zstd frame.
	CompressionZstd
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression maps a configuration name to a Compression.
// An empty name selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, zerr.With(zerr.New("unknown compression"), "compression", name)
	}
}

var magic = []byte("KNIT")

// headerSize is magic, uint16 version, compression tag and uint32 raw length.
const headerSize = 4 + 2 + 1 + 4

// minCompressSize is the payload size below which compression is not attempted.
const minCompressSize = 64

// maxEntrySize bounds the raw length of a single entry.
const maxEntrySize = 256 << 20

// maxLZ4Ratio is the largest expansion an LZ4 block can encode.
const maxLZ4Ratio = 255

var errIncompressible = errors.New("payload is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cas: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxEntrySize))
	if err != nil {
		panic("cas: zstd decoder initialization failed: " + err.Error())
	}
}

// seal wraps raw in an envelope. Payloads that do not shrink are stored uncompressed.
func seal(version uint16, c Compression, raw []byte) []byte {
	payload, tag := raw, CompressionNone
	if c != CompressionNone && len(raw) >= minCompressSize {
		if compressed, err := compress(c, raw); err == nil {
			payload, tag = compressed, c
		}
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out, magic)
	binary.BigEndian.PutUint16(out[4:], version)
	out[6] = byte(tag)
	binary.BigEndian.PutUint32(out[7:], uint32(len(raw))) //nolint:gosec // blobs are far below 4 GiB
	return append(out, payload...)
}

// open unwraps an envelope written for version.
func open(version uint16, data []byte) ([]byte, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], magic) {
		return nil, zerr.Wrap(domain.ErrCacheCorrupt, "bad envelope header")
	}
	if got := binary.BigEndian.Uint16(data[4:]); got != version {
		return nil, zerr.With(zerr.With(domain.ErrCacheVersionMismatch, "want", version), "got", got)
	}
	tag := Compression(data[6])
	size := int(binary.BigEndian.Uint32(data[7:]))
	payload := data[headerSize:]
	// The length is read from disk; check it before sizing any buffer.
	if size > maxEntrySize {
		return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorrupt, "implausible payload length"), "size", size)
	}

	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, zerr.Wrap(domain.ErrCacheCorrupt, "payload length mismatch")
		}
		return payload, nil
	case CompressionLZ4:
		if size > len(payload)*maxLZ4Ratio {
			return nil, zerr.With(zerr.Wrap(domain.ErrCacheCorrupt, "implausible payload length"), "size", size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil || n != size {
			return nil, zerr.Wrap(domain.ErrCacheCorrupt, "lz4 payload")
		}
		return out, nil
	case CompressionZstd:
		// The frame grows the buffer as needed; only a bounded guess is preallocated.
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, min(size, 4*len(payload))))
		if err != nil || len(out) != size {
			return nil, zerr.Wrap(domain.ErrCacheCorrupt, "zstd payload")
		}
		return out, nil
	default:
		return nil, zerr.With(domain.ErrCacheCorrupt, "compression", int(tag))
	}
}

func compress(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(raw) {
			return nil, errIncompressible
		}
		return dst[:n], nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(raw, nil)
		if len(out) >= len(raw) {
			return nil, errIncompressible
		}
		return out, nil
	default:
		return raw, nil
	}
}
