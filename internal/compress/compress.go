// Package compress implements the block compression used for checkpoint
// bodies.
//
// A block is [UncompressedSize u32][CompressedSize u32][Data...], little
// endian. CompressedSize == 0 means Data is stored raw, which is also what
// happens when compression does not pay off.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores blocks uncompressed.
	None Type = 0
	// LZ4 uses LZ4 block compression (fast).
	LZ4 Type = 1
	// ZSTD uses Zstandard (better ratio).
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses a compression name as produced by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q (valid: none, lz4, zstd)", s)
	}
}

const headerSize = 8

// MaxBlockSize bounds the uncompressed size of a block. Decompress checks
// the header against it before allocating.
const MaxBlockSize = 64 << 20

var (
	// ErrCorruptBlock is returned when a block header does not match its data.
	ErrCorruptBlock = errors.New("corrupt compressed block")

	// ErrUnknownType is returned for an unsupported compression type.
	ErrUnknownType = errors.New("unknown compression type")
)

// Pooled zstd coders.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBlockSize))
	return dec
}

// Compress returns data as a block compressed with t.
func Compress(data []byte, t Type) ([]byte, error) {
	if len(data) > MaxBlockSize {
		return nil, fmt.Errorf("block too large: %d bytes (limit %d)", len(data), MaxBlockSize)
	}

	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}

	// Store raw when compression saves less than 10%.
	if len(compressed) == 0 || len(compressed) > len(data)-len(data)/10 {
		return frame(len(data), 0, data), nil
	}
	return frame(len(data), len(compressed), compressed), nil
}

func frame(uncompressed, compressed int, payload []byte) []byte {
	block := make([]byte, 0, headerSize+len(payload))
	block = binary.LittleEndian.AppendUint32(block, uint32(uncompressed))
	block = binary.LittleEndian.AppendUint32(block, uint32(compressed))
	return append(block, payload...)
}

// Decompress reverses Compress. The block must be exactly one block.
func Decompress(block []byte, t Type) ([]byte, error) {
	if len(block) < headerSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorruptBlock)
	}

	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])
	payload := block[headerSize:]
	if uncompressedSize > MaxBlockSize {
		return nil, fmt.Errorf("%w: header claims %d bytes (limit %d)", ErrCorruptBlock, uncompressedSize, MaxBlockSize)
	}

	if compressedSize == 0 {
		if uint64(len(payload)) != uint64(uncompressedSize) {
			return nil, fmt.Errorf("%w: raw block is %d bytes, header says %d", ErrCorruptBlock, len(payload), uncompressedSize)
		}
		return payload, nil
	}
	if uint64(len(payload)) != uint64(compressedSize) {
		return nil, fmt.Errorf("%w: compressed block is %d bytes, header says %d", ErrCorruptBlock, len(payload), compressedSize)
	}

	result := make([]byte, uncompressedSize)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(payload, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return result, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(payload, result[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}
