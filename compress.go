package cruxmod

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/crux-lang/cruxmod/format"
)

// The identifier pool is addressed by 31-bit byte offsets, so a declared
// decompressed size past that range is corrupt regardless of the payload.
const maxPoolBytes = format.MaxID

// ZSTD encoder/decoder pools for efficiency
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

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressPool compresses the identifier pool with the requested kind and
// returns the kind actually used: when compression does not shrink the data,
// the pool is stored as-is under CompressionNone.
func compressPool(data []byte, kind format.CompressionKind) (format.CompressionKind, []byte, error) {
	if kind == format.CompressionNone || len(data) == 0 {
		return format.CompressionNone, data, nil
	}

	var compressed []byte
	switch kind {
	case format.CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("cruxmod: lz4 compression: %w", err)
		}
		compressed = buf[:n]
	case format.CompressionZstd:
		enc := getZstdEncoder()
		defer putZstdEncoder(enc)
		compressed = enc.EncodeAll(data, nil)
	default:
		return 0, nil, fmt.Errorf("cruxmod: unknown compression kind %d", kind)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		return format.CompressionNone, data, nil
	}
	return kind, compressed, nil
}

// decompressPool undoes compressPool. rawSize is the recorded decompressed
// size; a mismatch after decompression means the container is corrupt.
func decompressPool(kind format.CompressionKind, rawSize uint64, blob []byte) ([]byte, error) {
	if rawSize > maxPoolBytes {
		return nil, fmt.Errorf("identifier pool size %d out of range", rawSize)
	}

	switch kind {
	case format.CompressionNone:
		if uint64(len(blob)) != rawSize {
			return nil, fmt.Errorf("identifier pool size %d disagrees with payload %d", rawSize, len(blob))
		}
		return blob, nil

	case format.CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(blob, out)
		if err != nil {
			return nil, fmt.Errorf("identifier pool lz4: %w", err)
		}
		if uint64(n) != rawSize {
			return nil, fmt.Errorf("identifier pool decompressed to %d bytes, expected %d", n, rawSize)
		}
		return out, nil

	case format.CompressionZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(blob, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("identifier pool zstd: %w", err)
		}
		if uint64(len(out)) != rawSize {
			return nil, fmt.Errorf("identifier pool decompressed to %d bytes, expected %d", len(out), rawSize)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown identifier pool compression %d", kind)
}
