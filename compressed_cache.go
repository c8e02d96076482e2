package subwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CacheCodec identifies how a stored body was compressed. The value is
// written as the first byte of every stored body.
type CacheCodec uint8

const (
	// CodecNone stores the body as-is. Used automatically for bodies that
	// do not shrink, such as cover art.
	CodecNone CacheCodec = 0
	// CodecLZ4 is block-mode LZ4: fast, modest ratio.
	CodecLZ4 CacheCodec = 1
	// CodecZstd is zstd at the default level. Better ratio on JSON.
	CodecZstd CacheCodec = 2
)

// maxStoredBodySize bounds the size recorded in a stored header, so a corrupt
// entry cannot trigger a huge allocation.
const maxStoredBodySize = 1 << 30

var errIncompressible = errors.New("body is incompressible")

func (c CacheCodec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCacheCodec parses "none", "lz4" or "zstd".
func ParseCacheCodec(name string) (CacheCodec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("unknown cache codec: %q", name)
	}
}

// CompressedCache stores entry bodies compressed in an inner Cache.
// JSON payloads compress well, which keeps a long stale ceiling affordable.
type CompressedCache struct {
	inner Cache
	codec CacheCodec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCompressedCache wraps inner using zstd.
func NewCompressedCache(inner Cache) (*CompressedCache, error) {
	return NewCompressedCacheWithCodec(inner, CodecZstd)
}

// NewCompressedCacheWithCodec wraps inner using codec for new entries.
// Entries written with any codec can be read back.
func NewCompressedCacheWithCodec(inner Cache, codec CacheCodec) (*CompressedCache, error) {
	switch codec {
	case CodecNone, CodecLZ4, CodecZstd:
	default:
		return nil, fmt.Errorf("unsupported cache codec: %s", codec)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &CompressedCache{inner: inner, codec: codec, enc: enc, dec: dec}, nil
}

// Codec returns the codec used for new entries.
func (c *CompressedCache) Codec() CacheCodec { return c.codec }

// Get returns a copy of the stored entry with its body decompressed. Entries
// that fail to decompress are dropped and reported as misses.
func (c *CompressedCache) Get(key string) (*CacheEntry, bool) {
	stored, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	body, err := c.decode(stored.Body)
	if err != nil {
		c.inner.Delete(key)
		return nil, false
	}
	out := *stored
	out.Body = body
	return &out, true
}

// Set compresses entry's body into a copy before storing it. ExpiresAt is
// mirrored back onto entry.
func (c *CompressedCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	stored := *entry
	stored.Body = c.encode(entry.Body)
	c.inner.Set(key, &stored, ttl)
	entry.ExpiresAt = stored.ExpiresAt
}

func (c *CompressedCache) Delete(key string) { c.inner.Delete(key) }

func (c *CompressedCache) Clear() { c.inner.Clear() }

// Close releases the codec resources.
func (c *CompressedCache) Close() {
	c.enc.Close()
	c.dec.Close()
}

// encode frames body as: codec byte, uvarint uncompressed size, payload.
func (c *CompressedCache) encode(body []byte) []byte {
	codec := c.codec
	var payload []byte
	var err error
	switch codec {
	case CodecLZ4:
		payload, err = compressLZ4(body)
	case CodecZstd:
		payload = c.enc.EncodeAll(body, make([]byte, 0, len(body)/2))
		if len(payload) >= len(body) {
			err = errIncompressible
		}
	}
	if codec == CodecNone || err != nil {
		codec, payload = CodecNone, body
	}

	out := make([]byte, 1+binary.MaxVarintLen64, 1+binary.MaxVarintLen64+len(payload))
	out[0] = byte(codec)
	n := binary.PutUvarint(out[1:], uint64(len(body)))
	out = append(out[:1+n], payload...)
	return out
}

func (c *CompressedCache) decode(stored []byte) ([]byte, error) {
	if len(stored) < 2 {
		return nil, fmt.Errorf("stored body too short")
	}
	size, n := binary.Uvarint(stored[1:])
	if n <= 0 || size > maxStoredBodySize {
		return nil, fmt.Errorf("stored body has invalid size header")
	}
	payload := stored[1+n:]
	want := int(size)

	switch CacheCodec(stored[0]) {
	case CodecNone:
		if len(payload) != want {
			return nil, fmt.Errorf("stored body: size %d does not match expected %d", len(payload), want)
		}
		out := make([]byte, want)
		copy(out, payload)
		return out, nil
	case CodecLZ4:
		return decompressLZ4(payload, want)
	case CodecZstd:
		out, err := c.dec.DecodeAll(payload, make([]byte, 0, want))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != want {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), want)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec tag %d", stored[0])
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// Zero means the block did not compress.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
