package subwire

import (
	"bytes"
	"crypto/rand"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestCompressedCacheRoundTrip(t *testing.T) {
	inner := NewInMemoryCache()
	cache, err := NewCompressedCache(inner)
	if err != nil {
		t.Fatalf("NewCompressedCache: %v", err)
	}
	defer cache.Close()

	body := []byte(`{"subsonic-response":{"status":"ok","version":"1.16.0","artists":` + strings.Repeat(`{"id":"1","name":"artist"},`, 200) + `{}}}`)
	entry := &CacheEntry{Body: body, StatusCode: http.StatusOK, Header: http.Header{"Content-Type": {"application/json"}}}
	cache.Set("k", entry, time.Hour)

	if entry.ExpiresAt.IsZero() {
		t.Error("Expected ExpiresAt to be mirrored onto the caller's entry")
	}
	if !bytes.Equal(entry.Body, body) {
		t.Error("Expected caller's entry body to be left uncompressed")
	}

	stored, ok := inner.Get("k")
	if !ok {
		t.Fatal("Expected inner cache to hold the entry")
	}
	if len(stored.Body) >= len(body) {
		t.Errorf("Expected compressed body smaller than %d, got %d", len(body), len(stored.Body))
	}

	got, ok := cache.Get("k")
	if !ok {
		t.Fatal("Expected entry to be found")
	}
	if !bytes.Equal(got.Body, body) {
		t.Error("Expected decompressed body to match original")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Error("Expected header to be preserved")
	}
}

func TestCompressedCacheCorruptEntry(t *testing.T) {
	inner := NewInMemoryCache()
	cache, err := NewCompressedCache(inner)
	if err != nil {
		t.Fatalf("NewCompressedCache: %v", err)
	}
	defer cache.Close()

	inner.Set("bad", &CacheEntry{Body: []byte("not zstd"), StatusCode: http.StatusOK, Header: http.Header{}}, time.Hour)
	if _, ok := cache.Get("bad"); ok {
		t.Error("Expected corrupt entry to be a miss")
	}
	if _, ok := inner.Get("bad"); ok {
		t.Error("Expected corrupt entry to be dropped")
	}
}

func TestCompressedCacheDeleteClear(t *testing.T) {
	cache, err := NewCompressedCache(NewInMemoryCache())
	if err != nil {
		t.Fatalf("NewCompressedCache: %v", err)
	}
	defer cache.Close()

	cache.Set("a", &CacheEntry{Body: []byte("a"), Header: http.Header{}}, time.Hour)
	cache.Set("b", &CacheEntry{Body: []byte("b"), Header: http.Header{}}, time.Hour)
	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("Expected deleted entry to be gone")
	}
	cache.Clear()
	if _, ok := cache.Get("b"); ok {
		t.Error("Expected cleared entry to be gone")
	}
}

func TestCompressedCacheCodecs(t *testing.T) {
	body := []byte(strings.Repeat(`{"id":"42","title":"track","artist":"someone"},`, 100))

	for _, codec := range []CacheCodec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			inner := NewInMemoryCache()
			cache, err := NewCompressedCacheWithCodec(inner, codec)
			if err != nil {
				t.Fatalf("NewCompressedCacheWithCodec: %v", err)
			}
			defer cache.Close()

			cache.Set("k", &CacheEntry{Body: body, StatusCode: http.StatusOK, Header: http.Header{}}, time.Hour)

			stored, ok := inner.Get("k")
			if !ok {
				t.Fatal("Expected inner cache to hold the entry")
			}
			if CacheCodec(stored.Body[0]) != codec {
				t.Errorf("Expected codec tag %d, got %d", codec, stored.Body[0])
			}
			if codec != CodecNone && len(stored.Body) >= len(body) {
				t.Errorf("Expected compressed body smaller than %d, got %d", len(body), len(stored.Body))
			}

			got, ok := cache.Get("k")
			if !ok {
				t.Fatal("Expected entry to be found")
			}
			if !bytes.Equal(got.Body, body) {
				t.Error("Expected body to round-trip")
			}
		})
	}
}

func TestCompressedCacheReadsOtherCodecs(t *testing.T) {
	inner := NewInMemoryCache()
	lz, err := NewCompressedCacheWithCodec(inner, CodecLZ4)
	if err != nil {
		t.Fatal(err)
	}
	defer lz.Close()
	zs, err := NewCompressedCache(inner)
	if err != nil {
		t.Fatal(err)
	}
	defer zs.Close()

	body := []byte(strings.Repeat("subsonic ", 500))
	lz.Set("k", &CacheEntry{Body: body, Header: http.Header{}}, time.Hour)
	got, ok := zs.Get("k")
	if !ok || !bytes.Equal(got.Body, body) {
		t.Error("Expected zstd cache to read an lz4 entry")
	}
}

func TestCompressedCacheIncompressible(t *testing.T) {
	body := make([]byte, 4096)
	if _, err := rand.Read(body); err != nil {
		t.Fatal(err)
	}

	for _, codec := range []CacheCodec{CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			inner := NewInMemoryCache()
			cache, err := NewCompressedCacheWithCodec(inner, codec)
			if err != nil {
				t.Fatal(err)
			}
			defer cache.Close()

			cache.Set("art", &CacheEntry{Body: body, Header: http.Header{}}, time.Hour)
			stored, _ := inner.Get("art")
			if CacheCodec(stored.Body[0]) != CodecNone {
				t.Errorf("Expected random data stored uncompressed, got tag %d", stored.Body[0])
			}
			got, ok := cache.Get("art")
			if !ok || !bytes.Equal(got.Body, body) {
				t.Error("Expected body to round-trip")
			}
		})
	}
}

func TestCompressedCacheEmptyBody(t *testing.T) {
	cache, err := NewCompressedCacheWithCodec(NewInMemoryCache(), CodecLZ4)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	cache.Set("empty", &CacheEntry{Body: nil, Header: http.Header{}}, time.Hour)
	got, ok := cache.Get("empty")
	if !ok || len(got.Body) != 0 {
		t.Errorf("Expected empty body hit, got ok=%v len=%d", ok, len(got.Body))
	}
}

func TestParseCacheCodec(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		codec, err := ParseCacheCodec(name)
		if err != nil {
			t.Errorf("ParseCacheCodec(%q): %v", name, err)
		}
		if codec.String() != name {
			t.Errorf("Expected %q, got %q", name, codec.String())
		}
	}
	if _, err := ParseCacheCodec("gzip"); err == nil {
		t.Error("Expected error for unknown codec")
	}
	if _, err := NewCompressedCacheWithCodec(NewInMemoryCache(), CacheCodec(9)); err == nil {
		t.Error("Expected error for unsupported codec")
	}
}
