package subwire

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// BaseReadTimeout is the idle read timeout for a request without a range offset.
	BaseReadTimeout = 10 * time.Second
	// PerOffsetByteTimeout is added per byte of range offset. Resuming deep
	// into a transcoded stream makes the server pre-roll before bytes flow.
	PerOffsetByteTimeout = 5 * time.Nanosecond
)

const bytesUnitPrefix = "bytes="

type readTimeoutKey struct{}

// ContextWithReadTimeout returns a context carrying a per-call idle read timeout that
// overrides the client default for requests made with it.
func ContextWithReadTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, readTimeoutKey{}, d)
}

func readTimeoutFromContext(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(readTimeoutKey{}).(time.Duration)
	return d, ok && d > 0
}

// ReadTimeoutForOffset returns base + offset*perByte. It never decreases as offset grows.
func ReadTimeoutForOffset(offset int64, base, perByte time.Duration) time.Duration {
	if offset <= 0 {
		return base
	}
	return base + time.Duration(offset)*perByte
}

// NormalizeRange rewrites a relaxed range header (a bare offset under any
// header-name casing) into "Range: bytes=<offset>-". It returns the offset
// and true when a range with a start offset is present. Values already in
// "bytes=" form are left as they are.
func NormalizeRange(h http.Header) (int64, bool) {
	var rawKey, value string
	for k, v := range h {
		if strings.EqualFold(k, "Range") && len(v) > 0 {
			rawKey, value = k, strings.TrimSpace(v[0])
			break
		}
	}
	if rawKey == "" {
		return 0, false
	}

	if strings.HasPrefix(strings.ToLower(value), bytesUnitPrefix) {
		if rawKey != "Range" {
			delete(h, rawKey)
			h.Set("Range", value)
		}
		start, _, _ := strings.Cut(value[len(bytesUnitPrefix):], "-")
		offset, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
		if err != nil || offset < 0 {
			return 0, false
		}
		return offset, true
	}

	offset, err := strconv.ParseInt(value, 10, 64)
	if err != nil || offset < 0 {
		return 0, false
	}
	delete(h, rawKey)
	h.Set("Range", bytesUnitPrefix+strconv.FormatInt(offset, 10)+"-")
	return offset, true
}

// RangeMiddleware normalizes range headers and attaches an offset-scaled read
// timeout to the request's context.
func RangeMiddleware(base, perByte time.Duration) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		if !hasRangeHeader(req.Header) {
			return next.RoundTrip(req)
		}
		out := req.Clone(req.Context())
		offset, ok := NormalizeRange(out.Header)
		if ok {
			out = out.WithContext(ContextWithReadTimeout(out.Context(), ReadTimeoutForOffset(offset, base, perByte)))
		}
		return next.RoundTrip(out)
	}
}

func hasRangeHeader(h http.Header) bool {
	for k := range h {
		if strings.EqualFold(k, "Range") {
			return true
		}
	}
	return false
}

// readTimeoutMiddleware cancels a request when no bytes arrive for the
// context's read timeout, or fallback when none is set. The timer is re-armed
// after every body read.
func readTimeoutMiddleware(fallback time.Duration) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		timeout, ok := readTimeoutFromContext(req.Context())
		if !ok {
			timeout = fallback
		}
		if timeout <= 0 {
			return next.RoundTrip(req)
		}

		ctx, cancel := context.WithCancelCause(req.Context())
		timer := time.AfterFunc(timeout, func() { cancel(ErrReadTimeout) })

		resp, err := next.RoundTrip(req.WithContext(ctx))
		if err != nil {
			timer.Stop()
			if errors.Is(context.Cause(ctx), ErrReadTimeout) {
				err = ErrReadTimeout
			}
			cancel(nil)
			return nil, err
		}
		if resp.Body == nil {
			timer.Stop()
			cancel(nil)
			return resp, nil
		}
		timer.Reset(timeout)
		resp.Body = &idleTimeoutBody{rc: resp.Body, ctx: ctx, timer: timer, timeout: timeout, cancel: cancel}
		return resp, nil
	}
}

type idleTimeoutBody struct {
	rc      io.ReadCloser
	ctx     context.Context
	timer   *time.Timer
	timeout time.Duration
	cancel  context.CancelCauseFunc
	once    sync.Once
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && errors.Is(context.Cause(b.ctx), ErrReadTimeout) {
		return n, ErrReadTimeout
	}
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	err := b.rc.Close()
	b.once.Do(func() {
		b.timer.Stop()
		b.cancel(nil)
	})
	return err
}
