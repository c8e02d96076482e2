package subwire

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ambiyansyah-risyal/subwire/internal/jsonscan"
)

// DefaultVersionPeekBytes bounds how much of a response body is inspected
// for the version field. The envelope's version sits near the top.
const DefaultVersionPeekBytes = 1024

// envelopeKey is the wrapper object the server puts every payload in.
const envelopeKey = "subsonic-response"

// VersionReader exposes the tracked version to request-side middleware.
type VersionReader interface {
	Current() ProtocolVersion
}

// VersionWriter accepts newly observed versions.
type VersionWriter interface {
	Set(ProtocolVersion) bool
}

// VersionTracker holds the protocol version negotiated for one client. Reads
// are lock-free; each write is a single atomic swap so a reader never sees a
// partial value. Concurrent writers are last-write-wins.
type VersionTracker struct {
	current  atomic.Pointer[ProtocolVersion]
	listener atomic.Pointer[VersionListener]
}

// NewVersionTracker creates a tracker seeded with initial.
func NewVersionTracker(initial ProtocolVersion) *VersionTracker {
	t := &VersionTracker{}
	t.current.Store(&initial)
	return t
}

// Current returns the most recently stored version.
func (t *VersionTracker) Current() ProtocolVersion {
	return *t.current.Load()
}

// OnChange registers fn as the single change listener, replacing any previous one.
// Passing nil removes it.
func (t *VersionTracker) OnChange(fn VersionListener) {
	if fn == nil {
		t.listener.Store(nil)
		return
	}
	t.listener.Store(&fn)
}

// Set stores v and reports whether it differs from the previous value. The
// listener runs synchronously, once, in the goroutine whose swap saw the change.
func (t *VersionTracker) Set(v ProtocolVersion) bool {
	prev := t.current.Swap(&v)
	if *prev == v {
		return false
	}
	if fn := t.listener.Load(); fn != nil {
		(*fn)(v)
	}
	return true
}

// Observe scans body for the version field and stores the closest known
// version it names. Bodies that are not JSON objects, are malformed before
// the field, or lack it leave the tracker untouched.
func (t *VersionTracker) Observe(body io.Reader) (ProtocolVersion, bool) {
	raw, ok := jsonscan.FindString(body, "version", envelopeKey)
	if !ok {
		return ProtocolVersion{}, false
	}
	v, err := ClosestKnownVersion(raw)
	if err != nil {
		return ProtocolVersion{}, false
	}
	t.Set(v)
	return v, true
}

// VersionObserverMiddleware peeks successful JSON responses and feeds them to
// tracker. The caller still receives the complete body.
func VersionObserverMiddleware(tracker *VersionTracker, peekLimit int) Middleware {
	if peekLimit <= 0 {
		peekLimit = DefaultVersionPeekBytes
	}
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		resp, err := next.RoundTrip(req)
		if err != nil || resp == nil || resp.Body == nil {
			return resp, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 || !isProtocolJSON(resp.Header.Get("Content-Type")) {
			return resp, nil
		}
		prefix := peekBody(resp, peekLimit)
		tracker.Observe(bytes.NewReader(prefix))
		return resp, nil
	}
}

type peekedBody struct {
	io.Reader
	io.Closer
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// peekBody reads up to limit bytes and replaces resp.Body with a reader that
// replays them before the rest of the stream.
func peekBody(resp *http.Response, limit int) []byte {
	buf := make([]byte, limit)
	n, err := io.ReadFull(resp.Body, buf)
	prefix := buf[:n]

	rest := io.Reader(resp.Body)
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		rest = eofReader{}
	default:
		rest = errReader{err: err}
	}
	resp.Body = peekedBody{
		Reader: io.MultiReader(bytes.NewReader(prefix), rest),
		Closer: resp.Body,
	}
	return prefix
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
