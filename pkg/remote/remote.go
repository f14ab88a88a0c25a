// Package remote defines the contract between the streaming core and the
// service that actually holds object bytes.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrFetchFailed    = errors.New("remote fetch failed")
)

// Handle is the opaque numeric reference to a stored object.
type Handle int64

// LocationID names the remote location (data center, bucket, origin host)
// that owns an object's bytes. Sessions are scoped to it.
type LocationID string

type Kind int

const (
	KindDocument Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "document"
	}
}

// KindOf classifies an object by its mime type.
func KindOf(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

// MediaRef describes one stored object. Locator is the backend specific file
// locator; it is resolved once at lookup time and handed back to every Fetch.
type MediaRef struct {
	Kind     Kind
	FileID   string
	FileName string
	Size     int64
	MimeType string
	Location LocationID
	Locator  any
}

// IsMedia reports whether the object can be played rather than downloaded.
func (m MediaRef) IsMedia() bool {
	return strings.HasPrefix(m.MimeType, "video") || strings.HasPrefix(m.MimeType, "audio")
}

// Candidate is one possibly-absent media variant of a stored message.
type Candidate struct {
	Kind    Kind
	Present bool
	Ref     MediaRef
}

// FirstPresent picks the first present variant in the given order, which
// callers pass as document, video, audio.
func FirstPresent(candidates ...Candidate) (MediaRef, bool) {
	for _, c := range candidates {
		if c.Present {
			ref := c.Ref
			ref.Kind = c.Kind
			return ref, true
		}
	}
	return MediaRef{}, false
}

// Client is one authenticated backend connection.
type Client interface {
	// Lookup resolves a handle to its metadata. ErrObjectNotFound is returned
	// when the handle no longer resolves.
	Lookup(ctx context.Context, h Handle) (MediaRef, error)
	// OpenSession performs whatever handshake is needed to read bytes held at
	// loc using this client's credentials.
	OpenSession(ctx context.Context, loc LocationID) (Session, error)
}

// Session reads chunks of objects held at a single location.
type Session interface {
	// Fetch returns up to limit bytes starting at offset. An empty slice with
	// a nil error signals end of data.
	Fetch(ctx context.Context, ref MediaRef, offset int64, limit int64) ([]byte, error)
}

// StatusError carries a status code returned by a backend.
type StatusError struct {
	StatusCode int
}

var _ error = StatusError{}

func (e StatusError) Error() string {
	return fmt.Sprintf("status code %d", e.StatusCode)
}
