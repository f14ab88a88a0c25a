// Package blobstore serves objects kept in any gocloud.dev bucket. The
// handle is the object key; the display name comes from the "filename"
// metadata entry.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strconv"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
	"gocloud.dev/gcerrors"

	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

const FilenameMetadataKey = "filename"

type Client struct {
	bucket   *blob.Bucket
	location remote.LocationID
	shared   bool
}

var (
	_ remote.Client  = &Client{}
	_ remote.Session = &session{}
)

// New opens bucketURL for lookups. Every session opens the bucket again so
// that each gets its own underlying connections.
func New(ctx context.Context, bucketURL string) (*Client, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("opening bucket: %w", err)
	}
	return &Client{bucket: bucket, location: remote.LocationID(bucketURL)}, nil
}

// Wrap serves an already open bucket. Sessions share it and never close it.
func Wrap(bucket *blob.Bucket, loc remote.LocationID) *Client {
	return &Client{bucket: bucket, location: loc, shared: true}
}

func (c *Client) Lookup(ctx context.Context, h remote.Handle) (remote.MediaRef, error) {
	key := strconv.FormatInt(int64(h), 10)
	attrs, err := c.bucket.Attributes(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
	}
	if err != nil {
		return remote.MediaRef{}, fmt.Errorf("reading attributes of %s: %w", key, err)
	}

	mimeType := attrs.ContentType
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	name := attrs.Metadata[FilenameMetadataKey]
	if name == "" {
		name = key
	}
	fileID := attrs.ETag
	if fileID == "" {
		fileID = key
	}
	return remote.MediaRef{
		Kind:     remote.KindOf(mimeType),
		FileID:   fileID,
		FileName: name,
		Size:     attrs.Size,
		MimeType: mimeType,
		Location: c.location,
		Locator:  key,
	}, nil
}

func (c *Client) OpenSession(ctx context.Context, loc remote.LocationID) (remote.Session, error) {
	if loc != c.location {
		return nil, fmt.Errorf("location %q is not served by bucket %q", loc, c.location)
	}
	if c.shared {
		return &session{bucket: c.bucket}, nil
	}
	bucket, err := blob.OpenBucket(ctx, string(loc))
	if err != nil {
		return nil, fmt.Errorf("opening bucket session: %w", err)
	}
	return &session{bucket: bucket, owned: true}, nil
}

// Close releases the lookup bucket.
func (c *Client) Close() error {
	if c.shared {
		return nil
	}
	return c.bucket.Close()
}

type session struct {
	bucket *blob.Bucket
	owned  bool
}

func (s *session) Fetch(ctx context.Context, ref remote.MediaRef, offset, limit int64) ([]byte, error) {
	key, ok := ref.Locator.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected locator %T for bucket", ref.Locator)
	}
	if offset >= ref.Size {
		return nil, nil
	}
	length := min(limit, ref.Size-offset)
	r, err := s.bucket.NewRangeReader(ctx, key, offset, length, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", remote.ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s at %d: %w", key, offset, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s at %d: %w", key, offset, err)
	}
	return data, nil
}

// Close is called by the session cache on shutdown.
func (s *session) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}
