package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero5yt/StreamixBot2.0/pkg/chunk"
	"github.com/zero5yt/StreamixBot2.0/pkg/linkstore"
	"github.com/zero5yt/StreamixBot2.0/pkg/pool"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
	"github.com/zero5yt/StreamixBot2.0/pkg/server"
	"github.com/zero5yt/StreamixBot2.0/pkg/session"
	"github.com/zero5yt/StreamixBot2.0/pkg/stream"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

const baseURL = "http://streamix.test"

type object struct {
	name     string
	mimeType string
	data     []byte
}

// fakeRemote serves objects from memory. Fetches at or past failAt fail.
type fakeRemote struct {
	objects map[remote.Handle]object
	failAt  int64
	fetches atomic.Int32
}

func (f *fakeRemote) Lookup(_ context.Context, h remote.Handle) (remote.MediaRef, error) {
	obj, ok := f.objects[h]
	if !ok {
		return remote.MediaRef{}, fmt.Errorf("%w: %d", remote.ErrObjectNotFound, h)
	}
	return remote.MediaRef{
		Kind:     remote.KindOf(obj.mimeType),
		FileID:   fmt.Sprint(h),
		FileName: obj.name,
		Size:     int64(len(obj.data)),
		MimeType: obj.mimeType,
		Location: "dc1",
		Locator:  h,
	}, nil
}

func (f *fakeRemote) OpenSession(context.Context, remote.LocationID) (remote.Session, error) {
	return f, nil
}

func (f *fakeRemote) Fetch(_ context.Context, ref remote.MediaRef, offset, limit int64) ([]byte, error) {
	f.fetches.Add(1)
	if f.failAt > 0 && offset >= f.failAt {
		return nil, fmt.Errorf("fetch at %d: connection reset", offset)
	}
	data := f.objects[ref.Locator.(remote.Handle)].data
	if offset >= int64(len(data)) {
		return nil, nil
	}
	return data[offset:min(offset+limit, int64(len(data)))], nil
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

type fixture struct {
	remote *fakeRemote
	pool   *pool.Pool
	links  *linkstore.MemoryStore
	url    string
}

func newFixture(t *testing.T, withConn bool) *fixture {
	t.Helper()
	f := &fixture{
		remote: &fakeRemote{objects: map[remote.Handle]object{
			42: {name: "Big.Buck.Bunny.2008.1080p.mkv", mimeType: "video/x-matroska", data: randomBytes(3_000_000)},
			7:  {name: `My "Notes".txt`, mimeType: "", data: randomBytes(500)},
			9:  {name: "empty.bin", mimeType: "application/octet-stream", data: nil},
		}},
		pool:  pool.New(),
		links: linkstore.NewMemoryStore(),
	}
	if withConn {
		_, err := f.pool.Register(0, "fake", f.remote)
		require.NoError(t, err)
	}
	srv := server.New(f.pool, f.links, stream.New(session.NewCache()), &server.Options{
		BaseURL:   baseURL,
		ChunkSize: chunk.DefaultSize,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	f.url = ts.URL
	return f
}

func (f *fixture) do(t *testing.T, method, path, rangeHeader string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.url+path, nil)
	require.NoError(t, err)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestDownloadRange(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/dl/42/whatever.mkv", "bytes=1000000-2999999")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 1000000-2999999/3000000", resp.Header.Get("Content-Range"))
	assert.Equal(t, "2000000", resp.Header.Get("Content-Length"))
	assert.Equal(t, "video/x-matroska", resp.Header.Get("Content-Type"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, `inline; filename="Big.Buck.Bunny.2008.1080p.mkv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, f.remote.objects[42].data[1000000:3000000], body)
	assert.Equal(t, int32(3), f.remote.fetches.Load())
}

func TestDownloadOpenEndedRange(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/dl/42/x", "bytes=2500000-")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 2500000-2999999/3000000", resp.Header.Get("Content-Range"))
	assert.Equal(t, f.remote.objects[42].data[2500000:], body)
}

func TestDownloadWholeObject(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/dl/7/notes.txt", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "500", resp.Header.Get("Content-Length"))
	assert.Empty(t, resp.Header.Get("Content-Range"))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, `inline; filename="My Notes.txt"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, f.remote.objects[7].data, body)
}

func TestDownloadEmptyObject(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodGet, "/dl/9/empty.bin", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("Content-Length"))
	assert.Empty(t, body)
	assert.Equal(t, int32(0), f.remote.fetches.Load())
}

func TestDownloadUnsatisfiable(t *testing.T) {
	for _, header := range []string{"bytes=0-3000000", "bytes=3000000-", "bytes=-100", "bytes=abc", "bytes=10-5"} {
		t.Run(header, func(t *testing.T) {
			f := newFixture(t, true)
			resp, body := f.do(t, http.MethodGet, "/dl/42/x", header)

			assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
			assert.Equal(t, "bytes */3000000", resp.Header.Get("Content-Range"))
			assert.Empty(t, body)
			assert.Equal(t, int32(0), f.remote.fetches.Load())
		})
	}
}

func TestDownloadNotFound(t *testing.T) {
	f := newFixture(t, true)

	resp, _ := f.do(t, http.MethodGet, "/dl/1234/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/dl/notanumber/x", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadNoConnections(t *testing.T) {
	f := newFixture(t, false)
	resp, _ := f.do(t, http.MethodGet, "/dl/42/x", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f = newFixture(t, true)
	f.pool.Close()
	resp, _ = f.do(t, http.MethodGet, "/dl/42/x", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDownloadHead(t *testing.T) {
	f := newFixture(t, true)
	resp, body := f.do(t, http.MethodHead, "/dl/42/x", "bytes=0-99")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes 0-99/3000000", resp.Header.Get("Content-Range"))
	assert.Empty(t, body)
	assert.Equal(t, int32(0), f.remote.fetches.Load())
}

func TestDownloadAbortedMidStream(t *testing.T) {
	f := newFixture(t, true)
	f.remote.failAt = chunk.DefaultSize

	resp, err := http.Get(f.url + "/dl/42/x")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3000000", resp.Header.Get("Content-Length"))

	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err, "truncated body must surface as a read error")
	assert.Less(t, len(body), 3_000_000)

	assert.Eventually(t, func() bool {
		load, err := f.pool.LoadOf(0)
		return err == nil && load == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentDownloadsReleaseLoad(t *testing.T) {
	f := newFixture(t, true)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			start := i * 100_000
			resp, err := http.Get(f.url + "/dl/42/x")
			if err != nil {
				return
			}
			defer resp.Body.Close()
			// half of the clients hang up early
			if i%2 == 0 {
				io.CopyN(io.Discard, resp.Body, int64(start+1))
				return
			}
			io.Copy(io.Discard, resp.Body)
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Eventually(t, func() bool {
		load, err := f.pool.LoadOf(0)
		return err == nil && load == 0
	}, 5*time.Second, 10*time.Millisecond)
}

// slowLookup delays metadata lookups and counts them, so concurrent
// requests overlap while their connection is being chosen.
type slowLookup struct {
	*fakeRemote
	delay   time.Duration
	lookups atomic.Int32
}

func (s *slowLookup) Lookup(ctx context.Context, h remote.Handle) (remote.MediaRef, error) {
	s.lookups.Add(1)
	time.Sleep(s.delay)
	return s.fakeRemote.Lookup(ctx, h)
}

func TestConcurrentDownloadsSpreadAcrossConnections(t *testing.T) {
	f := newFixture(t, false)
	conns := []*slowLookup{
		{fakeRemote: f.remote, delay: 100 * time.Millisecond},
		{fakeRemote: f.remote, delay: 100 * time.Millisecond},
	}
	for id, c := range conns {
		_, err := f.pool.Register(id, fmt.Sprintf("slow-%d", id), c)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			resp, err := http.Get(f.url + "/dl/7/notes.txt")
			if err != nil {
				return
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	first, second := conns[0].lookups.Load(), conns[1].lookups.Load()
	assert.Equal(t, int32(10), first+second)
	assert.GreaterOrEqual(t, first, int32(3))
	assert.GreaterOrEqual(t, second, int32(3))
	assert.Eventually(t, func() bool {
		l0, _ := f.pool.LoadOf(0)
		l1, _ := f.pool.LoadOf(1)
		return l0 == 0 && l1 == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)

	resp, body := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","message":"Server is healthy and running!"}`, string(body))

	resp, body = f.do(t, http.MethodHead, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestFileInfo(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.links.Save(context.Background(), "abcDEF123_-", remote.Handle(42)))

	resp, body := f.do(t, http.MethodGet, "/api/file/abcDEF123_-", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var info server.FileInfo
	require.NoError(t, json.Unmarshal(body, &info))
	link := baseURL + "/dl/42/Big.Buck.Bunny.2008.1080p.mkv"
	assert.Equal(t, server.FileInfo{
		FileName:      "B**.**c*.B**n* 2008.1080p.mkv",
		FileSize:      "2.86 MB",
		IsMedia:       true,
		DirectDLLink:  link,
		MXPlayerLink:  "intent:" + link + "#Intent;action=android.intent.action.VIEW;type=video/x-matroska;end",
		VLCPlayerLink: "intent:" + link + "#Intent;action=android.intent.action.VIEW;type=video/x-matroska;package=org.videolan.vlc;end",
	}, info)
}

func TestFileInfoErrors(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.links.Save(context.Background(), "gone", remote.Handle(999)))

	resp, body := f.do(t, http.MethodGet, "/api/file/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"Not Found"}`, string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/file/gone", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f = newFixture(t, false)
	require.NoError(t, f.links.Save(context.Background(), "abc", remote.Handle(42)))
	resp, _ = f.do(t, http.MethodGet, "/api/file/abc", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShowPage(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.links.Save(context.Background(), "abc", remote.Handle(42)))

	resp, body := f.do(t, http.MethodGet, "/show/abc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(body)
	assert.Contains(t, page, "B**.**c*.B**n* 2008.1080p.mkv")
	assert.Contains(t, page, "2.86 MB")
	assert.Contains(t, page, `href="`+baseURL+`/dl/42/Big.Buck.Bunny.2008.1080p.mkv"`)
	assert.Contains(t, page, "intent:"+baseURL+"/dl/42/")
	assert.NotContains(t, page, "ZgotmplZ")

	resp, _ = f.do(t, http.MethodGet, "/show/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/dl/7/x", "")

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "streamix_http_requests_total")
	assert.Contains(t, string(body), "streamix_stream_bytes_total")
}
