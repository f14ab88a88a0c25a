package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zero5yt/StreamixBot2.0/pkg/chunk"
	"github.com/zero5yt/StreamixBot2.0/pkg/display"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

const defaultContentType = "application/octet-stream"

// handleDownload streams an object, honouring a single byte range. The file
// name in the path is cosmetic.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle, err := strconv.ParseInt(chi.URLParam(r, "messageId"), 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: bad message id", remote.ErrObjectNotFound))
		return
	}

	// the stream takes release over once opened; the deferred call is then a no-op
	conn, release, err := s.pool.AcquireLeastLoaded()
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()
	ref, err := conn.Client.Lookup(ctx, remote.Handle(handle))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rng, err := parseRange(r.Header.Get("Range"), ref.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", ref.Size))
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if rng.partial {
		status = http.StatusPartialContent
	}

	contentType := ref.MimeType
	if contentType == "" {
		contentType = defaultContentType
	}
	length := max(rng.length(), 0)
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, display.SafeFilename(ref.FileName)))
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	if rng.partial {
		h.Set("Content-Range", rng.contentRange(ref.Size))
	}

	if r.Method == http.MethodHead || length == 0 {
		w.WriteHeader(status)
		return
	}

	plan := chunk.NewPlan(rng.start, rng.end, s.opts.ChunkSize)
	st, err := s.streamer.OpenHeld(ctx, conn, release, ref, plan)
	if err != nil {
		h.Del("Content-Length")
		h.Del("Content-Range")
		writeError(w, r, err)
		return
	}
	defer st.Close()

	logger := logging.ForConn(conn.ID, conn.Name)
	logger.Debug().
		Int64("handle", handle).
		Int64("from", rng.start).
		Int64("until", rng.end).
		Int("parts", plan.Count).
		Msg("Streaming")

	w.WriteHeader(status)
	var written int64
	for {
		b, err := st.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && ctx.Err() != nil {
			logger.Debug().Err(err).Int64("handle", handle).Msg("Client went away")
			return
		}
		if err != nil {
			// headers are gone; all that is left is to drop the connection
			logger.Error().Err(err).Int64("handle", handle).Int64("written", written).Msg("Stream aborted")
			panic(http.ErrAbortHandler)
		}
		n, err := w.Write(b)
		written += int64(n)
		metrics.RecordStreamBytes(n)
		if err != nil {
			logger.Debug().Err(err).Int64("handle", handle).Msg("Client went away")
			return
		}
	}
	if written < length {
		logger.Warn().
			Int64("handle", handle).
			Int64("written", written).
			Int64("expected", length).
			Msg("Remote object ended early")
		panic(http.ErrAbortHandler)
	}
}
