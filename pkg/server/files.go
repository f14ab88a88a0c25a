package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/zero5yt/StreamixBot2.0/pkg/display"
	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/remote"
)

//go:embed templates/*.html
var templateFS embed.FS

var showTemplate = template.Must(template.ParseFS(templateFS, "templates/show.html"))

// FileInfo is what the share page and its API show about a linked object.
type FileInfo struct {
	FileName      string `json:"file_name"`
	FileSize      string `json:"file_size"`
	IsMedia       bool   `json:"is_media"`
	DirectDLLink  string `json:"direct_dl_link"`
	MXPlayerLink  string `json:"mx_player_link"`
	VLCPlayerLink string `json:"vlc_player_link"`
}

// NewFileInfo builds the public description of ref stored under h.
func NewFileInfo(baseURL string, h remote.Handle, ref remote.MediaRef) FileInfo {
	name := ref.FileName
	if name == "" {
		name = "file"
	}
	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = defaultContentType
	}
	link := fmt.Sprintf("%s/dl/%d/%s", baseURL, h, url.PathEscape(display.SafeFilename(name)))
	return FileInfo{
		FileName:      display.MaskFilename(name),
		FileSize:      display.ReadableSize(ref.Size),
		IsMedia:       ref.IsMedia(),
		DirectDLLink:  link,
		MXPlayerLink:  fmt.Sprintf("intent:%s#Intent;action=android.intent.action.VIEW;type=%s;end", link, mimeType),
		VLCPlayerLink: fmt.Sprintf("intent:%s#Intent;action=android.intent.action.VIEW;type=%s;package=org.videolan.vlc;end", link, mimeType),
	}
}

type showPage struct {
	FileInfo
	MXPlayerURL  template.URL
	VLCPlayerURL template.URL
}

func (s *Server) resolveLink(ctx context.Context, id string) (FileInfo, error) {
	h, err := s.links.Get(ctx, id)
	if err != nil {
		return FileInfo{}, err
	}
	conn, release, err := s.pool.AcquireLeastLoaded()
	if err != nil {
		return FileInfo{}, err
	}
	defer release()
	ref, err := conn.Client.Lookup(ctx, h)
	if err != nil {
		return FileInfo{}, err
	}
	return NewFileInfo(s.opts.BaseURL, h, ref), nil
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.resolveLink(r.Context(), chi.URLParam(r, "uniqueId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	info, err := s.resolveLink(r.Context(), chi.URLParam(r, "uniqueId"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger := logging.GetLogger()
			logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	// intent: links are not in html/template's safe scheme list
	page := showPage{
		FileInfo:     info,
		MXPlayerURL:  template.URL(info.MXPlayerLink),
		VLCPlayerURL: template.URL(info.VLCPlayerLink),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := showTemplate.Execute(w, page); err != nil {
		logger := logging.GetLogger()
		logger.Error().Err(err).Msg("Error rendering show page")
	}
}
