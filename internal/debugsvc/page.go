package debugsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/interceptor"
	"github.com/shieldkit/webshield/internal/page"
)

// Interceptor is the part of the request interceptor used by the debug API.
type Interceptor interface {
	// Intercept returns the decision for req.
	Intercept(ctx context.Context, req *filter.Request) (d *interceptor.Decision)

	// Stats returns the statistics of the page.
	Stats(pageID string) (s page.Stats, ok bool)

	// ReportFingerprinting records a fingerprinting attempt on the page.
	ReportFingerprinting(ctx context.Context, pageID string)

	// ClosePage removes the page.
	ClosePage(pageID string)

	// SetBypass sets the global bypass switch.
	SetBypass(bypass bool)
}

// type check
var _ Interceptor = (*interceptor.Interceptor)(nil)

// pageHandler serves the page and request checking API.
type pageHandler struct {
	interceptor Interceptor
}

// serveStats handles GET /debug/api/stats/{page}.
func (h *pageHandler) serveStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, ok := h.interceptor.Stats(r.PathValue(pathValuePage))
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)

		return
	}

	writeJSON(ctx, slogutil.MustLoggerFromContext(ctx), w, s)
}

// serveFingerprinting handles POST /debug/api/pages/{page}/fingerprinting.
func (h *pageHandler) serveFingerprinting(w http.ResponseWriter, r *http.Request) {
	h.interceptor.ReportFingerprinting(r.Context(), r.PathValue(pathValuePage))

	w.WriteHeader(http.StatusNoContent)
}

// serveClose handles DELETE /debug/api/pages/{page}.
func (h *pageHandler) serveClose(w http.ResponseWriter, r *http.Request) {
	h.interceptor.ClosePage(r.PathValue(pathValuePage))

	w.WriteHeader(http.StatusNoContent)
}

// bypassRequest describes the request to the PUT /debug/api/bypass HTTP API.
type bypassRequest struct {
	Enabled bool `json:"enabled"`
}

// serveBypass handles PUT /debug/api/bypass.
func (h *pageHandler) serveBypass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)

	req := &bypassRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		l.ErrorContext(ctx, "decoding request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	h.interceptor.SetBypass(req.Enabled)
	l.InfoContext(ctx, "bypass set", "enabled", req.Enabled)

	w.WriteHeader(http.StatusNoContent)
}

// checkRequest describes the request to the POST /debug/api/check HTTP API.
type checkRequest struct {
	URL         string `json:"url"`
	DocumentURL string `json:"document_url"`
	Accept      string `json:"accept"`
	PageID      string `json:"page_id"`
	IsDocument  bool   `json:"is_document"`
}

// toFilterRequest validates req and converts it into a request descriptor.
func (req *checkRequest) toFilterRequest() (fr *filter.Request, err error) {
	if req.URL == "" {
		return nil, errors.Error("url: empty value")
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("url: %w", err)
	}

	fr = &filter.Request{
		URL:        u,
		Header:     http.Header{},
		Method:     http.MethodGet,
		PageID:     req.PageID,
		IsDocument: req.IsDocument,
	}

	if req.Accept != "" {
		fr.Header.Set(httphdr.Accept, req.Accept)
	}

	if req.DocumentURL != "" {
		fr.DocumentURL, err = url.Parse(req.DocumentURL)
		if err != nil {
			return nil, fmt.Errorf("document_url: %w", err)
		}
	}

	return fr, nil
}

// checkResponse describes the response to the POST /debug/api/check HTTP API.
type checkResponse struct {
	Action       string `json:"action"`
	URL          string `json:"url,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	FollowUp     string `json:"follow_up,omitempty"`
	StripScripts bool   `json:"strip_scripts"`
}

// serveCheck handles POST /debug/api/check.
func (h *pageHandler) serveCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)

	req := &checkRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		l.ErrorContext(ctx, "decoding request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	fr, err := req.toFilterRequest()
	if err != nil {
		l.ErrorContext(ctx, "validating request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	d := h.interceptor.Intercept(ctx, fr)

	resp := &checkResponse{
		Action:       d.Action.String(),
		ContentType:  d.ContentType,
		StripScripts: d.StripScripts,
	}

	if d.URL != nil {
		resp.URL = d.URL.String()
	}

	if fr.FollowUp != nil {
		resp.FollowUp = fr.FollowUp.String()
	}

	writeJSON(ctx, l, w, resp)
}
