package debugsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/ws"
)

// RefresherID is a type alias for strings that represent IDs of refreshers.
type RefresherID = string

// Refreshers is a type alias for maps of refresher IDs to Refreshers
// themselves.
type Refreshers map[RefresherID]ws.Refresher

// refreshHandler performs debug refreshes.
type refreshHandler struct {
	refrs Refreshers
}

// refreshRequest describes the request to the POST /debug/api/refresh HTTP API.
type refreshRequest struct {
	IDs []RefresherID `json:"ids"`
}

// refreshResponse describes the response to the POST /debug/api/refresh HTTP
// API.
type refreshResponse struct {
	Results map[RefresherID]string `json:"results"`
}

// type check
var _ http.Handler = (*refreshHandler)(nil)

// ServeHTTP implements the [http.Handler] interface for *refreshHandler.
func (h *refreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)

	req := &refreshRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		l.ErrorContext(ctx, "decoding request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	reqIDs, err := h.idsFromReq(req.IDs)
	if err != nil {
		l.ErrorContext(ctx, "validating request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	resp := &refreshResponse{
		Results: make(map[RefresherID]string, len(reqIDs)),
	}

	for _, id := range reqIDs {
		resp.Results[id] = h.refresh(ctx, l, id)
	}

	writeJSON(ctx, l, w, resp)
}

// idsFromReq validates the form of the request and returns the IDs of
// refreshers to refresh.
func (h *refreshHandler) idsFromReq(reqIDs []RefresherID) (ids []RefresherID, err error) {
	ok, err := isWildcard(reqIDs)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	if ok {
		return slices.Sorted(maps.Keys(h.refrs)), nil
	}

	return reqIDs, nil
}

// refresh performs a single refresh and returns the result as a string.
func (h *refreshHandler) refresh(ctx context.Context, l *slog.Logger, id RefresherID) (res string) {
	r, ok := h.refrs[id]
	if !ok {
		return "error: refresher not found"
	}

	start := time.Now()
	err := r.Refresh(ctx)
	if err != nil {
		l.ErrorContext(ctx, "refresher error", "id", id, slogutil.KeyError, err)

		return fmt.Sprintf("error: %s", err)
	}

	l.InfoContext(ctx, "refresh finished", "id", id, "duration", time.Since(start))

	return "ok"
}

// isWildcard returns true if ids is a single "*".  It returns an error if ids
// is empty or contains "*" along with other ids.
func isWildcard(ids []string) (ok bool, err error) {
	switch len(ids) {
	case 0:
		return false, errors.Error("no ids")
	case 1:
		return ids[0] == "*", nil
	default:
		if slices.Contains(ids, "*") {
			return false, errors.Error(`"*" cannot be used with other ids`)
		}

		return false, nil
	}
}
