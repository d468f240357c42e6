package debugsvc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/shieldkit/webshield/internal/shield"
)

// shieldHandler serves the shield configuration API.
type shieldHandler struct {
	shields shield.Interface
}

// shieldResponse describes the response to the shield configuration API.
type shieldResponse struct {
	shield.Configuration

	Domain string `json:"domain"`
}

// domainFromReq returns the validated domain from the path of r.  If the
// domain is invalid, it writes the error response and returns an empty string.
func domainFromReq(w http.ResponseWriter, r *http.Request) (domain string) {
	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)

	domain = strings.ToLower(r.PathValue(pathValueDomain))
	err := netutil.ValidateHostname(domain)
	if err != nil {
		l.ErrorContext(ctx, "validating domain", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return ""
	}

	return domain
}

// serveGet handles GET /debug/api/shields/{domain}.
func (h *shieldHandler) serveGet(w http.ResponseWriter, r *http.Request) {
	domain := domainFromReq(w, r)
	if domain == "" {
		return
	}

	ctx := r.Context()
	writeJSON(ctx, slogutil.MustLoggerFromContext(ctx), w, &shieldResponse{
		Configuration: h.shields.Get(domain),
		Domain:        domain,
	})
}

// servePut handles PUT /debug/api/shields/{domain}.  The request body is the
// full configuration, omitted flags are off.
func (h *shieldHandler) servePut(w http.ResponseWriter, r *http.Request) {
	domain := domainFromReq(w, r)
	if domain == "" {
		return
	}

	ctx := r.Context()
	l := slogutil.MustLoggerFromContext(ctx)

	conf := shield.Configuration{}
	err := json.NewDecoder(r.Body).Decode(&conf)
	if err != nil {
		l.ErrorContext(ctx, "decoding request", slogutil.KeyError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	h.shields.Set(ctx, domain, conf)

	writeJSON(ctx, l, w, &shieldResponse{
		Configuration: h.shields.Get(domain),
		Domain:        domain,
	})
}

// serveDelete handles DELETE /debug/api/shields/{domain}.
func (h *shieldHandler) serveDelete(w http.ResponseWriter, r *http.Request) {
	domain := domainFromReq(w, r)
	if domain == "" {
		return
	}

	h.shields.Delete(r.Context(), domain)

	w.WriteHeader(http.StatusNoContent)
}

// serveReset handles DELETE /debug/api/shields.
func (h *shieldHandler) serveReset(w http.ResponseWriter, r *http.Request) {
	h.shields.Reset(r.Context())

	w.WriteHeader(http.StatusNoContent)
}
