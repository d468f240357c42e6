package debugsvc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/wshttp"
)

// writeJSON writes v as the JSON response body.
func writeJSON(ctx context.Context, l *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set(httphdr.ContentType, wshttp.HdrValApplicationJSON)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		l.ErrorContext(ctx, "writing response", slogutil.KeyError, err)
	}
}
