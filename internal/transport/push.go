package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gridsignal/oadr2ven/internal/engine"
)

// EiEventPath is the push endpoint VTNs deliver distribute payloads to.
const EiEventPath = "/OpenADR2/Simple/EiEvent"

// NewRouter builds the push-mode HTTP router around the handler.
func NewRouter(h *engine.Handler, log *slog.Logger) chi.Router {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post(EiEventPath, func(w http.ResponseWriter, req *http.Request) {
		reply, err := h.HandlePayload(req.Context(), req.Body)
		if err != nil {
			log.Warn("push payload rejected",
				"remote", req.RemoteAddr, "error", err)
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", contentTypeXML)
		if _, err := w.Write(reply); err != nil {
			log.Warn("write reply", "error", err)
		}
	})

	return r
}
