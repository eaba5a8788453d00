package formwatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/formwatch/navigation"
)

// navigateRequest is the body of POST /pages/{id}/navigate. Exactly one of
// URL or Direction is expected.
type navigateRequest struct {
	URL       string `json:"url,omitempty"`
	Direction string `json:"direction,omitempty"` // back | forward
}

// Routes returns the status API:
//
//	GET  /pages
//	GET  /pages/{id}/detections?limit=N
//	POST /pages/{id}/navigate
func (w *Watcher) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/pages", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, w.Status())
	})

	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/detections", func(rw http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			ds, err := w.Detections(req.Context(), id, queryInt(req, "limit", 0))
			if err != nil {
				writeError(rw, statusFor(err), err)
				return
			}
			writeJSON(rw, http.StatusOK, ds)
		})

		r.Post("/navigate", func(rw http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			var body navigateRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(rw, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
				return
			}
			if err := w.navigate(req, id, body); err != nil {
				writeError(rw, statusFor(err), err)
				return
			}
			writeJSON(rw, http.StatusOK, map[string]string{"status": "ok", "page_id": id})
		})
	})

	return r
}

var errBadNavigate = errors.New("formwatch: navigate needs a url or a direction")

func (w *Watcher) navigate(req *http.Request, id string, body navigateRequest) error {
	ctx := req.Context()
	switch {
	case body.URL != "":
		return w.Navigate(ctx, id, body.URL)
	case body.Direction == "back":
		return w.Back(ctx, id)
	case body.Direction == "forward":
		return w.Forward(ctx, id)
	default:
		return errBadNavigate
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPage):
		return http.StatusNotFound
	case errors.Is(err, errBadNavigate):
		return http.StatusBadRequest
	case errors.Is(err, navigation.ErrNotTraversable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
