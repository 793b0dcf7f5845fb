package kit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// maxBody caps request bodies; tool arguments are small.
const maxBody = 1 << 20

// HTTPDecodeFunc reads the typed request from a JSON body.
type HTTPDecodeFunc func(body []byte) (any, error)

// HTTPHandler serves endpoint as POST JSON. An empty body decodes as {}.
// Decode errors answer 400, endpoint errors 500; a successful response is
// written as JSON with status 200.
func HTTPHandler(endpoint Endpoint, decode HTTPDecodeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
			return
		}
		if len(body) == 0 {
			body = []byte("{}")
		}
		req, err := decode(body)
		if err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid arguments: %w", err))
			return
		}

		ctx := WithTransport(r.Context(), "http")
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = WithRequestID(ctx, id)
		}
		resp, err := endpoint(ctx, req)
		if err != nil {
			status := http.StatusInternalServerError
			var pe *PanicError
			if errors.As(err, &pe) {
				err = errors.New("internal error")
			}
			WriteError(w, status, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": ...} with the given status.
func WriteError(w http.ResponseWriter, code int, err error) {
	WriteJSON(w, code, map[string]string{"error": err.Error()})
}
