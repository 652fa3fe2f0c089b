// Package api registers the HTTP routes.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"strmbridge/handlers"
)

// NewRouter builds the route table. Registration order matters: specific
// routes go first so the catch-all fingerprint route only sees what is left.
func NewRouter(stream *handlers.StreamHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/reconcile", stream.Reconcile).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/movie/{imdbID}", stream.Movie).Methods(http.MethodGet)
	r.HandleFunc("/show/{imdbID}/{season}/{episode}", stream.Show).Methods(http.MethodGet)

	// Catch-all for single-segment fingerprints. Unknown fingerprints
	// answer 404 from the handler, not from the router.
	r.HandleFunc("/{fingerprint}", stream.ByFingerprint).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	return r
}
