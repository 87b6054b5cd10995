package handlers

import "net/http"

// Health is the liveness endpoint. It is intentionally untraced.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
