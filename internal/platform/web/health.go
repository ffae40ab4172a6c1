package web

import (
	"net/http"
	"time"
)

// Alive answers liveness checks with a plain-text banner naming the process.
func Alive(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(name + " is alive\n"))
	}
}

// Ping reports uptime as JSON.
func Ping(name string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"service":  name,
			"uptime_s": int64(time.Since(started).Seconds()),
		})
	}
}
