package shield

import (
	"mime"
	"net/http"
)

// MaxJSONBody limits the body of JSON (or untyped) requests to maxBytes.
// Reads past the limit fail, which JSON decoders report as a bad body.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			mt, _, _ := mime.ParseMediaType(ct)
			if r.Body != nil && (ct == "" || mt == "application/json") {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
