// Package api exposes the service as a plain net/http handler for
// platforms that invoke one Go function per request.
package api

import (
	"net/http"

	"microservice/internal/router"
)

var handler = router.HTTPHandler(router.New()) //nolint:gochecknoglobals

// Handler serves one request with the service's router.
func Handler(w http.ResponseWriter, r *http.Request) {
	handler.ServeHTTP(w, r)
}
