// Package httpclient gives the gateway's internal/* packages (stream,
// video) a way to reach the shared outbound HTTP client without importing
// common/client directly, keeping the domain layer decoupled from the
// ambient one. Grounded on common/client/init.go's HTTPClient package var.
package httpclient

import (
	"net/http"

	"github.com/nexusgate/llmgateway/common/client"
)

// Default returns the process-wide relay HTTP client built by
// common/client.Init at startup.
func Default() *http.Client {
	return client.HTTPClient
}

// Impatient returns the short-timeout client used for quick upstream
// status checks (the video poller's HTTP phase).
func Impatient() *http.Client {
	return client.ImpatientHTTPClient
}
