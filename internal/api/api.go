// Package api holds the typed requests against the Patientenakte backend.
// Every call goes through the authenticated client, so credentials are
// attached and 401 responses clear the session without help from here.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/wolfeidau/patientenakte/internal/client"
)

// Transport is the part of client.Client the request builders use.
type Transport interface {
	NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error)
	Do(req *http.Request) (*http.Response, error)
	DoJSON(ctx context.Context, method, path string, in, out any) error
}

var _ Transport = (*client.Client)(nil)

const basePath = "/api/v1"
