package provider

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stallingServer reads the request body and then holds the response until
// the client goes away. closed is signalled once the server observes the
// client dropping the connection.
func stallingServer(t *testing.T) (server *httptest.Server, closed <-chan struct{}) {
	t.Helper()
	gone := make(chan struct{}, 1)
	release := make(chan struct{})
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for a disconnect once the body is consumed.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
			gone <- struct{}{}
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server, gone
}

func assertConnectionReleased(t *testing.T, closed <-chan struct{}) {
	t.Helper()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Error("server never saw the client close the connection")
	}
}
