package blizzard

import (
	"net"
	"net/http"
	"time"
)

// newTransport clones the default transport with an explicit dial timeout so
// a stalled upstream fails fast instead of holding a capture cycle open.
func newTransport(connectTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.ResponseHeaderTimeout = connectTimeout * 2
	return t
}
