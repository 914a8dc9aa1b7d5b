package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta identifies the device behind a request. It rides along on
// websocket lifecycle events so abuse reports can tie a channel connection
// back to a device and address.
type ClientMeta struct {
	DeviceID  string
	RequestID string
	IP        string
}

func ClientMetaFromRequest(r *http.Request) ClientMeta {
	return ClientMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

// clientIP prefers the first forwarded-for hop over the socket peer, which
// behind the ingress proxy is always the proxy itself.
func clientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
