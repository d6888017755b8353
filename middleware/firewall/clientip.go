package firewall

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type ClientIPFunc func(r *http.Request) string

// ClientIP usa a primeira entrada do X-Forwarded-For quando ela é um IP válido;
// senão o host do RemoteAddr.
func ClientIP(r *http.Request) string {
	return clientIP(r, true)
}

// RemoteIP ignora X-Forwarded-For (gateway exposto direto, sem proxy na frente).
func RemoteIP(r *http.Request) string {
	return clientIP(r, false)
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.Unmap().String()
			}
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	if host != "" {
		return host
	}
	return "unknown"
}
