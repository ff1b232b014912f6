package tablesession

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// DeviceFromRequest builds the device identity of a request. A fingerprint
// supplied by the client wins; otherwise one is derived from the client IP
// and User-Agent.
func DeviceFromRequest(r *http.Request, fingerprint, deviceInfo string, trustProxyHeaders bool) DeviceInfo {
	ip := ClientIP(r, trustProxyHeaders)
	ua := r.UserAgent()

	if fingerprint == "" {
		fingerprint = hashFingerprint(ip, ua)
	}

	return DeviceInfo{
		Fingerprint: fingerprint,
		IPAddress:   ip,
		UserAgent:   ua,
		DeviceInfo:  deviceInfo,
	}
}

// hashFingerprint creates a SHA-256 hash of the fingerprint components.
func hashFingerprint(ip, userAgent string) string {
	hash := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(hash[:])
}

// ClientIP extracts the client IP address from the request. Proxy headers
// are only consulted when trustProxyHeaders is set.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		// X-Forwarded-For may contain multiple IPs; the first is the client
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
