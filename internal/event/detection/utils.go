package detection

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"
)

// ClientIP returns the caller's address without port. Forwarding headers
// are only honoured behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// HashIP keys an HMAC with the secret and the UTC day, so hashes of one
// address rotate daily. An empty secret returns ip unchanged.
func HashIP(ip, secret string, now time.Time) string {
	if secret == "" || ip == "" {
		return ip
	}
	mac := hmac.New(sha256.New, []byte(secret+"|"+now.UTC().Format("2006-01-02")))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
