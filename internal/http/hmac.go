package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/shortontech/goprint/internal/event/detection"
)

// HMACHeader carries the collector's signature over the raw request body.
const HMACHeader = "X-Goprint-HMAC"

// HMACAuth signs collector posts. Each client gets a key derived from the
// server secret and its own address, handed out by /hmac.js, so a captured
// key is useless from another address.
type HMACAuth struct {
	secret      []byte
	publicKey   []byte
	requireHMAC bool
	trustProxy  bool
}

// NewHMACAuth creates a new HMAC authentication handler
func NewHMACAuth(secret, publicKey string, requireHMAC, trustProxy bool) *HMACAuth {
	auth := &HMACAuth{
		secret:      []byte(secret),
		requireHMAC: requireHMAC,
		trustProxy:  trustProxy,
	}

	if publicKey != "" {
		if decoded, err := base64.StdEncoding.DecodeString(publicKey); err == nil {
			auth.publicKey = decoded
		} else {
			log.Printf("hmac: invalid HMAC_PUBLIC_KEY format, using derived key")
		}
	}
	if len(auth.publicKey) == 0 && len(auth.secret) > 0 {
		auth.publicKey = auth.derivePublicKey(auth.secret)
	}
	return auth
}

// derivePublicKey creates the published key id from the secret
func (h *HMACAuth) derivePublicKey(secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("goprint-public-key-derivation"))
	return mac.Sum(nil)[:16]
}

// GetPublicKeyBase64 returns the base64-encoded key id
func (h *HMACAuth) GetPublicKeyBase64() string {
	if len(h.publicKey) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(h.publicKey)
}

// ClientKeyBase64 returns the signing key for the client that sent r.
func (h *HMACAuth) ClientKeyBase64(r *http.Request) string {
	if len(h.secret) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(h.deriveClientKey(h.clientIP(r)))
}

func (h *HMACAuth) generateHMAC(payload []byte, clientIP string) string {
	if len(h.secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, h.deriveClientKey(clientIP))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// deriveClientKey is HMAC(secret, "client-key:" + ip)
func (h *HMACAuth) deriveClientKey(clientIP string) []byte {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte("client-key:" + normalizeIP(clientIP)))
	return mac.Sum(nil)
}

// normalizeIP strips ports and IPv6 brackets
func normalizeIP(addr string) string {
	// [::1]:8080 -> ::1
	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]"); idx > 0 {
			return addr[1:idx]
		}
	}
	// 192.168.1.1:8080 -> 192.168.1.1
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (h *HMACAuth) clientIP(r *http.Request) string {
	return normalizeIP(detection.ClientIP(r, h.trustProxy))
}

// VerifyHMAC validates the HMAC signature for a request
func (h *HMACAuth) VerifyHMAC(r *http.Request, payload []byte) bool {
	if !h.requireHMAC {
		return true
	}
	if len(h.secret) == 0 {
		log.Printf("hmac: verification failed: no secret configured")
		return false
	}

	provided := r.Header.Get(HMACHeader)
	if provided == "" {
		log.Printf("hmac: verification failed: missing %s header", HMACHeader)
		return false
	}

	ip := h.clientIP(r)
	expected := h.generateHMAC(payload, ip)
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		log.Printf("hmac: verification failed for %s", ip)
		return false
	}
	return true
}

// GenerateClientScript returns the JavaScript that signs collector posts
// with the key of the requesting client.
func (h *HMACAuth) GenerateClientScript(r *http.Request) string {
	key := h.ClientKeyBase64(r)
	if key == "" || len(h.publicKey) == 0 {
		return ""
	}

	return fmt.Sprintf(`
// goprint request signing
(function() {
  const GOPRINT_KEY_ID = '%s';
  const GOPRINT_CLIENT_KEY = '%s';

  async function generateHMAC(payload, keyB64) {
    const keyData = Uint8Array.from(atob(keyB64), c => c.charCodeAt(0));
    const cryptoKey = await crypto.subtle.importKey(
      'raw', keyData, { name: 'HMAC', hash: 'SHA-256' }, false, ['sign']
    );
    const signature = await crypto.subtle.sign('HMAC', cryptoKey, new TextEncoder().encode(payload));
    return Array.from(new Uint8Array(signature))
      .map(b => b.toString(16).padStart(2, '0'))
      .join('');
  }

  const originalFetch = window.fetch;
  window.fetch = async function(url, options = {}) {
    if (String(url).includes('/v1/') && options.method === 'POST' && typeof options.body === 'string') {
      try {
        options.headers = options.headers || {};
        options.headers['%s'] = await generateHMAC(options.body, GOPRINT_CLIENT_KEY);
        options.headers['X-Goprint-Key-Id'] = GOPRINT_KEY_ID;
      } catch (e) {
        console.warn('goprint: signing failed', e);
      }
    }
    return originalFetch.call(this, url, options);
  };
})();
`, h.GetPublicKeyBase64(), key, HMACHeader)
}
