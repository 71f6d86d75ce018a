package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// Credentials authenticate every request. Immutable for the process
// lifetime; owned by the Client and never logged.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Signer computes the ACCESS-SIGN header value.
//
// The exchange verifies base64(HMAC-SHA256(secret, ts+METHOD+path+query+body)).
// The query string that is signed must be byte-identical to the one sent, so
// both come from CanonicalQuery.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the given API secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the signature over the request prehash. Pure: identical
// inputs always produce identical output.
func (s *Signer) Sign(timestamp, method, path, query, body string) string {
	prehash := timestamp + strings.ToUpper(method) + path + query + body
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CanonicalQuery serializes params sorted by key, prefixed with "?" when
// non-empty. Reordering the parameters would change the signature.
func CanonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}
