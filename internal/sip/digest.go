package sip

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Challenge is a parsed WWW-Authenticate/Proxy-Authenticate value per
// §3: realm, nonce, algorithm (default MD5), qop, opaque, and whether
// it came from a proxy (407) rather than the registrar (401).
type Challenge struct {
	Realm     string
	Nonce     string
	Algorithm string
	QOP       string
	Opaque    string
	IsProxy   bool
}

// Valid reports whether the challenge carries the two fields §3
// requires for the response to be computable.
func (c Challenge) Valid() bool {
	return c.Realm != "" && c.Nonce != ""
}

// ParseChallenge extracts a Challenge from a WWW-Authenticate or
// Proxy-Authenticate header value (the "Digest ..." string, without
// the header name).
func ParseChallenge(header string, isProxy bool) Challenge {
	c := Challenge{Algorithm: "MD5", IsProxy: isProxy}
	header = strings.TrimPrefix(strings.TrimSpace(header), "Digest")
	for _, field := range splitDigestParams(header) {
		field = strings.TrimSpace(field)
		eq := strings.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(field[:eq])
		val := strings.Trim(strings.TrimSpace(field[eq+1:]), `"`)
		switch strings.ToLower(key) {
		case "realm":
			c.Realm = val
		case "nonce":
			c.Nonce = val
		case "algorithm":
			c.Algorithm = val
		case "qop":
			c.QOP = val
		case "opaque":
			c.Opaque = val
		}
	}
	return c
}

// splitDigestParams splits on commas that are not inside quotes, since
// qop can be a quoted list like qop="auth,auth-int".
func splitDigestParams(s string) []string {
	var out []string
	inQuotes := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HA1 computes MD5(user:realm:password) per RFC 7616.
func HA1(user, realm, password string) string {
	return md5Hex(fmt.Sprintf("%s:%s:%s", user, realm, password))
}

// HA2 computes MD5(method:uri) per RFC 7616.
func HA2(method, uri string) string {
	return md5Hex(fmt.Sprintf("%s:%s", method, uri))
}

// ResponseNoQOP computes MD5(HA1:nonce:HA2), used when the challenge
// carries no qop parameter.
func ResponseNoQOP(ha1, nonce, ha2 string) string {
	return md5Hex(fmt.Sprintf("%s:%s:%s", ha1, nonce, ha2))
}

// ResponseQOP computes MD5(HA1:nonce:nc:cnonce:qop:HA2), used when the
// challenge specifies qop=auth. nc must be an 8-hex-digit lowercase
// counter per §4.1.
func ResponseQOP(ha1, nonce string, nc uint32, cnonce, qop, ha2 string) string {
	return md5Hex(fmt.Sprintf("%s:%s:%08x:%s:%s:%s", ha1, nonce, nc, cnonce, qop, ha2))
}

// NewCNonce generates a fresh 8-hex-digit client nonce.
func NewCNonce() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// AuthParams is the fully computed set of fields needed to render an
// Authorization header, kept separate from the header-string assembly
// so callers (and tests) can inspect/verify the response value itself.
type AuthParams struct {
	User     string
	Realm    string
	Nonce    string
	URI      string
	Response string
	Algorithm string
	QOP      string
	NC       uint32
	CNonce   string
	Opaque   string
}

// ComputeAuth builds the digest response for a REGISTER/INVITE retry,
// choosing the qop or no-qop formula per §4.1.
func ComputeAuth(user, password string, c Challenge, method, uri string, nc uint32, cnonce string) AuthParams {
	ha1 := HA1(user, c.Realm, password)
	ha2 := HA2(method, uri)
	var resp string
	if c.QOP != "" {
		resp = ResponseQOP(ha1, c.Nonce, nc, cnonce, "auth", ha2)
	} else {
		resp = ResponseNoQOP(ha1, c.Nonce, ha2)
	}
	return AuthParams{
		User: user, Realm: c.Realm, Nonce: c.Nonce, URI: uri, Response: resp,
		Algorithm: c.Algorithm, QOP: c.QOP, NC: nc, CNonce: cnonce, Opaque: c.Opaque,
	}
}

// String renders the Authorization/Proxy-Authorization header value.
func (p AuthParams) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=%s`,
		p.User, p.Realm, p.Nonce, p.URI, p.Response, p.Algorithm)
	if p.QOP != "" {
		fmt.Fprintf(&sb, `, qop=%s, nc=%08x, cnonce="%s"`, p.QOP, p.NC, p.CNonce)
	}
	if p.Opaque != "" {
		fmt.Fprintf(&sb, `, opaque="%s"`, p.Opaque)
	}
	return sb.String()
}
