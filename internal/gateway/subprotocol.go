package gateway

import (
	"encoding/base64"
	"strings"
)

const (
	tokenPrefixDot    = "ads-token."
	tokenPrefixColon  = "ads-token:"
	tokenBareName     = "ads-token"
	sessionPrefixDot   = "ads-session."
	sessionPrefixColon = "ads-session:"
	sessionBareName    = "ads-session"
)

// negotiatedAuth is what the handshake's sub-protocol list carried (spec.md
// §4.8, §6): a bearer token (absent if auth is disabled) and a session id.
type negotiatedAuth struct {
	Token     string
	SessionID string
}

// parseSubProtocols extracts the token and session id from the client's
// offered sub-protocol list. Three token encodings are accepted: the
// dot-encoded base64url form, the colon-prefixed literal form, and the
// legacy two-element pair ["ads-token", "<token>"]. Session ids accept the
// same dot/colon forms (never base64-encoded).
func parseSubProtocols(protocols []string) negotiatedAuth {
	var auth negotiatedAuth
	for i := 0; i < len(protocols); i++ {
		p := protocols[i]
		switch {
		case strings.HasPrefix(p, tokenPrefixDot):
			if raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(p, tokenPrefixDot)); err == nil {
				auth.Token = string(raw)
			}
		case strings.HasPrefix(p, tokenPrefixColon):
			auth.Token = strings.TrimPrefix(p, tokenPrefixColon)
		case p == tokenBareName && i+1 < len(protocols):
			auth.Token = protocols[i+1]
			i++
		case strings.HasPrefix(p, sessionPrefixDot):
			auth.SessionID = strings.TrimPrefix(p, sessionPrefixDot)
		case strings.HasPrefix(p, sessionPrefixColon):
			auth.SessionID = strings.TrimPrefix(p, sessionPrefixColon)
		case p == sessionBareName && i+1 < len(protocols):
			auth.SessionID = protocols[i+1]
			i++
		}
	}
	return auth
}

// checkToken reports an AuthError when configuredToken is non-empty and
// does not match the offered token (spec.md §6 "empty disables auth").
func checkToken(configuredToken, offered string) error {
	if configuredToken == "" {
		return nil
	}
	if offered != configuredToken {
		return &AuthError{Reason: "token mismatch"}
	}
	return nil
}
