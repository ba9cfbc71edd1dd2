package lifecycle

import (
	"fmt"
	"strings"
)

// DeepLinkPrefix is the start parameter prefix of view links.
const DeepLinkPrefix = "viewsecret_"

// Link returns the deep link that opens the share holding token.
func (e *Engine) Link(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", e.botUsername, DeepLinkPrefix, token)
}

// ParseToken extracts an access token from a raw token, a start parameter
// ("viewsecret_<token>") or a full deep link.
func ParseToken(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, DeepLinkPrefix); i >= 0 {
		s = s[i+len(DeepLinkPrefix):]
	}
	if i := strings.IndexAny(s, "&#"); i >= 0 {
		s = s[:i]
	}
	return s
}
