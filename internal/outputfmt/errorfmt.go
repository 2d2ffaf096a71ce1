// Package outputfmt sanitizes error text before it reaches logs or the
// operator chat. Telegram API URLs embed the bot token in the path, so raw
// transport errors must never be echoed verbatim.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	absoluteURLRE  = regexp.MustCompile(`https?://[^\s"'<>]+`)
	botTokenPathRE = regexp.MustCompile(`/bot[0-9]+:[\w-]+`)
)

// FormatErrorForDisplay sanitizes an error for user-facing channels.
func FormatErrorForDisplay(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeErrorText(err.Error())
}

// SanitizeErrorText strips URL hosts, redacts bot-token path segments, and
// masks sensitive query parameters while keeping the rest of the text intact.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	out := absoluteURLRE.ReplaceAllStringFunc(raw, sanitizeURL)
	return botTokenPathRE.ReplaceAllString(out, "/bot[redacted]")
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if q := redactQuery(u.Query()); q != "" {
		path += "?" + q
	}
	if frag := u.EscapedFragment(); frag != "" {
		path += "#" + frag
	}
	return path
}

func redactQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, "[redacted]")
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", "")
	if k == "" {
		return false
	}
	if k == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password", "cookie"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}
