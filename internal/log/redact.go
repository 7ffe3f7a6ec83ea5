package log

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds http(s) URLs embedded in free text such as error messages.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// sensitiveParams are query parameter names whose values are masked.
// Matching is case-insensitive; a parameter also matches when its name
// contains one of the sensitiveKeywords.
var sensitiveParams = map[string]bool{
	"key":              true,
	"sig":              true,
	"signature":        true,
	"code":             true,
	"state":            true,
	"x-amz-signature":  true,
	"x-amz-credential": true,
	"x-goog-signature": true,
}

// RedactURLs masks credential query values and userinfo passwords in every
// URL found in s. Text that is not a URL is returned unchanged.
func RedactURLs(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, redactURL)
}

// redactURL masks one URL. Unparseable input is returned unchanged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			changed = true
		}
	}

	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			name, _, hasValue := strings.Cut(part, "=")
			decoded, err := url.QueryUnescape(name)
			if err != nil {
				decoded = name
			}
			if hasValue && isSensitiveParam(decoded) {
				parts[i] = name + "=" + MaskValue
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	if !changed {
		return raw
	}
	return u.String()
}

func isSensitiveParam(name string) bool {
	n := strings.ToLower(name)
	return sensitiveParams[n] || sensitiveKeys[n] || containsSensitiveKeyword(n)
}
