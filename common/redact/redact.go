// Package redact strips sensitive values from log output and audit payloads.
//
// Secrets (the Matrix access token, the Redis password embedded in its URL)
// must never reach a log line or the audit table. Redaction works on string
// representations and relies on callers to pass the right set of terms.
package redact

import (
	"net/url"
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s. Values
// shorter than 4 characters are skipped to avoid spurious matches.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Map returns a shallow copy of m with string values replaced for every key
// whose name suggests a secret.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if str, ok := v.(string); ok && str != "" && isSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = v
	}
	return out
}

// URLPassword returns the password embedded in a connection URL such as
// redis://:pw@host:6379/0, or "" when there is none.
func URLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return ""
	}
	pw, _ := u.User.Password()
	return pw
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "credential", "auth", "apikey", "api_key"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
