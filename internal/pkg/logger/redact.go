package logger

import (
	"regexp"
	"strings"
)

var secretKeys = []string{"token", "api_key", "apikey", "authorization", "password", "secret"}

var bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)

// RedactSecret masks a credential, keeping only the last four characters.
// "eyJhbGciOiJIUzI1NiJ9.abcd" -> "***abcd"
func RedactSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	for _, sk := range secretKeys {
		if strings.Contains(k, sk) {
			return RedactSecret(val)
		}
	}
	return bearerRegex.ReplaceAllString(val, "Bearer ***")
}
