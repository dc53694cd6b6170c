package httpretry

import (
	"bytes"
	"net/http"
)

// limitationPhrases are platform responses that no retry can fix inside the
// current quota window. Matched case-insensitively against the body.
var limitationPhrases = []string{
	"limit reached for daily-report",
	"you've reached your maximum number of in-app event reports that can be downloaded today for this app",
	"you've reached your maximum number of in-app event reports that can be downloaded today for this account",
	"you've reached your maximum number of install reports that can be downloaded today for this app",
	"you've reached your maximum number of install reports that can be downloaded today for this account",
	"your current subscription package doesn't include raw data reports",
	"subscription package doesn't include raw data",
}

// successScanBytes bounds how much of a 200 body is searched. Limitation
// notices are short; a real CSV export starts with its header row.
const successScanBytes = 1024

// PlatformLimitation reports whether the response carries a known platform
// limitation notice, returning the matched phrase.
func PlatformLimitation(status int, body []byte) (string, bool) {
	scan := body
	if status == http.StatusOK && len(scan) > successScanBytes {
		scan = scan[:successScanBytes]
	}
	lower := bytes.ToLower(scan)
	for _, phrase := range limitationPhrases {
		if bytes.Contains(lower, []byte(phrase)) {
			return phrase, true
		}
	}
	return "", false
}
