package utils

import (
	"regexp"
)

var codeParam = regexp.MustCompile(`(?:^|[?&])code=([A-Za-z0-9]+)`)

// GetCodeFromUrl extracts the OAuth code from a callback URL or raw query.
func GetCodeFromUrl(url string) (string, bool) {
	m := codeParam.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}
