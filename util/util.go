// Package util contains small helpers shared by the server, the command and
// their tests.
package util

import (
	"regexp"
)

var replaceHTTPSRe = regexp.MustCompile("^(http)(s?)")

// MakeWsURL converts http:// to ws:// and https:// to wss://
func MakeWsURL(url string) string {
	return replaceHTTPSRe.ReplaceAllString(url, "ws$2")
}
