package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints how to copy a logged-in cookie header out of a browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"COPYING YOUR NAVER SESSION COOKIES",
		rule,
		"",
		"cafenote never sees your password. It reuses the cookies of a browser",
		"session that is already logged in.",
		"",
		"1. Log in at https://nid.naver.com in your browser.",
		"2. Open https://cafe.naver.com and press F12 to open Developer Tools.",
		"3. Network tab -> refresh -> click any request to a naver.com host.",
		"4. Under Request Headers copy the whole value of the 'Cookie:' line.",
		"",
		"The header must contain NID_AUT and NID_SES. Those two cookies mark an",
		"authenticated session; without NID_AUT every crawl runs anonymously and",
		"note sends are refused.",
		"",
		"SECURITY: these cookies grant full access to the account. They are stored",
		"in the system keychain or an encrypted file, never in the config file.",
		rule,
		"",
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// WriteQuickGuide is the one-line reminder shown at the login prompt
func WriteQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 -> Network -> any naver.com request -> Request Headers -> copy the Cookie value (needs NID_AUT, NID_SES).")
	fmt.Fprintln(w, "Type 'help' for detailed instructions.")
}
