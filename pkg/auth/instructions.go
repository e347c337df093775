package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide writes step-by-step instructions for copying a
// session cookie out of a logged-in browser.
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SESSION COOKIE GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without a cookie, crawl-links opens a QR login window instead.")
	fmt.Fprintln(w, "A cookie lets it read the account's history page directly.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Open the account history link in a browser where you are logged in")
	fmt.Fprintln(w, "   https://mp.weixin.qq.com/mp/profile_ext?action=home&__biz=...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 2: Open Developer Tools (F12, or Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   Go to the Network tab and refresh the page")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 3: Click any request to mp.weixin.qq.com")
	fmt.Fprintln(w, "   Headers -> Request Headers -> copy the whole 'Cookie:' value")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 4: Save it")
	fmt.Fprintln(w, "   wxarchiver auth set --profile default")
	fmt.Fprintln(w, "   or pass --cookie '<value>' / --cookie ./cookie.txt")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The values you need usually include wap_sid2, pass_ticket and appmsg_token.")
	fmt.Fprintln(w, "They expire within hours; refresh them when a run reports session_expired.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "WARNING: the cookie grants access to your account. Never share it.")
	fmt.Fprintln(w, rule)
}

// ShowQuickExtractGuide writes a one-line reminder for experienced users
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 -> Network -> refresh -> any mp.weixin.qq.com request -> Headers -> Cookie")
	fmt.Fprintln(w, "Type 'help' for detailed instructions")
}
