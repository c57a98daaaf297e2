package downstream

import (
	"encoding/xml"
	"net/http"
	"time"
)

// DSS is a rubber-stamp here: this server trusts whatever downstream
// client presents an account; authorization goes no further than the
// canned WSUS cookie exchange.

type dssGetAuthorizationCookieResponse struct {
	XMLName xml.Name `xml:"GetAuthorizationCookieResponse"`
	Cookie  string   `xml:"GetAuthorizationCookieResult>AuthCookie"`
}

// getAuthorizationCookie always succeeds with a stub cookie.
func (srv *Server) getAuthorizationCookie(w http.ResponseWriter, r *http.Request) {
	writeSoapBody(w, dssGetAuthorizationCookieResponse{Cookie: "stub-auth-cookie"})
}

type getCookieResponse struct {
	XMLName    xml.Name `xml:"GetCookieResponse"`
	Cookie     string   `xml:"GetCookieResult>CookieData"`
	Expiration string   `xml:"GetCookieResult>Expiration"`
}

// getCookie returns a cookie with a 5-day expiration.
func (srv *Server) getCookie(w http.ResponseWriter, r *http.Request) {
	writeSoapBody(w, getCookieResponse{
		Cookie:     "stub-access-cookie",
		Expiration: time.Now().Add(5 * 24 * time.Hour).Format(time.RFC3339),
	})
}
