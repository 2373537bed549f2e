package router

import (
	"golang.org/x/net/publicsuffix"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

const (
	sessionCookie   = "session"
	publicKeyCookie = "CyclopsServerPublicKey"
)

// CookieInstaller makes cookies available to requests for an origin.
type CookieInstaller interface {
	Install(origin string, cookies []*http.Cookie) error
}

// JarInstaller installs cookies into a cookie jar.
type JarInstaller struct {
	Jar http.CookieJar
}

func NewJarInstaller() (*JarInstaller, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &JarInstaller{Jar: jar}, nil
}

func (j *JarInstaller) Install(origin string, cookies []*http.Cookie) error {
	u, err := url.Parse(origin)
	if err != nil {
		return err
	}
	j.Jar.SetCookies(u, cookies)
	return nil
}

// Cookies returns the cookies that a request to origin would carry.
func (j *JarInstaller) Cookies(origin string) []*http.Cookie {
	u, err := url.Parse(origin)
	if err != nil {
		return nil
	}
	return j.Jar.Cookies(u)
}

func newCookie(name string, value string) *http.Cookie {
	return &http.Cookie{
		Name:  name,
		Value: value,
		Path:  "/",
	}
}
