package client

import (
	"net/http"
	"net/url"
	"strings"
)

func defaultHTTPClient(proxyURL string) *http.Client {
	if strings.TrimSpace(proxyURL) == "" {
		return &http.Client{}
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &http.Client{}
	}
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}
	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(parsed)
	return &http.Client{Transport: transport}
}

// withJar returns a copy of hc using jar, leaving the caller's client untouched.
func withJar(hc *http.Client, jar http.CookieJar) *http.Client {
	if jar == nil {
		return hc
	}
	cp := *hc
	cp.Jar = jar
	return &cp
}
