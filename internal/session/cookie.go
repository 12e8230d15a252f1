// Copyright 2026 The Crewdesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// CookieWriter builds session cookies with consistent attributes. The
// cookie domain is the root domain with a leading dot so one session is
// readable across every tenant subdomain; for localhost and IP literals the
// domain attribute is omitted entirely.
type CookieWriter struct {
	name       string
	rootDomain string
	secure     bool
	lifetime   time.Duration
}

// NewCookieWriter creates a cookie writer. secure should be true in
// production so the cookie only travels over TLS.
func NewCookieWriter(name, rootDomain string, secure bool, lifetime time.Duration) *CookieWriter {
	return &CookieWriter{
		name:       name,
		rootDomain: strings.ToLower(rootDomain),
		secure:     secure,
		lifetime:   lifetime,
	}
}

// Name returns the session cookie name.
func (w *CookieWriter) Name() string {
	return w.name
}

// Cookie builds the session cookie carrying a signed token, scoped to the
// host of the request that triggered login.
func (w *CookieWriter) Cookie(token, host string) *http.Cookie {
	return &http.Cookie{
		Name:     w.name,
		Value:    token,
		Path:     "/",
		Domain:   w.domainFor(host),
		MaxAge:   int(w.lifetime.Seconds()),
		Secure:   w.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired builds the cookie that clears a session. Domain and path must
// match the attributes used when the cookie was set, or browsers keep the
// stale cookie around.
func (w *CookieWriter) Expired(host string) *http.Cookie {
	return &http.Cookie{
		Name:     w.name,
		Value:    "",
		Path:     "/",
		Domain:   w.domainFor(host),
		MaxAge:   -1,
		Secure:   w.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (w *CookieWriter) domainFor(host string) string {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.ToLower(strings.Trim(hostname, "[]"))

	if hostname == "localhost" || net.ParseIP(hostname) != nil {
		return ""
	}
	return "." + w.rootDomain
}
