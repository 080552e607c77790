package sandbox

import (
	"net/url"
	"strings"
)

// Credential carries authentication for a single git remote operation.
// It is applied to one URL string and never persisted or logged.
type Credential struct {
	Token    string
	Username string
	Password string
	// Host restricts the credential to URLs on this host. Empty = any host.
	Host string
}

// AppliesTo reports whether the credential may be sent to rawURL: an https
// URL whose host matches Host when Host is set.
func (c *Credential) AppliesTo(rawURL string) bool {
	if c == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return false
	}
	return c.Host == "" || strings.EqualFold(u.Hostname(), c.Host)
}

func (c Credential) String() string {
	switch {
	case c.Token != "":
		return "Credential{token:[redacted]}"
	case c.Username != "":
		return "Credential{user:" + c.Username + ", password:[redacted]}"
	default:
		return "Credential{}"
	}
}

// GoString keeps %#v from printing secrets.
func (c Credential) GoString() string { return c.String() }

// secrets returns the values that must never appear in error text.
func (c *Credential) secrets() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, s := range []string{c.Token, c.Password} {
		if s != "" {
			out = append(out, s, url.QueryEscape(s), url.PathEscape(s))
		}
	}
	return out
}

// InjectCredentials embeds auth into the authority of an https URL:
// token@host when a token is set, user:password@host when both are set.
// Any other scheme or host, unparsable URL, missing credential or URL that
// already carries userinfo is returned unchanged.
func InjectCredentials(rawURL string, auth *Credential) string {
	if !auth.AppliesTo(rawURL) {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		return rawURL
	}

	switch {
	case auth.Token != "":
		u.User = url.User(auth.Token)
	case auth.Username != "" && auth.Password != "":
		u.User = url.UserPassword(auth.Username, auth.Password)
	default:
		return rawURL
	}
	return u.String()
}

// redact replaces every secret in s.
func redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "[redacted]")
		}
	}
	return s
}
