package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoToken is returned when a realtime URL is requested without a bearer token.
var ErrNoToken = errors.New("realtime: token is required")

// RealtimeURL derives the socket endpoint from the REST API base: http becomes
// ws, https becomes wss, path is appended and the token is passed as a query parameter.
func RealtimeURL(apiBase, path, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoToken
	}

	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", fmt.Errorf("parse api base: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api base %q has no host", apiBase)
	}

	if p := strings.Trim(path, "/"); p != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + p
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
