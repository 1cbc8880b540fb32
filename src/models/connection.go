package models

import (
	"net/url"
)

// DefaultEndpoint is the public Deriv WebSocket API.
const DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"

// MConnectionConfig holds everything a Session needs to reach the platform.
// It is never mutated once a Session is built from it.
type MConnectionConfig struct {
	Endpoint    string `json:"endpoint"`
	AppID       string `json:"app_id"`
	AccessToken string `json:"-"`
	ServerURL   string `json:"server_url,omitempty"`
}

// -----------------------------------------------------------------------------

// URL returns the dial address: the alternate server when set, otherwise the
// endpoint, with app_id appended as a query parameter.
func (c MConnectionConfig) URL() (string, error) {
	base := c.ServerURL
	if base == "" {
		base = c.Endpoint
	}
	if base == "" {
		base = DefaultEndpoint
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("app_id", c.AppID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// -----------------------------------------------------------------------------

// SameCredentials reports whether two configs would open an identical session.
func (c MConnectionConfig) SameCredentials(other MConnectionConfig) bool {
	return c.Endpoint == other.Endpoint &&
		c.ServerURL == other.ServerURL &&
		c.AppID == other.AppID &&
		c.AccessToken == other.AccessToken
}

// -----------------------------------------------------------------------------

// MStoredCredentials is what the token store persists between runs.
type MStoredCredentials struct {
	AppID       string `json:"app_id"`
	AccessToken string `json:"access_token"`
	ServerURL   string `json:"server_url,omitempty"`
	LoginID     string `json:"loginid,omitempty"`
	SavedAt     int64  `json:"saved_at"`
}
