package redis

import "strings"

// Key joins parts under the client namespace, skipping blanks.
func (c *Client) Key(parts ...string) string {
	ns := defaultNamespace
	if c != nil && c.namespace != "" {
		ns = c.namespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.Key("idempotency", scope, id)
}

func (c *Client) LockKey(name string) string {
	return c.Key("lock", name)
}

// AccessSessionKey holds the session record for one access token id.
func (c *Client) AccessSessionKey(accessID string) string {
	return c.Key("session", "access", accessID)
}

// UserSessionsKey indexes the access ids of every session a user holds.
func (c *Client) UserSessionsKey(userID string) string {
	return c.Key("session", "user", userID)
}
