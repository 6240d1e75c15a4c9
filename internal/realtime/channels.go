package realtime

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/roha-backend/pkg/outbox/registry"
)

const DefaultChannelPrefix = "roha:live"

// Channels names the per-customer pub/sub channels.
type Channels struct {
	prefix string
}

func NewChannels(prefix string) Channels {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return Channels{prefix: prefix}
}

func (c Channels) Orders(customerID uuid.UUID) string {
	return c.prefix + ":orders:" + customerID.String()
}

func (c Channels) Notifications(customerID uuid.UUID) string {
	return c.prefix + ":notifications:" + customerID.String()
}

// AdminOrders carries every order event for the admin console.
func (c Channels) AdminOrders() string {
	return c.prefix + ":admin:orders"
}

// For returns the customer channel an event stream is delivered on.
func (c Channels) For(stream registry.Stream, customerID uuid.UUID) string {
	if stream == registry.StreamNotifications {
		return c.Notifications(customerID)
	}
	return c.Orders(customerID)
}
