package contracts

import (
	"context"
)

// AMQPMessage represents a message to be published to AMQP
type AMQPMessage struct {
	Exchange   string                 `json:"exchange"`
	RoutingKey string                 `json:"routing_key"`
	Body       []byte                 `json:"body"`
	Headers    map[string]interface{} `json:"headers,omitempty"`
}

// AMQPClient defines the interface for AMQP operations
type AMQPClient interface {
	// Publish publishes a message to the specified exchange
	Publish(ctx context.Context, message AMQPMessage) error

	// Close closes the AMQP connection
	Close() error
}

// Exchange names - configurable constants
const (
	FraudEventsExchange = "fraud.events"
	DLXExchange         = "dlx.events"
)

// Queue names - configurable constants
const (
	// EmbeddingPersistQueue carries the id and image URL of each NFT
	// whose embedding upsert the scheduler has attempted after a create.
	EmbeddingPersistQueue = "fraud.embedding.persist"

	// SyncNotifyQueue carries blockchain mint-confirmation notifications
	// published by the lifecycle manager's confirm_mint path.
	SyncNotifyQueue = "fraud.sync.notify"

	// AutoRelistQueue carries expired-listing sweep jobs for the scheduler.
	AutoRelistQueue = "fraud.listing.autorelist"
)

// Routing keys - configurable constants
const (
	EmbeddingPersistKey = "embedding.persist"
	SyncNotifyKey       = "sync.notify"
	AutoRelistKey       = "listing.autorelist"
)
