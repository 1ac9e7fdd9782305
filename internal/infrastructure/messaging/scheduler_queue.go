// Package messaging wires the Job Scheduler's background work (spec
// §5) onto RabbitMQ: embedding-vector persistence after a synchronous
// create, mint-confirmation notifications, and the auto-relist sweep.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Marcusng88/FraudGuard/internal/domain"
	"github.com/Marcusng88/FraudGuard/shared/contracts"
	"github.com/Marcusng88/FraudGuard/shared/logging"
	"github.com/Marcusng88/FraudGuard/shared/messaging"
	"github.com/Marcusng88/FraudGuard/shared/recovery"
	"github.com/Marcusng88/FraudGuard/shared/resilience"
)

// SchedulerQueue publishes and consumes the scheduler's three
// background task kinds over the fraud.events topic exchange. It
// implements domain.BackgroundQueue.
type SchedulerQueue struct {
	mq    *messaging.RabbitMQ
	log   *logging.Logger
	retry *resilience.RetryConfig
}

func NewSchedulerQueue(mq *messaging.RabbitMQ, log *logging.Logger) *SchedulerQueue {
	return &SchedulerQueue{mq: mq, log: log, retry: resilience.DefaultRetryConfig()}
}

// SetupInfrastructure declares the exchange, queues, and bindings the
// scheduler needs; call once at startup.
func (s *SchedulerQueue) SetupInfrastructure() error {
	exchanges := []messaging.ExchangeConfig{
		{Name: contracts.FraudEventsExchange, Type: "topic", Durable: true},
		{Name: contracts.DLXExchange, Type: "topic", Durable: true},
	}
	queues := []messaging.QueueConfig{
		{Name: contracts.EmbeddingPersistQueue, Durable: true, DLX: contracts.DLXExchange, DLRKey: contracts.EmbeddingPersistKey},
		{Name: contracts.SyncNotifyQueue, Durable: true, DLX: contracts.DLXExchange, DLRKey: contracts.SyncNotifyKey},
		{Name: contracts.AutoRelistQueue, Durable: true, DLX: contracts.DLXExchange, DLRKey: contracts.AutoRelistKey},
	}
	bindings := []messaging.BindingConfig{
		{QueueName: contracts.EmbeddingPersistQueue, ExchangeName: contracts.FraudEventsExchange, RoutingKey: contracts.EmbeddingPersistKey},
		{QueueName: contracts.SyncNotifyQueue, ExchangeName: contracts.FraudEventsExchange, RoutingKey: contracts.SyncNotifyKey},
		{QueueName: contracts.AutoRelistQueue, ExchangeName: contracts.FraudEventsExchange, RoutingKey: contracts.AutoRelistKey},
	}
	return s.mq.SetupInfrastructure(exchanges, queues, bindings)
}

func (s *SchedulerQueue) PublishEmbeddingPersist(ctx context.Context, job domain.EmbeddingPersistJob) error {
	return s.publish(ctx, contracts.EmbeddingPersistKey, job)
}

func (s *SchedulerQueue) PublishSyncNotify(ctx context.Context, job domain.SyncNotifyJob) error {
	return s.publish(ctx, contracts.SyncNotifyKey, job)
}

func (s *SchedulerQueue) PublishAutoRelist(ctx context.Context, job domain.AutoRelistJob) error {
	return s.publish(ctx, contracts.AutoRelistKey, job)
}

func (s *SchedulerQueue) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := contracts.AMQPMessage{
		Exchange:   contracts.FraudEventsExchange,
		RoutingKey: routingKey,
		Body:       body,
	}
	return resilience.RetryWithConfig(ctx, s.retry, func(ctx context.Context) error {
		return s.mq.Publish(ctx, msg)
	})
}

// ConsumeEmbeddingPersist starts a background worker that applies fn to
// every embedding-persist job until ctx is cancelled. Handler failures
// are nacked with requeue, per shared/messaging's consume semantics.
func (s *SchedulerQueue) ConsumeEmbeddingPersist(ctx context.Context, fn func(context.Context, domain.EmbeddingPersistJob) error) {
	s.consume(ctx, contracts.EmbeddingPersistQueue, "fraudguard.embedding", func(ctx context.Context, d amqp.Delivery) error {
		var job domain.EmbeddingPersistJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return fmt.Errorf("decode embedding persist job: %w", err)
		}
		return fn(ctx, job)
	})
}

// ConsumeSyncNotify starts a background worker for mint-confirmation jobs.
func (s *SchedulerQueue) ConsumeSyncNotify(ctx context.Context, fn func(context.Context, domain.SyncNotifyJob) error) {
	s.consume(ctx, contracts.SyncNotifyQueue, "fraudguard.syncnotify", func(ctx context.Context, d amqp.Delivery) error {
		var job domain.SyncNotifyJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return fmt.Errorf("decode sync notify job: %w", err)
		}
		return fn(ctx, job)
	})
}

// ConsumeAutoRelist starts a background worker for expired-listing sweeps.
func (s *SchedulerQueue) ConsumeAutoRelist(ctx context.Context, fn func(context.Context, domain.AutoRelistJob) error) {
	s.consume(ctx, contracts.AutoRelistQueue, "fraudguard.autorelist", func(ctx context.Context, d amqp.Delivery) error {
		var job domain.AutoRelistJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return fmt.Errorf("decode auto relist job: %w", err)
		}
		return fn(ctx, job)
	})
}

func (s *SchedulerQueue) consume(ctx context.Context, queue, consumerTag string, handler messaging.MessageHandler) {
	recovery.SafeGoWithContext(ctx, func(ctx context.Context) {
		if err := s.mq.Consume(queue, consumerTag, handler); err != nil {
			if s.log != nil {
				s.log.WithError(err).Error(fmt.Sprintf("consumer %s exited", consumerTag))
			}
		}
	})
}
