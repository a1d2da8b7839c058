package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/lifecycle"
	"github.com/t77yq/task-telemetry/internal/model"
)

const (
	streamMaxAge      = 24 * time.Hour
	duplicateWindow   = 2 * time.Minute
	defaultStreamName = "TASK_LIFECYCLE"
	defaultPrefix     = "task.lifecycle"
	ackWait           = 30 * time.Second
	maxDeliver        = 5
)

// NotificationConfig names the JetStream resources used for lifecycle notifications
type NotificationConfig struct {
	Stream        string
	SubjectPrefix string
	Durable       string
}

// NotificationService carries task lifecycle notifications between the
// orchestrator and the bridge over JetStream
type NotificationService struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	cfg    NotificationConfig

	mu   sync.Mutex
	sub  *nats.Subscription
	done chan struct{}
}

// NewNotificationService creates a new notification service
func NewNotificationService(js nats.JetStreamContext, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if cfg.Stream == "" {
		cfg.Stream = defaultStreamName
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultPrefix
	}

	return &NotificationService{
		js:     js,
		logger: logger.Named("notifications"),
		cfg:    cfg,
	}
}

// Subject returns the subject a transition is published on
func (s *NotificationService) Subject(transition model.Transition) string {
	return s.cfg.SubjectPrefix + "." + string(transition)
}

// EnsureStream creates the lifecycle stream if it does not exist, and the
// durable consumer when one is configured
func (s *NotificationService) EnsureStream() error {
	stream, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream != nil {
		s.logger.Info("Using existing lifecycle stream", zap.String("name", s.cfg.Stream))
	} else {
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:       s.cfg.Stream,
			Subjects:   []string{s.subjects()},
			Storage:    nats.FileStorage,
			MaxAge:     streamMaxAge,
			Duplicates: duplicateWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("Created lifecycle stream", zap.String("name", s.cfg.Stream))
	}

	if s.cfg.Durable == "" {
		return nil
	}
	return s.ensureConsumer()
}

// ensureConsumer creates the durable push consumer. The consumer is owned by
// the bridge rather than by a subscription, so unsubscribing on shutdown keeps
// its delivery position and a restart resumes after the last acked message.
func (s *NotificationService) ensureConsumer() error {
	_, err := s.js.ConsumerInfo(s.cfg.Stream, s.cfg.Durable)
	if err == nil {
		s.logger.Info("Using existing lifecycle consumer", zap.String("durable", s.cfg.Durable))
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}

	_, err = s.js.AddConsumer(s.cfg.Stream, &nats.ConsumerConfig{
		Durable:        s.cfg.Durable,
		DeliverSubject: nats.NewInbox(),
		DeliverGroup:   s.cfg.Durable,
		DeliverPolicy:  nats.DeliverAllPolicy,
		AckPolicy:      nats.AckExplicitPolicy,
		AckWait:        ackWait,
		MaxDeliver:     maxDeliver,
		FilterSubject:  s.subjects(),
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	s.logger.Info("Created lifecycle consumer", zap.String("durable", s.cfg.Durable))
	return nil
}

func (s *NotificationService) subjects() string {
	return s.cfg.SubjectPrefix + ".*"
}

// Publish publishes a lifecycle notification. An empty ID is filled with a new
// UUID; the ID doubles as the JetStream message id so republishing the same
// notification within the duplicate window is a no-op.
func (s *NotificationService) Publish(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.PublishedAt.IsZero() {
		n.PublishedAt = time.Now()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := s.js.Publish(s.Subject(n.Transition), data, nats.MsgId(n.ID), nats.Context(ctx)); err != nil {
		s.logger.Error("Failed to publish notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Debug("Notification published",
		zap.String("notification_id", n.ID),
		zap.String("transition", string(n.Transition)))
	return nil
}

// Subscribe delivers every lifecycle notification to collector until ctx is
// done or Stop is called. With a durable configured, EnsureStream must have
// run first; the subscription binds to that consumer. Messages that cannot be
// decoded or routed are terminated so they are not redelivered.
func (s *NotificationService) Subscribe(ctx context.Context, collector lifecycle.Collector) error {
	handler := func(msg *nats.Msg) {
		s.handleMessage(msg, collector)
	}

	var sub *nats.Subscription
	var err error
	if s.cfg.Durable != "" {
		sub, err = s.js.QueueSubscribe(s.subjects(), s.cfg.Durable, handler,
			nats.Bind(s.cfg.Stream, s.cfg.Durable),
			nats.ManualAck(),
		)
	} else {
		sub, err = s.js.Subscribe(s.subjects(), handler, nats.ManualAck())
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to lifecycle notifications: %w", err)
	}

	done := make(chan struct{})

	s.mu.Lock()
	prev, prevDone := s.sub, s.done
	s.sub, s.done = sub, done
	s.mu.Unlock()

	if prev != nil {
		s.unsubscribe(prev, prevDone)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.stopSubscription(sub)
		case <-done:
		}
	}()

	s.logger.Info("Subscribed to lifecycle notifications",
		zap.String("subject", s.subjects()),
		zap.String("durable", s.cfg.Durable))
	return nil
}

// Stop removes the current subscription. A durable consumer is left in place.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	sub, done := s.sub, s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	if sub != nil {
		s.unsubscribe(sub, done)
	}
}

// stopSubscription stops sub only if it is still the current subscription
func (s *NotificationService) stopSubscription(sub *nats.Subscription) {
	s.mu.Lock()
	if s.sub != sub {
		s.mu.Unlock()
		return
	}
	done := s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	s.unsubscribe(sub, done)
}

func (s *NotificationService) unsubscribe(sub *nats.Subscription, done chan struct{}) {
	close(done)
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Warn("Failed to unsubscribe", zap.Error(err))
	}
}

func (s *NotificationService) handleMessage(msg *nats.Msg, collector lifecycle.Collector) {
	var n model.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		s.logger.Error("Failed to unmarshal notification",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		s.term(msg)
		return
	}

	if err := lifecycle.Route(collector, &n); err != nil {
		s.logger.Error("Failed to route notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		s.term(msg)
		return
	}

	if err := msg.Ack(); err != nil {
		s.logger.Warn("Failed to ack notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}

func (s *NotificationService) term(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		s.logger.Warn("Failed to terminate message", zap.Error(err))
	}
}
