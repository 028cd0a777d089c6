package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrNotConfirmed     = errors.New("publish not confirmed")
)

// Publisher ships committed marketplace events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, envelope event.Envelope) error
}

type MessageService interface {
	Publisher

	GetQueue(item Item) (*amqp.Queue, error)
	SendMessage(item Item, routingKey string, body []byte, reliable bool) error
	ConsumeMessages(ctx context.Context, item Item, callback func(body []byte) error) error
	GetQueueSize(item Item) (*int, error)
	Close() error
}

type Messenger struct {
	amqpUri string
	index   string

	mu   sync.Mutex
	conn *amqp.Connection
}

type Item string

var (
	MarketplaceEvents Item = "marketplace.events"
)

func (i Item) queue(index string) string {
	return fmt.Sprintf("%s.%s", index, i)
}

// RoutingKey is the key an envelope is published with: its event type.
func RoutingKey(envelope event.Envelope) string {
	return string(envelope.Type)
}

func NewMessenger(amqpUri, index string) MessageService {
	return &Messenger{amqpUri: amqpUri, index: index}
}

func (m *Messenger) Publish(ctx context.Context, envelope event.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return xerrors.Errorf("encode envelope %s: %w", envelope.Id, err)
	}

	return m.sendMessage(ctx, MarketplaceEvents, RoutingKey(envelope), body, true)
}

func (m *Messenger) GetQueue(item Item) (*amqp.Queue, error) {
	ch, err := m.openChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(item.queue(m.index), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("queue", item.queue(m.index))).Error("[Queue] Failed to create queue")
		return nil, err
	}

	return &queue, nil
}

func (m *Messenger) SendMessage(item Item, routingKey string, body []byte, reliable bool) error {
	return m.sendMessage(context.Background(), item, routingKey, body, reliable)
}

// sendMessage publishes body and, when reliable, waits for the broker to
// confirm it until ctx is done.
func (m *Messenger) sendMessage(ctx context.Context, item Item, routingKey string, body []byte, reliable bool) error {
	ex, err := exchangeFor(item)
	if err != nil {
		zap.L().With(zap.String("item", string(item))).Error("[Queue] Exchange not found")
		return err
	}

	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDeleted, ex.Internal, ex.NoWait, ex.Arguments); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Declare")
		return err
	}

	var confirms chan amqp.Confirmation
	if reliable {
		if err := ch.Confirm(false); err != nil {
			zap.L().With(zap.Error(err)).Error("[Queue] Channel could not be put into confirm mode")
			return err
		}
		confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	publishing := amqp.Publishing{
		Headers:      amqp.Table{},
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	if err = ch.Publish(ex.Name, routingKey, false, false, publishing); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Publish")
		return err
	}

	if reliable {
		if err := confirmOne(ctx, confirms); err != nil {
			return xerrors.Errorf("publish to %s with key %s: %w", ex.Name, routingKey, err)
		}
	}

	zap.L().With(zap.String("exchange", ex.Name), zap.String("routingKey", routingKey)).Info("[Queue] Published message")

	return nil
}

// ConsumeMessages binds the item's durable queue to its exchange and hands
// each delivery to callback until ctx is done or the channel closes. A failed
// delivery is requeued once.
func (m *Messenger) ConsumeMessages(ctx context.Context, item Item, callback func(body []byte) error) error {
	ex, err := exchangeFor(item)
	if err != nil {
		return err
	}

	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDeleted, ex.Internal, ex.NoWait, ex.Arguments); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Declare")
		return err
	}

	q, err := ch.QueueDeclare(item.queue(m.index), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to declare a queue")
		return err
	}

	if err = ch.QueueBind(q.Name, ex.BindingKey, ex.Name, false, nil); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to bind a queue")
		return err
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to consume the queue")
		return err
	}

	zap.S().With(zap.String("exchange", ex.Name), zap.String("queue", q.Name)).Debugf("[Queue] Waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return xerrors.Errorf("consumer for %s closed", q.Name)
			}
			zap.L().With(zap.String("routingKey", d.RoutingKey)).Debug("[Queue] Received message")
			if err := callback(d.Body); err != nil {
				zap.L().With(zap.Error(err), zap.Bool("requeue", !d.Redelivered)).Error("[Queue] Failed to handle message")
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (m *Messenger) GetQueueSize(item Item) (*int, error) {
	queue, err := m.GetQueue(item)
	if err != nil {
		return nil, err
	}

	return &queue.Messages, nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil
	}
	return m.conn.Close()
}

func (m *Messenger) openConnection() (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	conn, err := amqp.Dial(m.amqpUri)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to connect to RabbitMQ")
		return nil, err
	}

	m.conn = conn

	return m.conn, nil
}

func (m *Messenger) openChannel() (*amqp.Channel, error) {
	conn, err := m.openConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		zap.S().With(zap.Error(err)).Error("[Queue] Failed to open channel")
	}

	return ch, err
}

func confirmOne(ctx context.Context, confirms <-chan amqp.Confirmation) error {
	zap.L().Debug("[Queue] Waiting for publish confirmation")

	select {
	case confirmed := <-confirms:
		if confirmed.Ack {
			zap.L().Debug("[Queue] Publish confirmed")
			return nil
		}
	case <-ctx.Done():
		zap.L().With(zap.Error(ctx.Err())).Warn("[Queue] Gave up waiting for publish confirmation")
		return ctx.Err()
	}

	zap.L().Warn("[Queue] Publish failed")
	return ErrNotConfirmed
}
