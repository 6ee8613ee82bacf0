package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Compile-time check that MQTTNotifier implements Notifier.
var _ Notifier = (*MQTTNotifier)(nil)

const (
	defaultQoS     = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// publisher is the slice of paho.Client used by MQTTNotifier.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTNotifier publishes events as JSON to <topic>/<job_id>.
type MQTTNotifier struct {
	client publisher
	topic  string
	logger *slog.Logger

	mu   sync.Mutex
	conn paho.Client
}

// NewMQTTNotifier connects to brokerURL and returns a notifier publishing
// under topic. The client reconnects on its own after the first connection.
func NewMQTTNotifier(brokerURL, clientID, topic string, logger *slog.Logger) (*MQTTNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
		})

	client := paho.NewClient(opts)
	if err := connect(client, brokerURL, connectTimeout); err != nil {
		return nil, err
	}

	n := newMQTTNotifier(client, topic, logger)
	n.conn = client
	logger.Info("mqtt notifier connected", slog.String("broker", brokerURL), slog.String("topic", topic))
	return n, nil
}

// connector is the slice of paho.Client used while connecting.
type connector interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
}

// connect waits up to timeout for the first connection. On failure the
// client is disconnected so its retry loop stops.
func connect(c connector, brokerURL string, timeout time.Duration) error {
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		c.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: timeout", brokerURL)
	}
	if err := token.Error(); err != nil {
		c.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return nil
}

func newMQTTNotifier(client publisher, topic string, logger *slog.Logger) *MQTTNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTNotifier{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		logger: logger,
	}
}

// Notify publishes event and waits for the broker to acknowledge it.
func (n *MQTTNotifier) Notify(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := n.topic + "/" + event.JobID
	token := n.client.Publish(topic, defaultQoS, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	n.logger.Debug("event published", slog.String("topic", topic), slog.String("type", event.Type))
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Disconnect(1000)
		n.conn = nil
	}
}
