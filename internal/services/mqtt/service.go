// Package mqtt manages the broker session: connection, subscriptions,
// availability and the inbound message queue.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// DefaultQueueSize bounds the inbound queue when Options.QueueSize is zero.
const DefaultQueueSize = 64

// ErrNotStarted is returned by Publish before Start.
var ErrNotStarted = errors.New("mqtt session not started")

// MessageHandler is called for each inbound message, one at a time, from the
// queue worker.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Service defines the interface for the broker session.
type Service interface {
	Start(ctx context.Context) error
	Publish(ctx context.Context, topic, payload string) error
	Stop(ctx context.Context) error
}

// Options configures what the session subscribes to and where messages go.
type Options struct {
	// Topics are subscribed with QoS 1 on every (re)connect.
	Topics    []string
	Handler   MessageHandler
	QueueSize int
	// OnConnected runs after the subscriptions of every (re)connect.
	OnConnected func(ctx context.Context)
}

type inbound struct {
	topic   string
	payload []byte
}

// Impl implements the mqtt Service interface on top of autopaho.
type Impl struct {
	cfg    models.MQTTConfig
	opts   Options
	queue  chan inbound
	cm     atomic.Pointer[autopaho.ConnectionManager]
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New creates a session but does not connect. Call Start to connect.
func New(logger zerolog.Logger, cfg models.MQTTConfig, opts Options) *Impl {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Impl{
		cfg:    cfg,
		opts:   opts,
		queue:  make(chan inbound, size),
		logger: logger,
	}
}

// Start connects to the broker and starts the inbound worker. It waits up to
// the connect timeout for the first connection; when that fails it logs and
// returns nil, and autopaho keeps retrying in the background.
//
// Cancelling ctx stops the inbound worker but leaves the broker session up,
// so Stop can still publish "offline" before it disconnects.
func (s *Impl) Start(ctx context.Context) error {
	brokerURL, err := BrokerURL(s.cfg.Broker)
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       keepAliveSeconds(s.cfg.KeepAlive),
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.cm.Store(cm)
			s.onConnectionUp(sessionCtx, ctx, cm)
		},
		OnConnectError: func(err error) {
			s.logger.Error().Err(err).Str("broker", brokerURL.Redacted()).Msg("Failed to connect to MQTT broker")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				s.onPublishReceived,
			},
		},
	}

	if s.cfg.AvailabilityTopic != "" {
		pahoCfg.WillMessage = &paho.WillMessage{
			Topic:   s.cfg.AvailabilityTopic,
			Payload: []byte(Offline),
			QoS:     1,
			Retain:  true,
		}
	}

	if useTLS(brokerURL.Scheme) {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	go s.drain(ctx)

	cm, err := autopaho.NewConnection(sessionCtx, pahoCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.cancel = cancel
	s.cm.Store(cm)

	s.logger.Info().
		Str("broker", brokerURL.Redacted()).
		Str("client_id", s.cfg.ClientID).
		Msg("connecting to MQTT broker")

	connCtx, connCancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		s.logger.Error().
			Err(err).
			Dur("timeout", s.cfg.ConnectTimeout).
			Msg("initial MQTT connection not established, retrying in background")
	}

	return nil
}

// Publish sends payload to topic with QoS 1, bounded by the publish timeout.
// While disconnected it fails once the timeout expires.
func (s *Impl) Publish(ctx context.Context, topic, payload string) error {
	cm := s.cm.Load()
	if cm == nil {
		return ErrNotStarted
	}

	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(payload),
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Stop publishes "offline" to the availability topic and then disconnects.
// ctx bounds both steps.
func (s *Impl) Stop(ctx context.Context) error {
	cm := s.cm.Load()
	if cm == nil {
		return nil
	}
	if s.cancel != nil {
		defer s.cancel()
	}
	s.publishAvailability(ctx, cm, Offline)
	if err := cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}
	return nil
}

// onConnectionUp runs the session work under sessionCtx and hands runCtx to
// OnConnected.
func (s *Impl) onConnectionUp(sessionCtx, runCtx context.Context, cm *autopaho.ConnectionManager) {
	s.logger.Info().Str("broker", s.cfg.Broker).Msg("mqtt connected to broker")

	s.publishAvailability(sessionCtx, cm, Online)

	if subs := Subscriptions(s.opts.Topics); len(subs) > 0 {
		if _, err := cm.Subscribe(sessionCtx, &paho.Subscribe{Subscriptions: subs}); err != nil {
			s.logger.Error().Err(err).Msg("mqtt subscribe failed")
		} else {
			s.logger.Debug().Int("topics", len(subs)).Msg("mqtt subscriptions established")
		}
	}

	if s.opts.OnConnected != nil && runCtx.Err() == nil {
		s.opts.OnConnected(runCtx)
	}
}

func (s *Impl) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if s.cfg.AvailabilityTopic == "" {
		return
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.cfg.AvailabilityTopic,
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn().Err(err).Str("status", status).Msg("mqtt availability publish failed")
	} else {
		s.logger.Debug().Str("status", status).Msg("mqtt availability published")
	}
}

// onPublishReceived runs on the transport's goroutine and must not block.
func (s *Impl) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	if pr.Packet == nil {
		return false, nil
	}
	s.enqueue(pr.Packet.Topic, pr.Packet.Payload)
	return true, nil
}

func (s *Impl) enqueue(topic string, payload []byte) bool {
	select {
	case s.queue <- inbound{topic: topic, payload: payload}:
		return true
	default:
		s.logger.Warn().
			Str("topic", topic).
			Int("queue_size", cap(s.queue)).
			Msg("inbound queue full, dropping message")
		return false
	}
}

func (s *Impl) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if s.opts.Handler != nil {
				s.opts.Handler(ctx, msg.topic, msg.payload)
			}
		}
	}
}

// Subscriptions builds QoS 1 subscriptions for topics, skipping empty and
// duplicate entries while keeping order.
func Subscriptions(topics []string) []paho.SubscribeOptions {
	seen := make(map[string]bool, len(topics))
	subs := make([]paho.SubscribeOptions, 0, len(topics))
	for _, t := range topics {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: 1})
	}
	return subs
}

var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"tcp":   "1883",
	"mqtts": "8883",
	"ssl":   "8883",
	"tls":   "8883",
	"ws":    "80",
	"wss":   "443",
}

// BrokerURL parses a broker address. A bare host or host:port means
// mqtt://, and a missing port gets the scheme's default.
func BrokerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("mqtt broker is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "mqtt://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported mqtt broker scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("mqtt broker %q has no host", raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	return u, nil
}

// keepAliveSeconds converts the keep-alive to the protocol's 16-bit seconds
// field, clamping instead of wrapping. Zero or less disables keep-alive.
func keepAliveSeconds(d time.Duration) uint16 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if secs < 1 {
		return 1
	}
	if secs > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(secs)
}

func useTLS(scheme string) bool {
	switch scheme {
	case "mqtts", "ssl", "tls", "wss":
		return true
	}
	return false
}
