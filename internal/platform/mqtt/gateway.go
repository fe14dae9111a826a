// Package mqtt bridges pill dispensers that speak MQTT to the device,
// dose log and schedule services.
//
// Topics are rooted at a configurable prefix:
//
//	<prefix>/<deviceId>/heartbeat   device -> server
//	<prefix>/<deviceId>/dose-log    device -> server, JSON dose event
//	<prefix>/<deviceId>/schedule    server -> device, retained JSON schedule
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/doselog"
	"github.com/medtrack/medtrack/internal/domain/schedule"
)

const (
	TopicHeartbeat = "heartbeat"
	TopicDoseLog   = "dose-log"
	TopicSchedule  = "schedule"

	qosAtLeastOnce    = byte(1)
	disconnectQuiesce = 250
)

// Heartbeater marks a device as seen.
type Heartbeater interface {
	Heartbeat(ctx context.Context, deviceID string) error
}

// DoseRecorder stores a device-reported dose event.
type DoseRecorder interface {
	Record(ctx context.Context, req doselog.EventRequest) (*doselog.Event, error)
}

type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string

	// ConnectRetries bounds the initial connection attempts. Backoff doubles
	// from one second between attempts.
	ConnectRetries int
	ConnectTimeout time.Duration
	// HandleTimeout bounds the store work done for one inbound message.
	HandleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "medtrack-server"
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 5
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 10 * time.Second
	}
	c.TopicPrefix = strings.Trim(c.TopicPrefix, "/")
	return c
}

// client is the part of paho.Client the gateway uses.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnected() bool
}

// Gateway owns the broker connection. It implements schedule.Publisher.
type Gateway struct {
	cfg        Config
	client     client
	heartbeats Heartbeater
	doses      DoseRecorder
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ schedule.Publisher = (*Gateway)(nil)

func New(cfg Config, heartbeats Heartbeater, doses DoseRecorder, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		cfg:        cfg.withDefaults(),
		heartbeats: heartbeats,
		doses:      doses,
		logger:     logger.With().Str("component", "mqtt").Logger(),
		sleep:      sleepCtx,
	}
	g.client = paho.NewClient(g.clientOptions())
	return g
}

func (g *Gateway) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(g.cfg.BrokerURL).
		SetClientID(fmt.Sprintf("%s-%s", g.cfg.ClientID, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		// Handlers hit the store, so they must not run on paho's router.
		SetOrderMatters(false)
	if g.cfg.Username != "" {
		opts.SetUsername(g.cfg.Username)
		opts.SetPassword(g.cfg.Password)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		g.logger.Info().Str("broker", g.cfg.BrokerURL).Msg("mqtt connected")
		if err := g.subscribe(); err != nil {
			g.logger.Error().Err(err).Msg("mqtt subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		g.logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		g.logger.Info().Msg("mqtt reconnecting")
	})
	return opts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect dials the broker with bounded retries and exponential backoff.
// Subscriptions are made by the on-connect handler, so they are restored
// after automatic reconnects.
func (g *Gateway) Connect(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < g.cfg.ConnectRetries; attempt++ {
		token := g.client.Connect()
		if !token.WaitTimeout(g.cfg.ConnectTimeout) {
			err = errors.New("connect timed out")
		} else if err = token.Error(); err == nil {
			return nil
		}

		if attempt == g.cfg.ConnectRetries-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		g.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", g.cfg.ConnectRetries).
			Dur("backoff", backoff).
			Msg("mqtt connect failed")
		if serr := g.sleep(ctx, backoff); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("mqtt connect to %s after %d attempts: %w", g.cfg.BrokerURL, g.cfg.ConnectRetries, err)
}

// Close disconnects, giving in-flight work a short grace period.
func (g *Gateway) Close() {
	if g.client.IsConnected() {
		g.client.Disconnect(disconnectQuiesce)
	}
}

func (g *Gateway) topic(deviceID, kind string) string {
	return g.cfg.TopicPrefix + "/" + deviceID + "/" + kind
}

func (g *Gateway) subscribe() error {
	for _, kind := range []string{TopicHeartbeat, TopicDoseLog} {
		filter := g.topic("+", kind)
		token := g.client.Subscribe(filter, qosAtLeastOnce, g.onMessage)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", filter, token.Error())
		}
		g.logger.Info().Str("topic", filter).Msg("mqtt subscribed")
	}
	return nil
}

// parseTopic splits "<prefix>/<deviceId>/<kind>".
func (g *Gateway) parseTopic(topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, g.cfg.TopicPrefix+"/")
	if !found {
		return "", "", false
	}
	deviceID, kind, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return deviceID, kind, true
}

func (g *Gateway) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.HandleTimeout)
	defer cancel()

	if err := g.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		g.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt message dropped")
	}
}

// handle dispatches one inbound message. The device id in the topic is
// authoritative.
func (g *Gateway) handle(ctx context.Context, topic string, payload []byte) error {
	deviceID, kind, ok := g.parseTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	switch kind {
	case TopicHeartbeat:
		return g.heartbeats.Heartbeat(ctx, deviceID)
	case TopicDoseLog:
		var req doselog.EventRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("decode dose event: %w", err)
		}
		req.DeviceID = deviceID
		_, err := g.doses.Record(ctx, req)
		return err
	default:
		return fmt.Errorf("unexpected topic kind %q", kind)
	}
}

// PublishSchedule sends s to its device as a retained message so a device
// that reconnects picks up the latest schedule.
func (g *Gateway) PublishSchedule(ctx context.Context, s *schedule.Schedule) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	token := g.client.Publish(g.topic(s.DeviceID, TopicSchedule), qosAtLeastOnce, true, data)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
