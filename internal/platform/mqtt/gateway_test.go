package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/medtrack/internal/domain/doselog"
	"github.com/medtrack/medtrack/internal/domain/schedule"
)

type fakeToken struct {
	err      error
	timedOut bool
	done     chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return !t.timedOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connectErrs  []error
	connects     int
	subscribed   []string
	published    []published
	pending      bool
	connected    bool
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token {
	var err error
	if c.connects < len(c.connectErrs) {
		err = c.connectErrs[c.connects]
	}
	c.connects++
	c.connected = err == nil
	return newToken(err)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.pending {
		return &fakeToken{done: make(chan struct{})}
	}
	return newToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, _ paho.MessageHandler) paho.Token {
	c.subscribed = append(c.subscribed, topic)
	return newToken(nil)
}

func (c *fakeClient) IsConnected() bool { return c.connected }

type recordingHeartbeater struct {
	devices []string
	err     error
}

func (r *recordingHeartbeater) Heartbeat(_ context.Context, deviceID string) error {
	r.devices = append(r.devices, deviceID)
	return r.err
}

type recordingDoses struct {
	reqs []doselog.EventRequest
	err  error
}

func (r *recordingDoses) Record(_ context.Context, req doselog.EventRequest) (*doselog.Event, error) {
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	return &doselog.Event{DeviceID: req.DeviceID}, nil
}

func newTestGateway(cfg Config) (*Gateway, *fakeClient, *recordingHeartbeater, *recordingDoses) {
	fc := &fakeClient{}
	hb := &recordingHeartbeater{}
	doses := &recordingDoses{}
	g := &Gateway{
		cfg:        cfg.withDefaults(),
		client:     fc,
		heartbeats: hb,
		doses:      doses,
		logger:     zerolog.New(io.Discard),
		sleep:      func(context.Context, time.Duration) error { return nil },
	}
	return g, fc, hb, doses
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{TopicPrefix: "/medtrack/devices/"}.withDefaults()
	require.Equal(t, "medtrack/devices", cfg.TopicPrefix)
	require.Equal(t, 5, cfg.ConnectRetries)
	require.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	require.Equal(t, "medtrack-server", cfg.ClientID)
}

func TestParseTopic(t *testing.T) {
	g, _, _, _ := newTestGateway(Config{TopicPrefix: "medtrack/devices"})
	tests := []struct {
		topic    string
		deviceID string
		kind     string
		ok       bool
	}{
		{"medtrack/devices/dev-1/heartbeat", "dev-1", "heartbeat", true},
		{"medtrack/devices/dev-1/dose-log", "dev-1", "dose-log", true},
		{"medtrack/devices//heartbeat", "", "", false},
		{"medtrack/devices/dev-1", "", "", false},
		{"medtrack/devices/dev-1/a/b", "", "", false},
		{"other/dev-1/heartbeat", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			deviceID, kind, ok := g.parseTopic(tt.topic)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.deviceID, deviceID)
			require.Equal(t, tt.kind, kind)
		})
	}
}

func TestHandle_Heartbeat(t *testing.T) {
	g, _, hb, _ := newTestGateway(Config{TopicPrefix: "medtrack/devices"})

	require.NoError(t, g.handle(context.Background(), "medtrack/devices/dev-1/heartbeat", nil))
	require.Equal(t, []string{"dev-1"}, hb.devices)

	hb.err = errors.New("Device not found or not active")
	require.Error(t, g.handle(context.Background(), "medtrack/devices/dev-2/heartbeat", []byte(`{}`)))
}

func TestHandle_DoseLogTopicDeviceWins(t *testing.T) {
	g, _, _, doses := newTestGateway(Config{TopicPrefix: "medtrack/devices"})
	payload := `{"deviceId":"spoofed","date":"2026-03-01","meal":"morning","timing":"before","scheduledTime":"08:00","status":"taken"}`

	require.NoError(t, g.handle(context.Background(), "medtrack/devices/dev-1/dose-log", []byte(payload)))
	require.Len(t, doses.reqs, 1)
	require.Equal(t, "dev-1", doses.reqs[0].DeviceID)
	require.Equal(t, "taken", doses.reqs[0].Status)
}

func TestHandle_Drops(t *testing.T) {
	g, _, hb, doses := newTestGateway(Config{TopicPrefix: "medtrack/devices"})
	ctx := context.Background()

	require.Error(t, g.handle(ctx, "medtrack/devices/dev-1/dose-log", []byte(`not json`)))
	require.Error(t, g.handle(ctx, "medtrack/devices/dev-1/schedule", nil))
	require.Error(t, g.handle(ctx, "elsewhere/dev-1/heartbeat", nil))
	require.Empty(t, hb.devices)
	require.Empty(t, doses.reqs)
}

func TestConnect_RetriesWithBackoff(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{ConnectRetries: 4})
	fc.connectErrs = []error{errors.New("refused"), errors.New("refused")}
	var waits []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, g.Connect(context.Background()))
	require.Equal(t, 3, fc.connects)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestConnect_GivesUp(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{ConnectRetries: 3})
	refused := errors.New("refused")
	fc.connectErrs = []error{refused, refused, refused}

	err := g.Connect(context.Background())
	require.ErrorIs(t, err, refused)
	require.Equal(t, 3, fc.connects)
}

func TestConnect_ContextCancelled(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{ConnectRetries: 3})
	fc.connectErrs = []error{errors.New("refused")}
	g.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, g.Connect(ctx), context.Canceled)
	require.Equal(t, 1, fc.connects)
}

func TestSubscribe(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{TopicPrefix: "medtrack/devices"})

	require.NoError(t, g.subscribe())
	require.Equal(t, []string{"medtrack/devices/+/heartbeat", "medtrack/devices/+/dose-log"}, fc.subscribed)
}

func TestPublishSchedule(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{TopicPrefix: "medtrack/devices"})
	at := "08:00"
	s := schedule.Default("dev-1")
	s.Morning.Before = &at

	require.NoError(t, g.PublishSchedule(context.Background(), s))
	require.Len(t, fc.published, 1)
	msg := fc.published[0]
	require.Equal(t, "medtrack/devices/dev-1/schedule", msg.topic)
	require.True(t, msg.retained)
	require.Equal(t, byte(1), msg.qos)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	require.Equal(t, "dev-1", body["deviceId"])
	require.Equal(t, "08:00", body["morning"].(map[string]interface{})["before"])
}

func TestPublishSchedule_ContextDone(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{TopicPrefix: "medtrack/devices"})
	fc.pending = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, g.PublishSchedule(ctx, schedule.Default("dev-1")), context.Canceled)
}

func TestClose(t *testing.T) {
	g, fc, _, _ := newTestGateway(Config{})
	g.Close()
	require.False(t, fc.disconnected, "nothing to close before connecting")

	fc.connected = true
	g.Close()
	require.True(t, fc.disconnected)
}
