package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rubiojr/airdb/pkg/api"
)

const (
	DefaultMQTTTopic = "owntracks/+/+"

	mqttQoS              = byte(1)
	mqttSubscribeTimeout = 5 * time.Second
)

// MQTTConfig configures an MQTTProvider.
type MQTTConfig struct {
	// Broker is a URL such as tcp://localhost:1883.
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// ownTracksMessage is the subset of the OwnTracks location payload we use.
type ownTracksMessage struct {
	Type string   `json:"_type"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

var errNotLocation = errors.New("not a location message")

// MQTTProvider receives device locations published over MQTT in the
// OwnTracks JSON format.
type MQTTProvider struct {
	*Broadcaster

	client mqtt.Client
	cfg    MQTTConfig
	log    *slog.Logger
}

func NewMQTTProvider(cfg MQTTConfig, logger *slog.Logger) *MQTTProvider {
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("airdb-%d", time.Now().UnixNano())
	}

	p := &MQTTProvider{
		Broadcaster: NewBroadcaster(),
		cfg:         cfg,
		log:         logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	// Resubscribe on every (re)connect since the session is clean.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		token := c.Subscribe(cfg.Topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
			p.handleMessage(msg.Topic(), msg.Payload())
		})
		if !token.WaitTimeout(mqttSubscribeTimeout) {
			logger.Error("mqtt subscribe timeout", "topic", cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
			return
		}
		logger.Info("subscribed to mqtt topic", "topic", cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect connects to the broker, waiting until ctx is done.
func (p *MQTTProvider) Connect(ctx context.Context) error {
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker and closes subscriber channels.
func (p *MQTTProvider) Close() {
	if p.client.IsConnected() {
		p.client.Unsubscribe(p.cfg.Topic).WaitTimeout(2 * time.Second)
	}
	p.client.Disconnect(250)
	p.Stop()
}

func (p *MQTTProvider) handleMessage(topic string, payload []byte) {
	c, err := parseOwnTracks(payload)
	if err != nil {
		if errors.Is(err, errNotLocation) {
			p.log.Debug("ignoring mqtt message", "topic", topic)
			return
		}
		p.log.Warn("invalid location message", "topic", topic, "error", err)
		return
	}
	p.Update(c)
}

func parseOwnTracks(payload []byte) (api.Coordinate, error) {
	var msg ownTracksMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return api.Coordinate{}, fmt.Errorf("error unmarshaling payload: %w", err)
	}
	if msg.Type != "location" {
		return api.Coordinate{}, errNotLocation
	}
	if msg.Lat == nil || msg.Lon == nil {
		return api.Coordinate{}, errors.New("lat and lon are required")
	}
	if math.Abs(*msg.Lat) > 90 || math.Abs(*msg.Lon) > 180 {
		return api.Coordinate{}, fmt.Errorf("coordinate out of range: %f, %f", *msg.Lat, *msg.Lon)
	}
	return api.Coordinate{Lat: *msg.Lat, Lng: *msg.Lon}, nil
}
