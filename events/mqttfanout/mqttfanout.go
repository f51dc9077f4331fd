// Package mqttfanout republishes DomainEvents onto an MQTT broker,
// grounded on owl-common/mqtt's Client wrapper, generalized from a
// bidirectional pub/sub client to a one-way forwarder driven by an
// events.Bus subscription. Optional: only wired up when
// MQTT_BROKER_URL is set.
package mqttfanout

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/events"
)

// Config configures the forwarder.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// TopicPrefix events publish under "<prefix>/<event-type>", e.g.
	// "watchtower/events/profile_sighted".
	TopicPrefix string
	QoS         byte
}

// Forwarder subscribes to an events.Bus and republishes every
// DomainEvent to MQTT under Config.TopicPrefix/<type>.
type Forwarder struct {
	client mqtt.Client
	cfg    Config
	log    *zap.SugaredLogger
}

// Connect dials the broker. It does not subscribe to anything itself;
// call Run to start forwarding.
func Connect(cfg Config, log *zap.SugaredLogger) (*Forwarder, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttfanout: connect to %s: %w", cfg.BrokerURL, token.Error())
	}
	return &Forwarder{client: client, cfg: cfg, log: log}, nil
}

// Run subscribes to bus under subscriberID and republishes every
// received event until ctx is cancelled. It blocks; call it in a
// goroutine.
func (f *Forwarder) Run(ctx context.Context, bus *events.Bus, subscriberID string) {
	ch, unsub := bus.Subscribe(subscriberID)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.Event == nil {
				f.log.Warnw("mqttfanout: subscriber lagged", "dropped", env.Lagged)
				continue
			}
			f.publish(*env.Event)
		}
	}
}

func (f *Forwarder) publish(ev events.DomainEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		f.log.Errorw("mqttfanout: marshal event", "error", err, "type", ev.Type)
		return
	}
	topic := fmt.Sprintf("%s/%s", f.cfg.TopicPrefix, ev.Type)
	token := f.client.Publish(topic, f.cfg.QoS, false, body)
	token.Wait()
	if token.Error() != nil {
		f.log.Errorw("mqttfanout: publish", "error", token.Error(), "topic", topic)
	}
}

// Close disconnects from the broker.
func (f *Forwarder) Close() {
	f.client.Disconnect(250)
}
