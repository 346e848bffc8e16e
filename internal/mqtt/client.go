// Package mqtt bridges the colour state to an MQTT broker.
package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"ledremote/internal/config"
	"ledremote/internal/core"
	"ledremote/internal/logging"
)

// Dispatcher accepts commands for the agent loop.
type Dispatcher interface {
	Dispatch(cmd core.Command) bool
}

// Bridge subscribes to <prefix>/action and mirrors state changes to
// <prefix>/status and <prefix>/primary.
type Bridge struct {
	client     mqtt.Client
	cfg        config.MQTTConfig
	dispatcher Dispatcher
	eventBus   *core.EventBus
	prefix     string
	log        *logrus.Entry

	events *core.Subscription
	wg     sync.WaitGroup
}

// NewBridge returns nil when MQTT is disabled.
func NewBridge(cfg config.MQTTConfig, dispatcher Dispatcher, eventBus *core.EventBus) *Bridge {
	if !cfg.Enabled {
		return nil
	}

	b := newBridge(cfg, dispatcher, eventBus)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep retrying at startup so a broker that comes up later is still reached.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetWill(b.topic("availability"), "offline", 1, true)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		b.log.WithError(err).Warn("connection lost, retrying in background")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		b.log.Info("attempting to reconnect")
	})

	b.client = mqtt.NewClient(opts)
	return b
}

func newBridge(cfg config.MQTTConfig, dispatcher Dispatcher, eventBus *core.EventBus) *Bridge {
	return &Bridge{
		cfg:        cfg,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		log:        logging.For("mqtt"),
	}
}

// Start mirrors state changes to the broker while connected.
func (b *Bridge) Start() {
	b.events = b.eventBus.Subscribe(32)
	b.wg.Add(1)
	go b.forwardEvents()
}

// Connect starts the connection loop. With connect-retry enabled it blocks
// until the broker is first reached.
func (b *Bridge) Connect() error {
	b.log.WithField("broker", b.cfg.Broker).Info("starting connection loop")

	token := b.client.Connect()
	// With ConnectRetry an error here means bad configuration rather than
	// an unreachable broker.
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Disconnect publishes "offline" and closes the connection.
func (b *Bridge) Disconnect() {
	if b.events != nil {
		b.events.Close()
		b.wg.Wait()
		b.events = nil
	}

	b.log.Info("disconnecting")
	if b.client.IsConnected() {
		token := b.client.Publish(b.topic("availability"), 1, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				b.log.WithError(token.Error()).Warn("failed to publish offline status")
			}
		} else {
			b.log.Warn("timed out publishing offline status")
		}
	}

	// Also cancels a connect that is still retrying.
	b.client.Disconnect(250)
	b.log.Info("disconnected")
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (b *Bridge) Publish(subtopic string, payload interface{}, retained bool) {
	if !b.client.IsConnected() {
		return
	}

	topic := b.topic(subtopic)
	token := b.client.Publish(topic, 0, retained, fmt.Sprintf("%v", payload))

	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.log.WithField("topic", topic).Warn("publish timed out")
			return
		}
		if token.Error() != nil {
			b.log.WithError(token.Error()).WithField("topic", topic).Warn("publish failed")
		}
	}()
}

func (b *Bridge) topic(subtopic string) string {
	return b.prefix + "/" + subtopic
}

// onConnect runs on a paho goroutine after every (re)connect.
func (b *Bridge) onConnect(client mqtt.Client) {
	b.log.Info("connected to broker")

	topic := b.topic("action")
	if token := client.Subscribe(topic, 1, b.handleAction); token.Wait() && token.Error() != nil {
		b.log.WithError(token.Error()).WithField("topic", topic).Error("subscribe failed")
	} else {
		b.log.WithField("topic", topic).Info("subscribed")
	}

	b.Publish("availability", "online", true)
}

// handleAction toggles the colour named in the payload.
func (b *Bridge) handleAction(client mqtt.Client, msg mqtt.Message) {
	c, ok := core.ColorByName(string(msg.Payload()))
	if !ok {
		b.log.WithField("topic", msg.Topic()).WithField("payload", string(msg.Payload())).Debug("ignoring action")
		return
	}
	if !b.dispatcher.Dispatch(core.Command{Type: core.CmdToggle, Color: c, Source: core.SourceMQTT}) {
		b.log.Warn("command queue full, dropping mqtt action")
	}
}

func (b *Bridge) forwardEvents() {
	defer b.wg.Done()
	for ev := range b.events.C {
		switch ev.Type {
		case core.ColorChangedEvent:
			b.Publish("status", ev.State.Color.String(), true)
		case core.PrimaryChangedEvent:
			b.Publish("primary", onOff(ev.State.Primary), true)
		}
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
