package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"baechamap/internal/logger"
)

type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type mqttClient interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) mqttClient {
	return paho.NewClient(opts)
}

// MQTTChannel carries each event on its own topic, <prefix>/<event>. paho
// handles reconnection; connect and connection-lost surface as the connect
// and disconnect events.
type MQTTChannel struct {
	opts     MQTTOptions
	cli      mqttClient
	handlers *handlerSet
	log      logger.Logger

	connected atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMQTTChannel(opts MQTTOptions, log logger.Logger) *MQTTChannel {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "baecha"
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &MQTTChannel{opts: opts, handlers: newHandlerSet(), log: log, closed: make(chan struct{})}

	po := paho.NewClientOptions().AddBroker(opts.Broker).SetClientID(opts.ClientID)
	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	po.SetOnConnectHandler(func(paho.Client) { c.onConnect() })
	po.SetConnectionLostHandler(func(_ paho.Client, err error) { c.onLost(err) })
	c.cli = newMQTTClient(po)
	return c
}

func (c *MQTTChannel) On(event string, h Handler) func() { return c.handlers.on(event, h) }

func (c *MQTTChannel) Connected() bool { return c.connected.Load() }

func (c *MQTTChannel) onConnect() {
	topic := c.opts.TopicPrefix + "/+"
	if tok := c.cli.Subscribe(topic, c.opts.QoS, c.onMessage); tok.Wait() && tok.Error() != nil {
		c.log.Errorf("subscribe %s: %v", topic, tok.Error())
	}
	c.log.Infof("connected to %s", c.opts.Broker)
	c.connected.Store(true)
	c.handlers.dispatch(EventConnect, nil)
}

func (c *MQTTChannel) onLost(err error) {
	c.log.Warnf("connection lost: %v", err)
	if c.connected.Swap(false) {
		c.handlers.dispatch(EventDisconnect, nil)
	}
}

func (c *MQTTChannel) onMessage(_ paho.Client, msg paho.Message) {
	event := strings.TrimPrefix(msg.Topic(), c.opts.TopicPrefix+"/")
	if event == EventRequestBaecha || event == "" {
		return
	}
	c.handlers.dispatch(event, json.RawMessage(msg.Payload()))
}

func (c *MQTTChannel) Run(ctx context.Context) error {
	tok := c.cli.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		select {
		case <-ctx.Done():
		case <-c.closed:
		}
	case <-ctx.Done():
	case <-c.closed:
	}
	c.cli.Disconnect(250)
	if c.connected.Swap(false) {
		c.handlers.dispatch(EventDisconnect, nil)
	}
	return nil
}

func (c *MQTTChannel) Emit(ctx context.Context, event string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if data == nil {
		data = json.RawMessage("null")
	}
	tok := c.cli.Publish(c.opts.TopicPrefix+"/"+event, c.opts.QoS, false, []byte(data))
	wait := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		wait = time.Until(d)
	}
	if !tok.WaitTimeout(wait) {
		return fmt.Errorf("publish %s: timeout", event)
	}
	return tok.Error()
}

func (c *MQTTChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
