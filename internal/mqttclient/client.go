package mqttclient

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// CommandHandler receives kiosk commands published to <prefix>/cmd/<action>.
type CommandHandler func(action string, payload []byte)

const publishTimeout = 5 * time.Second

type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	handler   atomic.Pointer[CommandHandler]
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		log:    opts.Log,
	}
	if c.prefix == "" {
		c.prefix = "voxguide"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// Prefix returns the topic prefix without slashes.
func (c *Client) Prefix() string { return c.prefix }

func (c *Client) SetCommandHandler(h CommandHandler) {
	c.handler.Store(&h)
}

// Publish sends payload to topic at QoS 0 without retain.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.conn.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	filter := c.prefix + "/cmd/#"
	c.log.Info().Str("filter", filter).Msg("mqtt connected, subscribing")

	token := client.Subscribe(filter, 0, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	action, ok := CommandAction(c.prefix, msg.Topic())
	h := c.handler.Load()
	if !ok || h == nil {
		c.log.Debug().
			Str("topic", msg.Topic()).
			Int("payload_size", len(msg.Payload())).
			Msg("mqtt message ignored")
		return
	}
	(*h)(action, msg.Payload())
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// CommandAction extracts <action> from <prefix>/cmd/<action>.
func CommandAction(prefix, topic string) (string, bool) {
	action, ok := strings.CutPrefix(topic, prefix+"/cmd/")
	if !ok || action == "" {
		return "", false
	}
	return action, true
}

// EventTopic builds <prefix>/events/<type>[/<subType>].
func EventTopic(prefix, typ, subType string) string {
	if subType == "" {
		return prefix + "/events/" + typ
	}
	return prefix + "/events/" + typ + "/" + subType
}
