// Package dashboard bridges ticket lifecycle events onto an MQTT broker so an
// external dashboard can render the live ticket board.
//
// Every live ticket is one retained message under tickets/<uid>; a terminal
// transition publishes a retained empty payload, which MQTT treats as a
// delete for the topic. A retained status topic carries the bot lifecycle,
// with a broker-side will covering crashes.
package dashboard

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-supply-bot/internal/config"
	"github.com/tbourn/go-supply-bot/internal/domain"
	"github.com/tbourn/go-supply-bot/internal/services"
)

const (
	topicStatus = "status"

	statusOnline       = "BOT_ONLINE"
	statusDisconnected = "BOT_DISCONNECTED"
	statusCrashed      = "BOT_CRASHED"

	publishTimeout = 5 * time.Second
)

// MQTT publishes ticket snapshots to a broker. Implements services.Publisher.
type MQTT struct {
	client mqtt.Client
}

var _ services.Publisher = (*MQTT)(nil)

// Connect dials the broker and announces the bot as connected. The session is
// persistent and carries a crash will, so a dashboard can always tell a clean
// shutdown from a dead bot.
func Connect(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectTimeout(publishTimeout).
		SetBinaryWill(topicStatus, statusPayload(statusCrashed), 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("dashboard broker connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect dashboard broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect dashboard broker %s: %w", cfg.Broker, err)
	}

	p := &MQTT{client: client}
	p.publish(topicStatus, statusPayload(statusOnline))
	log.Info().Str("broker", cfg.Broker).Str("client_id", cfg.ClientID).Msg("dashboard publisher connected")
	return p, nil
}

// Publish mirrors one ticket onto its topic. A nil snapshot clears the
// retained message, removing the ticket from the dashboard.
func (p *MQTT) Publish(topic string, snap *domain.TicketSnapshot) {
	if snap == nil {
		p.publish(topic, nil)
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("encode ticket snapshot")
		return
	}
	p.publish(topic, payload)
}

// Close announces a clean shutdown and drops the connection. The will does
// not fire on an orderly disconnect, so the retained status stays accurate.
func (p *MQTT) Close() {
	p.publish(topicStatus, statusPayload(statusDisconnected))
	p.client.Disconnect(uint(publishTimeout.Milliseconds()))
}

// publish sends a retained qos-1 message and logs instead of failing; the
// dashboard is best-effort and must never block ticket handling.
func (p *MQTT) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("dashboard publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("dashboard publish failed")
	}
}

func statusPayload(status string) []byte {
	payload, _ := json.Marshal(map[string]string{"status": status})
	return payload
}

// Noop is the publisher used when no broker is configured.
type Noop struct{}

// Publish discards the snapshot.
func (Noop) Publish(string, *domain.TicketSnapshot) {}

// Close is a no-op.
func (Noop) Close() {}
