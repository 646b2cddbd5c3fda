package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fleetwatch/fleetwatch/internal/nats"
)

const natsSubjectPrefix = "fleetwatch.events."

// NATSBridge carries Bus publishes across process boundaries, per
// SPEC_FULL.md §4.I: every fleetwatch process publishes its locally
// fired events onto NATS subjects mirroring the topic names, and
// bridges its local subscribers off of NATS so several daemon
// instances (e.g. an ingestion daemon and a dashboard-facing API
// daemon) still fan out to the same connected websocket clients.
// Grounded on internal/server.NewNATSBridge's callback-registration
// shape and internal/nats.Client's subject-per-message-kind
// conventions, generalized from the teacher's fixed agent-lifecycle
// subjects to one subject per real-time topic.
type NATSBridge struct {
	client *nats.Client
	bus    *Bus
	subs   []unsubscribeFunc
}

type unsubscribeFunc func()

func NewNATSBridge(client *nats.Client, bus *Bus) *NATSBridge {
	return &NATSBridge{client: client, bus: bus}
}

func subjectFor(topic string) string {
	return natsSubjectPrefix + topic
}

// PublishRemote forwards a locally-fired event onto NATS so peer
// processes' bridges can fan it out to their own local subscribers.
// Call this from a Bus wrapper that also publishes locally, or pass a
// *LocalAndRemotePublisher as the Publisher dependency of
// internal/execution, internal/heartbeat, internal/ingestion and
// internal/alerts.
func (b *NATSBridge) PublishRemote(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for topic %s: %w", topic, err)
	}
	if err := b.client.Publish(subjectFor(topic), data); err != nil {
		return fmt.Errorf("publish to nats subject %s: %w", subjectFor(topic), err)
	}
	return nil
}

// BridgeTopics subscribes this process's NATS client to every given
// topic's subject and re-publishes incoming messages onto the local
// Bus, so this process's websocket clients see events fired by any
// other fleetwatch process.
func (b *NATSBridge) BridgeTopics(topics []string) error {
	for _, topic := range topics {
		topic := topic
		sub, err := b.client.Subscribe(subjectFor(topic), func(msg *nats.Message) {
			var payload interface{}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("realtime: failed to decode bridged nats message")
				return
			}
			b.bus.Publish(topic, payload)
		})
		if err != nil {
			return fmt.Errorf("bridge topic %s: %w", topic, err)
		}
		b.subs = append(b.subs, func() { sub.Unsubscribe() })
	}
	return nil
}

// Close tears down every NATS subscription the bridge created.
func (b *NATSBridge) Close() {
	for _, unsub := range b.subs {
		unsub()
	}
	b.subs = nil
}

// LocalAndRemotePublisher implements the Publisher interface consumed
// by internal/execution, internal/heartbeat, internal/ingestion, and
// internal/alerts: every publish fans out locally via Bus and across
// processes via NATS.
type LocalAndRemotePublisher struct {
	bus    *Bus
	bridge *NATSBridge
}

func NewLocalAndRemotePublisher(bus *Bus, bridge *NATSBridge) *LocalAndRemotePublisher {
	return &LocalAndRemotePublisher{bus: bus, bridge: bridge}
}

func (p *LocalAndRemotePublisher) Publish(topic string, payload interface{}) {
	p.bus.Publish(topic, payload)
	if err := p.bridge.PublishRemote(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("realtime: failed to publish to nats")
	}
}
