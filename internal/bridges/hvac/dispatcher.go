package hvac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CommandOutcome is what happened to an inbound command.
type CommandOutcome string

const (
	// OutcomeApplied means the device acknowledged the write.
	OutcomeApplied CommandOutcome = "applied"

	// OutcomeFailed means the write was sent but the device call failed.
	OutcomeFailed CommandOutcome = "failed"

	// OutcomeIgnored means the value is deliberately not forwarded.
	OutcomeIgnored CommandOutcome = "ignored"

	// OutcomeRejected means the topic, device or value was invalid.
	OutcomeRejected CommandOutcome = "rejected"

	// OutcomeDropped means the write queue was full.
	OutcomeDropped CommandOutcome = "dropped"
)

// CommandEvent describes one inbound command for the audit trail.
type CommandEvent struct {
	Device  string
	Topic   string
	Payload string
	Outcome CommandOutcome
	Error   string
	At      time.Time
}

// DispatcherOptions holds configuration for a Dispatcher.
type DispatcherOptions struct {
	Codec    TopicCodec
	Registry *Registry
	Executor *Executor
	MQTT     MQTTClient

	// QoS is used for command subscriptions.
	QoS byte

	Logger Logger

	// Recorder is optional.
	Recorder CommandRecorder
}

// Dispatcher applies command messages to devices.
type Dispatcher struct {
	codec    TopicCodec
	registry *Registry
	executor *Executor
	mqtt     MQTTClient
	qos      byte
	logger   Logger
	recorder CommandRecorder
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		codec:    opts.Codec,
		registry: opts.Registry,
		executor: opts.Executor,
		mqtt:     opts.MQTT,
		qos:      opts.QoS,
		logger:   loggerOrNop(opts.Logger),
		recorder: opts.Recorder,
	}
}

// Subscribe subscribes the command topics of every registered device,
// one SubscribeMultiple call per device in name order. State topics are
// never subscribed.
//
// Returns:
//   - error: ErrSubscribeFailed (fatal) on the first failure
func (d *Dispatcher) Subscribe(ctx context.Context) error {
	for _, name := range d.registry.ListNames() {
		if err := ctx.Err(); err != nil {
			return err
		}

		topics := d.codec.CommandTopics(name)
		if err := d.mqtt.SubscribeMultiple(topics, d.qos, d.HandleMessage); err != nil {
			return fmt.Errorf("%w: device %s: %w", ErrSubscribeFailed, name, err)
		}
		d.logger.Info("subscribed to command topics", "device", name, "topics", len(topics))
	}
	return nil
}

// HandleMessage processes one inbound message. Invalid messages are logged
// and dropped; valid ones are queued for the executor without waiting.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) {
	body := string(payload)

	ref, err := d.codec.Decode(topic)
	if err != nil {
		d.logger.Warn("ignoring message on unknown topic", "topic", topic, "error", err)
		d.record("", topic, body, OutcomeRejected, err)
		return
	}
	if ref.Direction != DirectionCommand {
		d.logger.Warn("ignoring message on state topic", "topic", topic)
		d.record(ref.Device, topic, body, OutcomeRejected, fmt.Errorf("%w: %s is a state topic", ErrUnknownTopic, ref.Suffix))
		return
	}

	dev, err := d.registry.Get(ref.Device)
	if err != nil {
		d.logger.Warn("ignoring command for unknown device", "device", ref.Device, "topic", topic)
		d.record(ref.Device, topic, body, OutcomeRejected, err)
		return
	}

	value, err := EncodeCommand(ref.EPC, body)
	switch {
	case errors.Is(err, ErrUnsupportedValue):
		d.logger.Info("command value not supported on this topic, ignoring", "device", dev.Name, "topic", topic, "payload", body)
		d.record(dev.Name, topic, body, OutcomeIgnored, err)
		return
	case err != nil:
		d.logger.Warn("invalid command value", "device", dev.Name, "topic", topic, "payload", body, "error", err)
		d.record(dev.Name, topic, body, OutcomeRejected, err)
		return
	}

	d.logger.Info("applying command", "device", dev.Name, "suffix", ref.Suffix, "payload", body)

	err = d.executor.Write(WriteRequest{
		Device:  dev.Name,
		Address: dev.Address,
		EOJ:     dev.EOJ,
		Value:   value,
		Done: func(werr error) {
			if werr != nil {
				d.logger.Error("command write failed", "device", dev.Name, "suffix", ref.Suffix, "error", werr)
				d.record(dev.Name, topic, body, OutcomeFailed, werr)
				return
			}
			d.record(dev.Name, topic, body, OutcomeApplied, nil)
		},
	})
	if err != nil {
		d.logger.Error("dropping command", "device", dev.Name, "suffix", ref.Suffix, "error", err)
		d.record(dev.Name, topic, body, OutcomeDropped, err)
	}
}

func (d *Dispatcher) record(device, topic, payload string, outcome CommandOutcome, err error) {
	if d.recorder == nil {
		return
	}
	ev := CommandEvent{
		Device:  device,
		Topic:   topic,
		Payload: payload,
		Outcome: outcome,
		At:      time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.recorder.RecordCommand(ev)
}
