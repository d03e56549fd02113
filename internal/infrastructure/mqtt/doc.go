// Package mqtt provides MQTT client connectivity for the ECHONET Lite bridge.
//
// This package manages:
//   - Connection to the broker named by MQTT_URL, with auto-reconnect
//   - Logging of connect, reconnect and connection-lost events
//   - Message publishing with QoS guarantees
//   - Single and multi-topic subscriptions, restored after reconnect
//   - Last Will and Testament on the bridge status topic
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.StatusTopic("echonet"), logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeMultiple(topics, 1,
//	    func(topic string, payload []byte) error {
//	        return dispatcher.HandleMessage(topic, payload)
//	    })
//
//	client.Publish("/echonet/10_0_0_5/hvac_state_power", []byte("true"), 1, false)
package mqtt
