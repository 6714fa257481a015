// Package mqtt provides MQTT client connectivity for Haven Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Haven Core uses MQTT as its internal message bus: device commands flow
// out to protocol bridges, device state flows back in, and engine progress
// events fan out to any interested subscriber.
//
//	Haven Core ↔ MQTT Broker ↔ Protocol Bridges
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.Command("zigbee", "light-hall")
//	client.Publish(topic, []byte(`{"on":true}`), 1, false)
package mqtt
