// Package mqtt mirrors Farsight session state onto an MQTT broker.
//
// The broker is an optional integration surface, not the signaling path.
// Devices and dashboards talk to the core over WebSocket; the core publishes
// session membership to retained MQTT topics so home-automation platforms
// and monitoring stacks can observe device availability without holding a
// WebSocket open.
//
//	Devices/Dashboards ↔ Farsight Core → MQTT Broker → Integrations
//
// When the mqtt section of config.yaml is disabled the core runs without
// this package entirely.
//
// # Connection behaviour
//
// Connect dials once and then lets paho own the session: reconnect backoff
// runs between cfg.Reconnect.InitialDelay and cfg.Reconnect.MaxDelay, and
// tracked subscriptions are replayed after every reconnect. The connection
// carries a retained Last Will so the core's status topic flips to offline
// even when the process dies without unwinding; Close publishes a graceful
// offline status instead.
//
// Presence publishes are fire-and-forget from the router's point of view.
// A slow or absent broker never blocks session handling.
//
// # Security
//
// Production brokers should require TLS (cfg.Broker.TLS) and credentials;
// anonymous plaintext is for local development only. Payloads carry device
// identifiers and timestamps, never tokens.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Mirror session membership onto the broker
//	bridge := mqtt.NewPresenceBridge(client, byte(cfg.MQTT.QoS))
//	router.SetPresencePublisher(bridge)
//
//	// Or subscribe directly to observe every device
//	err = client.Subscribe(mqtt.Topics{}.AllDevicePresence(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
