// Package mqtt provides the MQTT client used for avrctl events and the
// remote command bridge.
//
// A Client publishes JSON at the configured QoS, replays its
// subscriptions after a reconnect and keeps a retained Presence document
// on avrctl/system/status. The broker swaps in an offline Presence (the
// Last Will) if the daemon vanishes; HealthCheck refreshes the online one.
//
// # Topics
//
// All topics live under "avrctl/". Topics builds them:
//
//	avrctl/event/command                 command outcomes
//	avrctl/discovery/device/{id}         device records (retained)
//	avrctl/discovery/expired             staleness sweep results
//	avrctl/status/{host}                 receiver status (retained)
//	avrctl/command/{model}/{action}      remote command requests
//	avrctl/ack/{model}/{action}          remote command results
//	avrctl/system/status                 Presence (retained, Last Will)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        model, action, ok := mqtt.ParseCommandTopic(topic)
//	        ...
//	    })
package mqtt
