// Package mqtt provides the gateway's MQTT client.
//
// The gateway mirrors session lifecycle onto a broker so that other
// systems can follow pairing and connection state without polling the
// HTTP API, and accepts remote restart and logout commands.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing session state (retained) and pairing codes per tenant
//   - The session command subscription, restored after a reconnect
//   - Last Will and Testament for offline detection
//
// # Topics
//
//	<prefix>/system/status             retained online/offline
//	<prefix>/session/<tenant>/state    retained lifecycle state
//	<prefix>/session/<tenant>/pairing  pairing codes
//	<prefix>/session/<tenant>/command  restart | restart-websocket | logout
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishSessionState("tenant-1", payload)
//
//	err = client.SubscribeSessionCommands(1, func(tenantID string, payload []byte) error {
//	    return handle(tenantID, payload)
//	})
package mqtt
