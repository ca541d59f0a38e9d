// Package mqtt links camlinkd to an MQTT broker.
//
// Camera output is published under camlink/device/{sn}/{state|status|event|transfer};
// state and status are retained. Command requests arrive on
// camlink/command/{sn}, are routed to one CommandHandler by serial number
// and are answered on camlink/ack/{sn}.
//
// Each daemon owns camlink/node/{client_id}/status: online after every
// connect, offline with reason graceful_shutdown on Close, and offline with
// reason unexpected_disconnect through the will when the link breaks.
//
// Anyone who can publish to camlink/command/+ can drive the cameras.
// Restrict it with broker ACLs and use TLS outside a trusted LAN.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.HandleCommands(func(sn string, payload []byte) error { ... })
package mqtt
