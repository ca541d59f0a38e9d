// Package bridge fans device notifications out to the daemon's surfaces and
// routes MQTT commands back to devices.
//
// Outbound, per camera serial number:
//
//	camlink/device/{sn}/state     connect and disconnect (retained)
//	camlink/device/{sn}/status    status snapshots (retained)
//	camlink/device/{sn}/event     device events
//	camlink/device/{sn}/transfer  transfer progress and results
//
// Inbound, a control.Request on camlink/command/{sn} is executed and
// answered with a control.Ack on camlink/ack/{sn}.
package bridge
