// Package influxdb writes camera telemetry to InfluxDB v2.
//
// Measurements:
//
//   - camera_status: status refreshes (zoom, AI mode, battery, run state),
//     thinned to changes plus a keepalive point per camera
//   - camera_transfer: final code of every upload and download
//   - camera_event: device events by category
//
// Writes go through the library's non-blocking write API; batch failures
// reach the SetOnError callback and are counted in Stats.
package influxdb
