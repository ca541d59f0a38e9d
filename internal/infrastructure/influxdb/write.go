package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by camlinkd.
const (
	MeasurementStatus   = "camera_status"
	MeasurementTransfer = "camera_transfer"
	MeasurementEvent    = "camera_event"
)

// StatusPoint builds a hardware status sample. Tags stay low-cardinality:
// serial number and product only.
func StatusPoint(sn, product string, fields map[string]any, at time.Time) *write.Point {
	return write.NewPoint(MeasurementStatus,
		map[string]string{"sn": sn, "product": product},
		fields, at)
}

// TransferPoint builds a finished file transfer sample.
func TransferPoint(sn, fileType, direction string, code int, at time.Time) *write.Point {
	return write.NewPoint(MeasurementTransfer,
		map[string]string{"sn": sn, "file_type": fileType, "direction": direction},
		map[string]any{"code": code}, at)
}

// EventPoint builds a device event sample.
func EventPoint(sn, category string, code int32, at time.Time) *write.Point {
	return write.NewPoint(MeasurementEvent,
		map[string]string{"sn": sn, "category": category},
		map[string]any{"code": int64(code)}, at)
}

// WriteStatus records a status refresh of sn unless it repeats the last
// point within the keepalive.
func (c *Client) WriteStatus(sn, product string, fields map[string]any) {
	if len(fields) == 0 || !c.IsConnected() {
		return
	}
	now := c.now()

	c.lastMu.Lock()
	prev, ok := c.last[sn]
	if ok && now.Sub(prev.at) < c.keepalive && maps.Equal(prev.fields, fields) {
		c.lastMu.Unlock()
		c.skipped.Add(1)
		return
	}
	c.last[sn] = statusSample{fields: maps.Clone(fields), at: now}
	c.lastMu.Unlock()

	c.points.WritePoint(StatusPoint(sn, product, fields, now))
}

// WriteTransfer records the final code of an upload or download.
func (c *Client) WriteTransfer(sn, fileType, direction string, code int) {
	if c.IsConnected() {
		c.points.WritePoint(TransferPoint(sn, fileType, direction, code, c.now()))
	}
}

// WriteEvent records a device event.
func (c *Client) WriteEvent(sn, category string, code int32) {
	if c.IsConnected() {
		c.points.WritePoint(EventPoint(sn, category, code, c.now()))
	}
}
