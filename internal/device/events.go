package device

import (
	"fmt"
	"sync"
	"time"
)

// EventCategory is derived from the event code range.
type EventCategory int

// Categories.
const (
	CategoryError   EventCategory = iota // 0-999
	CategoryWarning                      // 1000-1999
	CategoryInfo                         // 2000-2999
	CategoryTip                          // 3000 and up
)

func (c EventCategory) String() string {
	switch c {
	case CategoryError:
		return "error"
	case CategoryWarning:
		return "warning"
	case CategoryInfo:
		return "info"
	case CategoryTip:
		return "tip"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// EventCode is an unsolicited device event code.
type EventCode int32

// Category returns the category of c. Negative codes are treated as errors.
func (c EventCode) Category() EventCategory {
	switch {
	case c < 1000:
		return CategoryError
	case c < 2000:
		return CategoryWarning
	case c < 3000:
		return CategoryInfo
	default:
		return CategoryTip
	}
}

// Event codes.
const (
	EventErrGimbalComm EventCode = iota
	EventErrAIComm
	EventErrBatComm
	EventErrLensComm
	EventErrSensor
	EventErrMedia
	EventErrTof
	EventErrBluetooth
	EventErrDevTempHigh
	EventErrBatLowCapacity
	EventErrSDFormatting
	EventErrSDFileSystem
	EventErrSDMount
	EventErrSDNotSupport
	EventErrSDInitializing
	EventErrSDWriteProtect
	EventErrSDNoPartition
)

const (
	EventWarnSDWriteSlow EventCode = iota + 1000
	EventWarnFileFixFailed
	EventWarnSDLowSpeed
	EventWarnSDCardNotExist
	EventWarnSDCardFull
	EventWarnBatLowCapacity10
	EventWarnBatLowCapacity5
	EventWarnStreamConn
	EventWarnNetException
	EventWarnStreamAppExit
	EventWarnSDCardFormatFail
)

const (
	EventInfoMicPlugin EventCode = iota + 2000
	EventInfoMicUnplug
	EventInfoSwivelConn
	EventInfoRemoteConn
	EventInfoMonitorConn
	EventInfoTargetLoss
	EventInfoNewMediaFile
	EventInfoAPStatus
	EventInfoSDCardFormatSuccess
	EventInfoBatCharging
	EventInfoSDReady
	EventInfoDevTemp
	EventInfoGimbalComm
	EventInfoAIComm
	EventInfoBatComm
	EventInfoLensComm
	EventInfoSensor
	EventInfoMedia
	EventInfoTof
	EventInfoBluetooth
	EventInfoHDRWith60Fps
	EventInfoSyncBootState
	EventInfoHDRWithPortrait
)

const (
	EventTipBatState EventCode = iota + 3000
	EventTipNetStrength
	EventTipMicIntensity
	EventTipNameChanged
	EventTipTransStart
	EventTipTransEnd
	EventTipWifiChanged
)

var eventNames = map[EventCode]string{
	EventErrGimbalComm:     "gimbal_comm",
	EventErrAIComm:         "ai_comm",
	EventErrBatComm:        "bat_comm",
	EventErrLensComm:       "lens_comm",
	EventErrSensor:         "sensor",
	EventErrMedia:          "media",
	EventErrTof:            "tof",
	EventErrBluetooth:      "bluetooth",
	EventErrDevTempHigh:    "dev_temp_high",
	EventErrBatLowCapacity: "bat_low_capacity",
	EventErrSDFormatting:   "sd_formatting",
	EventErrSDFileSystem:   "sd_file_system",
	EventErrSDMount:        "sd_mount",
	EventErrSDNotSupport:   "sd_not_support",
	EventErrSDInitializing: "sd_initializing",
	EventErrSDWriteProtect: "sd_write_protect",
	EventErrSDNoPartition:  "sd_no_partition",

	EventWarnSDWriteSlow:      "sd_write_slow",
	EventWarnFileFixFailed:    "file_fix_failed",
	EventWarnSDLowSpeed:       "sd_low_speed",
	EventWarnSDCardNotExist:   "sd_card_not_exist",
	EventWarnSDCardFull:       "sd_card_full",
	EventWarnBatLowCapacity10: "bat_low_capacity_10",
	EventWarnBatLowCapacity5:  "bat_low_capacity_5",
	EventWarnStreamConn:       "stream_conn",
	EventWarnNetException:     "net_exception",
	EventWarnStreamAppExit:    "stream_app_exit",
	EventWarnSDCardFormatFail: "sd_card_format_fail",

	EventInfoMicPlugin:           "mic_plugin",
	EventInfoMicUnplug:           "mic_unplug",
	EventInfoSwivelConn:          "swivel_conn",
	EventInfoRemoteConn:          "remote_conn",
	EventInfoMonitorConn:         "monitor_conn",
	EventInfoTargetLoss:          "target_loss",
	EventInfoNewMediaFile:        "new_media_file",
	EventInfoAPStatus:            "ap_status",
	EventInfoSDCardFormatSuccess: "sd_card_format_success",
	EventInfoBatCharging:         "bat_charging",
	EventInfoSDReady:             "sd_ready",
	EventInfoDevTemp:             "dev_temp",
	EventInfoGimbalComm:          "gimbal_comm_restored",
	EventInfoAIComm:              "ai_comm_restored",
	EventInfoBatComm:             "bat_comm_restored",
	EventInfoLensComm:            "lens_comm_restored",
	EventInfoSensor:              "sensor_restored",
	EventInfoMedia:               "media_restored",
	EventInfoTof:                 "tof_restored",
	EventInfoBluetooth:           "bluetooth_restored",
	EventInfoHDRWith60Fps:        "hdr_with_60fps",
	EventInfoSyncBootState:       "sync_boot_state",
	EventInfoHDRWithPortrait:     "hdr_with_portrait",

	EventTipBatState:     "bat_state",
	EventTipNetStrength:  "net_strength",
	EventTipMicIntensity: "mic_intensity",
	EventTipNameChanged:  "name_changed",
	EventTipTransStart:   "trans_start",
	EventTipTransEnd:     "trans_end",
	EventTipWifiChanged:  "wifi_changed",
}

// String returns the catalog name. Unknown codes are still valid events.
func (c EventCode) String() string {
	if n, ok := eventNames[c]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int32(c))
}

// Event is one unsolicited device event.
type Event struct {
	Code       EventCode
	Category   EventCategory
	Payload    []byte
	ReceivedAt time.Time
}

// EventFunc receives device events on the I/O goroutine.
type EventFunc func(Event)

// eventNotifier hands every event to at most one subscriber. No dedup, no
// rate limiting.
type eventNotifier struct {
	metrics Metrics

	mu sync.RWMutex
	cb EventFunc
}

func (n *eventNotifier) set(cb EventFunc) {
	n.mu.Lock()
	n.cb = cb
	n.mu.Unlock()
}

func (n *eventNotifier) deliver(code int32, payload []byte) {
	ev := Event{
		Code:       EventCode(code),
		Category:   EventCode(code).Category(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	n.metrics.EventReceived(ev.Category)

	n.mu.RLock()
	cb := n.cb
	n.mu.RUnlock()
	if cb != nil {
		cb(ev)
	}
}
