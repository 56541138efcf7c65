package app

// Command is the control-surface message carried on the control topic.
// rowctl and the web calibration UI produce it; the monitor consumes it.
type Command struct {
	Action string `json:"action"`
}

// Control actions understood by the monitor.
const (
	ActionSessionStart = "session_start"
	ActionSessionEnd   = "session_end"
	ActionPause        = "pause"
	ActionResume       = "resume"
	ActionReset        = "reset"
	ActionCalStart     = "cal_start"
	ActionCalCancel    = "cal_cancel"
	ActionCalApply     = "cal_apply"
	ActionDragReset    = "drag_reset"
)

// HeartRateMessage is the inbound payload on the heart-rate topic.
type HeartRateMessage struct {
	BPM uint8 `json:"bpm"`
}
