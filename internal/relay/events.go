package relay

import "encoding/json"

// Wire event names per the Farsight signalling protocol.
// These names are the compatibility contract with device agents and
// controller dashboards: case-sensitive, command events upper-snake,
// data-relay events lower-snake.

// Media relay events. Inbound frames from device agents are re-broadcast
// to every peer wrapped as {deviceId, data}.
const (
	EventAudioStream = "audio_stream"
	EventVideoFrame  = "video_frame"
	EventAudioData   = "audio_data"
	EventVideoData   = "video_data"
)

// WebRTC negotiation events, relayed under the same name.
const (
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventWebRTCICECandidate = "webrtc_ice_candidate"
)

// Device status events, broadcast to non-sender peers unchanged.
const (
	EventCameraReady   = "camera_ready"
	EventCameraStatus  = "camera_status"
	EventCurrentConfig = "current_config"
	EventStorageStats  = "storage_stats"
)

// Attributed broadcast events.
const (
	EventPermissionReport = "permission_report"
	EventLog              = "log"
	EventServerLog        = "server_log"
)

// Liveness and roster events.
const (
	EventHeartbeat        = "heartbeat"
	EventPongResponse     = "pong_response"
	EventDeviceListUpdate = "device_list_update"
)

// commandEvents maps inbound dashboard commands to the upper-snake event
// names device agents consume. Commands carry an optional targetId for
// unicast delivery; the payload itself is forwarded untouched.
var commandEvents = map[string]string{
	"get_status":             "GET_STATUS",
	"start_monitoring":       "START_AUDIO",
	"stop_monitoring":        "STOP_AUDIO",
	"start_video":            "START_VIDEO",
	"stop_video":             "STOP_VIDEO",
	"switch_camera":          "SWITCH_CAMERA",
	"toggle_flash":           "TOGGLE_FLASH",
	"brightness_up":          "BRIGHTNESS_UP",
	"brightness_down":        "BRIGHTNESS_DOWN",
	"update_config":          "UPDATE_CONFIG",
	"get_config":             "GET_CONFIG",
	"get_storage_stats":      "GET_STORAGE_STATS",
	"hide_app":               "HIDE_APP",
	"show_app":               "SHOW_APP",
	"start_manual_recording": "START_MANUAL_RECORDING",
	"stop_manual_recording":  "STOP_MANUAL_RECORDING",
}

// CommandFor resolves the outbound command name for an inbound event.
// The second return is false for events that are not dashboard commands.
func CommandFor(event string) (string, bool) {
	command, ok := commandEvents[event]
	return command, ok
}

// Envelope is the wire frame carrying every event across a connection:
// {"event": "<name>", "data": <payload>}. Data stays raw until the
// dispatch policy for the event decides whether to inspect it.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes a wire frame. Frames without an event name are
// rejected; payloads are never validated here.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrBadEnvelope
	}
	if env.Event == "" {
		return Envelope{}, ErrBadEnvelope
	}
	return env, nil
}

// MarshalEvent encodes an outbound wire frame. A nil or empty raw payload
// omits the data field entirely rather than sending JSON null.
func MarshalEvent(event string, data any) ([]byte, error) {
	if raw, ok := data.(json.RawMessage); ok && len(raw) == 0 {
		data = nil
	}
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data})
}
