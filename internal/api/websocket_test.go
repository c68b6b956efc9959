package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farsight-labs/farsight-core/internal/device"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
	"github.com/farsight-labs/farsight-core/internal/infrastructure/logging"
	"github.com/farsight-labs/farsight-core/internal/relay"
)

// startBroker starts a fully wired server listening on the given port.
func startBroker(t *testing.T, port int, opts ...func(*Deps)) (*Server, string) {
	t.Helper()

	registry := device.NewRegistry()
	router := relay.NewRouter(registry)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	deps := Deps{
		Config: config.ServerConfig{
			Host: "127.0.0.1",
			Port: port,
			Timeouts: config.ServerTimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     64,
		},
		Registry: config.RegistryConfig{
			AllowAnonymousDevices: true,
			CloseSuperseded:       true,
		},
		Logger:   log,
		Sessions: registry,
		Router:   router,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { srv.Close() })

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// Wait for the listener to come up
	time.Sleep(100 * time.Millisecond)

	return srv, fmt.Sprintf("127.0.0.1:%d", port)
}

// dialDevice connects as a device agent.
func dialDevice(t *testing.T, addr, id, name string) *websocket.Conn {
	t.Helper()

	q := url.Values{}
	q.Set("role", "device")
	if id != "" {
		q.Set("deviceId", id)
	}
	if name != "" {
		q.Set("deviceName", name)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?"+q.Encode(), nil)
	if err != nil {
		t.Fatalf("device dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// dialController connects as a controller dashboard (no declared role).
func dialController(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("controller dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// frame mirrors the wire envelope for test-side decoding.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// sendEvent writes one envelope to the connection.
func sendEvent(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// awaitEvent reads frames until the named event arrives, skipping others.
func awaitEvent(t *testing.T, ws *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	//nolint:errcheck // Deadline failure surfaces as a read error below
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f.Data
		}
	}
}

// awaitRoster reads device_list_update frames until one has the wanted size.
func awaitRoster(t *testing.T, ws *websocket.Conn, wantLen int) []device.Session {
	t.Helper()

	//nolint:errcheck // Deadline failure surfaces as a read error below
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for roster of %d: %v", wantLen, err)
		}
		if f.Event != relay.EventDeviceListUpdate {
			continue
		}
		var roster []device.Session
		if err := json.Unmarshal(f.Data, &roster); err != nil {
			t.Fatalf("decode roster: %v", err)
		}
		if len(roster) == wantLen {
			return roster
		}
	}
}

// expectNoEvent asserts the named event does not arrive within a short window.
func expectNoEvent(t *testing.T, ws *websocket.Conn, event string) {
	t.Helper()

	//nolint:errcheck // Deadline expiry is the success path here
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return // nothing more arrived
		}
		if f.Event == event {
			t.Fatalf("unexpected %s: %s", event, f.Data)
		}
	}
}

// ─── Roster Tests ──────────────────────────────────────────────────

func TestWS_ControllerReceivesRosterOnConnect(t *testing.T) {
	_, addr := startBroker(t, 19090)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)

	roster := awaitRoster(t, ctrl, 1)
	if roster[0].ID != "cam-1" {
		t.Errorf("roster deviceId = %q, want cam-1", roster[0].ID)
	}
	if roster[0].Name != "Front Door" {
		t.Errorf("roster deviceName = %q, want Front Door", roster[0].Name)
	}
	if roster[0].ConnectedAt.IsZero() {
		t.Error("roster entry has zero connectedAt")
	}

	// Devices never receive membership announcements
	expectNoEvent(t, dev, relay.EventDeviceListUpdate)
}

func TestWS_DeviceAttachAnnouncedToControllers(t *testing.T) {
	_, addr := startBroker(t, 19091)

	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 0)

	dialDevice(t, addr, "cam-1", "Front Door")

	roster := awaitRoster(t, ctrl, 1)
	if roster[0].ID != "cam-1" {
		t.Errorf("announced deviceId = %q, want cam-1", roster[0].ID)
	}
}

func TestWS_DeviceDetachAnnouncedToControllers(t *testing.T) {
	_, addr := startBroker(t, 19092)

	ctrl := dialController(t, addr)
	dev := dialDevice(t, addr, "cam-1", "Front Door")
	awaitRoster(t, ctrl, 1)

	dev.Close()

	awaitRoster(t, ctrl, 0)
}

// ─── Command Routing Tests ─────────────────────────────────────────

func TestWS_TargetedCommandUnicast(t *testing.T) {
	_, addr := startBroker(t, 19093)

	devA := dialDevice(t, addr, "cam-a", "A")
	devB := dialDevice(t, addr, "cam-b", "B")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 2)

	sendEvent(t, ctrl, "update_config", map[string]any{"targetId": "cam-a", "quality": "high"})

	data := awaitEvent(t, devA, "UPDATE_CONFIG")
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["quality"] != "high" {
		t.Errorf("payload quality = %v, want high", payload["quality"])
	}
	if payload["targetId"] != "cam-a" {
		t.Errorf("payload should be forwarded untouched, targetId = %v", payload["targetId"])
	}

	expectNoEvent(t, devB, "UPDATE_CONFIG")
}

func TestWS_UntargetedCommandBroadcasts(t *testing.T) {
	_, addr := startBroker(t, 19094)

	devA := dialDevice(t, addr, "cam-a", "A")
	devB := dialDevice(t, addr, "cam-b", "B")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 2)

	sendEvent(t, ctrl, "start_monitoring", map[string]any{})

	awaitEvent(t, devA, "START_AUDIO")
	awaitEvent(t, devB, "START_AUDIO")

	// The sender is excluded from its own broadcast
	expectNoEvent(t, ctrl, "START_AUDIO")
}

func TestWS_CommandToUnknownTargetIsDropped(t *testing.T) {
	_, addr := startBroker(t, 19095)

	dev := dialDevice(t, addr, "cam-a", "A")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, ctrl, "update_config", map[string]any{"targetId": "ghost", "quality": "low"})

	expectNoEvent(t, dev, "UPDATE_CONFIG")
}

// ─── Media Relay Tests ─────────────────────────────────────────────

func TestWS_AudioStreamFansOutToEveryone(t *testing.T) {
	_, addr := startBroker(t, 19096)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, dev, "audio_stream", "UklGRiQAAABXQVZF")

	var wrapped struct {
		DeviceID string          `json:"deviceId"`
		Data     json.RawMessage `json:"data"`
	}

	data := awaitEvent(t, ctrl, "audio_data")
	if err := json.Unmarshal(data, &wrapped); err != nil {
		t.Fatalf("decode audio_data: %v", err)
	}
	if wrapped.DeviceID != "cam-1" {
		t.Errorf("audio_data deviceId = %q, want cam-1", wrapped.DeviceID)
	}
	if string(wrapped.Data) != `"UklGRiQAAABXQVZF"` {
		t.Errorf("audio_data payload = %s, want original chunk", wrapped.Data)
	}

	// Media fan-out includes the sender
	awaitEvent(t, dev, "audio_data")
}

func TestWS_CameraStatusSkipsSender(t *testing.T) {
	_, addr := startBroker(t, 19097)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, dev, "camera_status", map[string]any{"recording": true})

	data := awaitEvent(t, ctrl, "camera_status")
	var status map[string]any
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode camera_status: %v", err)
	}
	if status["recording"] != true {
		t.Errorf("camera_status recording = %v, want true", status["recording"])
	}

	expectNoEvent(t, dev, "camera_status")
}

func TestWS_PermissionReportStampedWithSender(t *testing.T) {
	_, addr := startBroker(t, 19098)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, dev, "permission_report", map[string]any{"camera": true, "microphone": false})

	data := awaitEvent(t, ctrl, "permission_report")
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode permission_report: %v", err)
	}
	if report["deviceId"] != "cam-1" {
		t.Errorf("report deviceId = %v, want cam-1", report["deviceId"])
	}
	if report["camera"] != true {
		t.Errorf("report camera = %v, want true", report["camera"])
	}
}

func TestWS_LogRelayedWithSourcePrefix(t *testing.T) {
	_, addr := startBroker(t, 19099)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, dev, "log", "motion detector armed")

	data := awaitEvent(t, ctrl, "server_log")
	var line string
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("decode server_log: %v", err)
	}
	if line != "[cam-1] motion detector armed" {
		t.Errorf("server_log = %q, want prefixed line", line)
	}
}

// ─── WebRTC Signalling Tests ───────────────────────────────────────

func TestWS_OfferTargetedAndUnwrapped(t *testing.T) {
	_, addr := startBroker(t, 19100)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	// Double-encoded payload: the offer object serialised into a JSON string.
	inner, _ := json.Marshal(map[string]any{"targetId": "cam-1", "type": "offer", "sdp": "v=0"})
	sendEvent(t, ctrl, "webrtc_offer", string(inner))

	data := awaitEvent(t, dev, "webrtc_offer")
	var offer map[string]any
	if err := json.Unmarshal(data, &offer); err != nil {
		t.Fatalf("offer should arrive as an object, got %s: %v", data, err)
	}
	if offer["sdp"] != "v=0" {
		t.Errorf("offer sdp = %v, want v=0", offer["sdp"])
	}
}

func TestWS_ICECandidateDeliveredAsEncodedString(t *testing.T) {
	_, addr := startBroker(t, 19101)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, ctrl, "webrtc_ice_candidate", map[string]any{
		"targetId": "cam-1",
		"candidate": map[string]any{
			"candidate":     "candidate:1 1 UDP 2122252543 192.0.2.1 54400 typ host",
			"sdpMid":        "0",
			"sdpMLineIndex": 0,
		},
	})

	data := awaitEvent(t, dev, "webrtc_ice_candidate")

	// Targeted candidates travel as a JSON-encoded string
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		t.Fatalf("candidate should arrive as a string, got %s: %v", data, err)
	}
	var candidate map[string]any
	if err := json.Unmarshal([]byte(encoded), &candidate); err != nil {
		t.Fatalf("decode inner candidate: %v", err)
	}
	if candidate["sdpMid"] != "0" {
		t.Errorf("candidate sdpMid = %v, want 0", candidate["sdpMid"])
	}
}

func TestWS_AnswerBroadcastToOthers(t *testing.T) {
	_, addr := startBroker(t, 19102)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, dev, "webrtc_answer", map[string]any{"type": "answer", "sdp": "v=0"})

	data := awaitEvent(t, ctrl, "webrtc_answer")
	var answer map[string]any
	if err := json.Unmarshal(data, &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer["type"] != "answer" {
		t.Errorf("answer type = %v, want answer", answer["type"])
	}
}

// ─── Liveness Tests ────────────────────────────────────────────────

func TestWS_HeartbeatPongAndLastSeen(t *testing.T) {
	srv, addr := startBroker(t, 19103)

	dev := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sent := time.Now().UnixMilli()
	sendEvent(t, dev, "heartbeat", map[string]any{"timestamp": sent})

	data := awaitEvent(t, dev, "pong_response")
	var pong struct {
		ServerTime int64 `json:"serverTime"`
		ClientTime int64 `json:"clientTime"`
		Latency    int64 `json:"latency"`
	}
	if err := json.Unmarshal(data, &pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}

	if pong.ServerTime <= 0 {
		t.Errorf("serverTime = %d, want > 0", pong.ServerTime)
	}
	if pong.ClientTime != sent {
		t.Errorf("clientTime = %d, want %d", pong.ClientTime, sent)
	}
	if pong.Latency < 0 {
		t.Errorf("latency = %d, want >= 0", pong.Latency)
	}

	session, ok := srv.sessions.Lookup("cam-1")
	if !ok {
		t.Fatal("session missing after heartbeat")
	}
	if session.LastSeen == nil {
		t.Error("heartbeat did not update lastSeen")
	}

	// Heartbeats stay between the device and the broker
	expectNoEvent(t, ctrl, relay.EventPongResponse)
}

func TestWS_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	_, addr := startBroker(t, 19104)

	dev := dialDevice(t, addr, "cam-1", "Front Door")

	if err := dev.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	if err := dev.WriteMessage(websocket.TextMessage, []byte(`{"data":{"no":"event"}}`)); err != nil {
		t.Fatalf("write frame without event: %v", err)
	}

	// Connection survives: a heartbeat still gets its pong
	sendEvent(t, dev, "heartbeat", map[string]any{"timestamp": time.Now().UnixMilli()})
	awaitEvent(t, dev, "pong_response")
}

// ─── Identity Tests ────────────────────────────────────────────────

func TestWS_AnonymousDeviceGetsSurrogateID(t *testing.T) {
	_, addr := startBroker(t, 19105)

	dialDevice(t, addr, "", "")
	ctrl := dialController(t, addr)

	roster := awaitRoster(t, ctrl, 1)
	if !strings.HasPrefix(roster[0].ID, "anon-") {
		t.Errorf("surrogate deviceId = %q, want anon- prefix", roster[0].ID)
	}
	if roster[0].Name != device.DefaultDeviceName {
		t.Errorf("deviceName = %q, want %q", roster[0].Name, device.DefaultDeviceName)
	}
}

func TestWS_AnonymousDeviceRejectedWhenDisabled(t *testing.T) {
	_, addr := startBroker(t, 19106, func(d *Deps) {
		d.Registry.AllowAnonymousDevices = false
	})

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?role=device", nil)
	if err == nil {
		t.Fatal("expected handshake to fail for anonymous device")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("handshake status = %v, want 400", resp)
	}

	// A declared identity still connects fine
	dialDevice(t, addr, "cam-1", "Front Door")
}

func TestWS_SupersededConnectionClosed(t *testing.T) {
	_, addr := startBroker(t, 19107)

	first := dialDevice(t, addr, "cam-1", "Front Door")
	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	second := dialDevice(t, addr, "cam-1", "Front Door")

	// The older connection gets closed by the broker
	//nolint:errcheck // Deadline failure surfaces as a read error below
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	if err == nil {
		t.Fatal("superseded connection should be closed")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.Fatal("superseded connection was not closed within deadline")
	}

	// Commands now reach the replacement connection
	sendEvent(t, ctrl, "update_config", map[string]any{"targetId": "cam-1"})
	awaitEvent(t, second, "UPDATE_CONFIG")
}

func TestWS_StaleDisconnectKeepsNewSession(t *testing.T) {
	srv, addr := startBroker(t, 19108, func(d *Deps) {
		d.Registry.CloseSuperseded = false
	})

	first := dialDevice(t, addr, "cam-1", "Front Door")
	second := dialDevice(t, addr, "cam-1", "Front Door")

	// The superseded connection disconnects after the takeover; the new
	// session must survive its late goodbye.
	first.Close()
	time.Sleep(200 * time.Millisecond)

	if _, ok := srv.sessions.Lookup("cam-1"); !ok {
		t.Fatal("stale disconnect evicted the replacement session")
	}

	ctrl := dialController(t, addr)
	awaitRoster(t, ctrl, 1)

	sendEvent(t, ctrl, "update_config", map[string]any{"targetId": "cam-1"})
	awaitEvent(t, second, "UPDATE_CONFIG")
}

// ─── Directory Integration Tests ───────────────────────────────────

func TestWS_DeviceRegistrationPersistedToDirectory(t *testing.T) {
	srv, addr := startBroker(t, 19109, withDirectory(t))

	dialDevice(t, addr, "cam-1", "Front Door")
	time.Sleep(200 * time.Millisecond)

	rec, err := srv.directory.GetByID(context.Background(), "cam-1")
	if err != nil {
		t.Fatalf("GetByID after connect: %v", err)
	}
	if rec.Name != "Front Door" {
		t.Errorf("directory name = %q, want Front Door", rec.Name)
	}
	if rec.SessionCount != 1 {
		t.Errorf("session_count = %d, want 1", rec.SessionCount)
	}
}
