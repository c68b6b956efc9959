// Package relay implements event routing between device agents and
// controller dashboards for Farsight Core.
//
// Every event arriving on a connection is dispatched by a fixed per-name
// policy: unicast to the device resolved from the payload's target
// address, broadcast to every peer except the sender, or broadcast to all
// peers including the sender. The router understands nothing about the
// payloads it forwards beyond the minimum needed to route them; WebRTC
// negotiation in particular is relayed opaquely.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                          relay package                             │
//	│                                                                    │
//	│  ┌────────────────┐   ┌────────────────┐   ┌────────────────┐     │
//	│  │     Router     │   │  Wire contract │   │    Payloads    │     │
//	│  │  (router.go)   │   │  (events.go)   │   │  (payload.go)  │     │
//	│  │                │   │                │   │                │     │
//	│  │ • peer set     │   │ • event names  │   │ • object/string│     │
//	│  │ • dispatch     │   │ • command      │   │   union decode │     │
//	│  │ • roster push  │   │   renames      │   │ • target addrs │     │
//	│  │ • heartbeats   │   │ • envelope     │   │                │     │
//	│  └───────┬────────┘   └────────────────┘   └────────────────┘     │
//	│          │ lookups                                                 │
//	│          ▼                                                         │
//	│   device.Registry                                                  │
//	└────────────────────────────────────────────────────────────────────┘
//
// # Dispatch Policies
//
//   - Dashboard commands (get_status, start_video, ...) are renamed to
//     their upper-snake agent form and unicast to the targetId named in
//     the payload; with no target they broadcast to every other peer.
//   - Media frames (audio_stream, video_frame) broadcast to all peers
//     wrapped as {deviceId, data}.
//   - WebRTC negotiation relays under the same event name: offers and
//     ICE candidates honour a payload targetId, answers always broadcast
//     to the other peers.
//   - heartbeat answers pong_response to the sender alone and records
//     device liveness.
//
// # Failure Model
//
// Nothing in this package fails loudly. Malformed payloads fall back to
// opaque pass-through, unicasts to unknown devices are silent no-ops, and
// sends to closing peers are dropped by the transport. One misbehaving
// connection can never take down routing for the rest.
package relay
