package mqtt

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farsight-labs/farsight-core/internal/device"
)

// presenceQueueSize bounds the number of pending presence publishes.
// Session churn beyond this drops the oldest-unsent updates rather than
// stalling connection handling.
const presenceQueueSize = 256

// publisher is the slice of Client that PresenceBridge needs.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// presenceJob is a prebuilt publish queued for the worker.
type presenceJob struct {
	topic   string
	payload []byte
}

// PresenceBridge mirrors session membership onto retained MQTT topics.
//
// The router calls PublishPresence and PublishRoster from its connection
// handling paths, so both enqueue and return immediately. A single worker
// goroutine performs the actual publishes in order; a full queue drops the
// update and increments the drop counter.
type PresenceBridge struct {
	pub    publisher
	qos    byte
	topics Topics

	queue chan presenceJob
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	dropped   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// presenceStatus is the retained per-device availability payload.
type presenceStatus struct {
	DeviceID  string `json:"deviceId"`
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
}

// rosterStatus is the retained roster snapshot payload.
type rosterStatus struct {
	Devices   []device.Session `json:"devices"`
	Count     int              `json:"count"`
	Timestamp string           `json:"timestamp"`
}

// NewPresenceBridge creates a presence bridge publishing through client
// at the given QoS and starts its worker goroutine.
//
// Callers must Close the bridge before closing the client.
func NewPresenceBridge(client *Client, qos byte) *PresenceBridge {
	return newPresenceBridge(client, qos)
}

func newPresenceBridge(pub publisher, qos byte) *PresenceBridge {
	b := &PresenceBridge{
		pub:   pub,
		qos:   qos,
		queue: make(chan presenceJob, presenceQueueSize),
		done:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// SetLogger sets a logger for publish failures. If not set, failures are
// counted but not logged.
func (b *PresenceBridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *PresenceBridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// PublishPresence enqueues a retained availability update for a device.
// Never blocks.
func (b *PresenceBridge) PublishPresence(deviceID string, online bool) {
	payload, err := json.Marshal(presenceStatus{
		DeviceID:  deviceID,
		Online:    online,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	b.enqueue(presenceJob{topic: b.topics.DevicePresence(deviceID), payload: payload})
}

// PublishRoster enqueues a retained snapshot of all registered devices.
// Never blocks.
func (b *PresenceBridge) PublishRoster(roster []device.Session) {
	if roster == nil {
		roster = []device.Session{}
	}
	payload, err := json.Marshal(rosterStatus{
		Devices:   roster,
		Count:     len(roster),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	b.enqueue(presenceJob{topic: b.topics.CoreRoster(), payload: payload})
}

// Dropped returns the number of updates discarded because the queue was full.
func (b *PresenceBridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the worker after draining queued updates. Safe to call more
// than once. Updates enqueued after Close are silently discarded.
func (b *PresenceBridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
}

func (b *PresenceBridge) enqueue(job presenceJob) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- job:
	default:
		b.dropped.Add(1)
		if logger := b.getLogger(); logger != nil {
			logger.Warn("presence queue full, update dropped", "topic", job.topic)
		}
	}
}

func (b *PresenceBridge) worker() {
	defer b.wg.Done()

	for {
		select {
		case job := <-b.queue:
			b.publish(job)
		case <-b.done:
			// Drain whatever was queued before shutdown so the broker
			// ends up with the final membership state.
			for {
				select {
				case job := <-b.queue:
					b.publish(job)
				default:
					return
				}
			}
		}
	}
}

func (b *PresenceBridge) publish(job presenceJob) {
	if err := b.pub.Publish(job.topic, job.payload, b.qos, true); err != nil {
		if logger := b.getLogger(); logger != nil {
			logger.Warn("presence publish failed", "topic", job.topic, "error", err)
		}
	}
}
