package dash

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PoseReport is published to <prefix>/pose.
type PoseReport struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Yaw       float64 `json:"yaw"`
	PixelX    float64 `json:"pixelX"`
	PixelY    float64 `json:"pixelY"`
	Stale     bool    `json:"stale"`
	Timestamp int64   `json:"timestamp"`
}

// StatusReport is published to <prefix>/status.
type StatusReport struct {
	Status     RobotStatus     `json:"status"`
	Label      string          `json:"label"`
	Connection ConnectionState `json:"connection"`
	View       ViewMode        `json:"view"`
	Timestamp  int64           `json:"timestamp"`
}

// Publisher mirrors console snapshots onto retained MQTT topics.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool

	mu      sync.Mutex
	last    Snapshot
	pending *Snapshot
	wake    chan struct{}
}

// NewPublisher creates a snapshot publisher. If client is nil, publishing is
// disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget
		retain:        true, // late subscribers get the latest state
		wake:          make(chan struct{}, 1),
	}
}

// Observe queues a snapshot for publishing. Only the newest queued snapshot
// is kept, so a slow broker never stalls the console. Safe to register with
// Console.Subscribe.
func (p *Publisher) Observe(s Snapshot) {
	p.mu.Lock()
	p.pending = &s
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run publishes queued snapshots until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.mu.Lock()
			s := p.pending
			p.pending = nil
			p.mu.Unlock()
			if s != nil {
				if err := p.PublishSnapshot(*s); err != nil {
					Logf("[MQTT] Publish failed: %v", err)
				}
			}
		}
	}
}

// PublishSnapshot publishes whichever of pose, status and telemetry changed
// since the previous call.
func (p *Publisher) PublishSnapshot(s Snapshot) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	prev := p.last
	p.last = s
	p.mu.Unlock()

	now := time.Now().Unix()

	if s.Pose != nil && (prev.Pose == nil || *prev.Pose != *s.Pose || prev.PoseStale != s.PoseStale) {
		report := PoseReport{X: s.Pose.X, Y: s.Pose.Y, Yaw: s.Pose.Yaw, Stale: s.PoseStale, Timestamp: now}
		if s.Map != nil {
			px := WorldToPixel(*s.Map, s.Pose.X, s.Pose.Y)
			report.PixelX, report.PixelY = px.X, px.Y
		}
		if err := p.publish("pose", report); err != nil {
			return err
		}
	}

	if prev.Version == 0 || prev.Status != s.Status || prev.Connection != s.Connection || prev.View != s.View {
		report := StatusReport{
			Status:     s.Status,
			Label:      s.StatusText,
			Connection: s.Connection,
			View:       s.View,
			Timestamp:  now,
		}
		if err := p.publish("status", report); err != nil {
			return err
		}
	}

	if prev.Version == 0 || prev.Metrics != s.Metrics {
		msg := map[string]interface{}{
			"metrics":   s.Metrics,
			"timestamp": now,
		}
		if err := p.publish("telemetry", msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(sub string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, sub)
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", sub, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	Debugf("[MQTT] Published %s (%d bytes)", topic, len(payload))
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
