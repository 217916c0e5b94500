// Package eventbus publishes scan lifecycle events over NATS and consumes
// scan commands submitted by the edge tier. Subjects:
//
//	scans.transitions      one event per lifecycle state change
//	scans.completed        the final report of each terminal scan
//	containment.requested  containment commands for the external executor
//	scans.submit           inbound scan submissions
//	scans.cancel           inbound cancellation requests
package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/scan"
)

// Publisher publishes events to NATS.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with reconnect handling.
func NewPublisher(natsURL string) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Scanner (Pub) connected to NATS at %s", natsURL)

	return &Publisher{conn: conn}, nil
}

// PublishTransition publishes one lifecycle state change.
func (p *Publisher) PublishTransition(t scan.Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	if err := p.conn.Publish("scans.transitions", data); err != nil {
		return err
	}

	log.Printf("Published transition: scan %s %s -> %s", t.ScanID, t.From, t.To)
	return nil
}

// CompletedEvent carries the terminal snapshot of a scan.
type CompletedEvent struct {
	ScanID    string             `json:"scan_id"`
	State     models.ScanState   `json:"state"`
	Report    *models.ScanReport `json:"report,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// PublishCompleted publishes the final report of a terminal scan.
func (p *Publisher) PublishCompleted(rec *models.ScanRecord) error {
	event := CompletedEvent{
		ScanID:    rec.ID,
		State:     rec.State,
		Report:    rec.Report,
		Timestamp: time.Now().Unix(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish("scans.completed", data); err != nil {
		return err
	}

	log.Printf("Published completed scan %s (%s)", rec.ID, rec.State)
	return nil
}

// PublishContainmentRequest hands a containment command to the external
// executor listening on the bus.
func (p *Publisher) PublishContainmentRequest(action *models.ContainmentAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return err
	}

	if err := p.conn.Publish("containment.requested", data); err != nil {
		return err
	}

	log.Printf("Published containment request: scan %s kind=%s reason=%s",
		action.ScanID, action.Kind, action.Reason)
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Println("Scanner (Pub) disconnected from NATS")
	}
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// NATSExecutor satisfies the containment executor contract by publishing the
// action on the bus instead of driving infrastructure directly.
type NATSExecutor struct {
	publisher *Publisher
}

// NewNATSExecutor wraps a publisher as a containment executor.
func NewNATSExecutor(publisher *Publisher) *NATSExecutor {
	return &NATSExecutor{publisher: publisher}
}

// Execute publishes the containment request.
func (e *NATSExecutor) Execute(action *models.ContainmentAction) error {
	if e.publisher == nil || !e.publisher.IsConnected() {
		return fmt.Errorf("containment executor unavailable: not connected to NATS")
	}
	return e.publisher.PublishContainmentRequest(action)
}
