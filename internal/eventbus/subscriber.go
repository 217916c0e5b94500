package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mlnas/MirrorScan/internal/models"
)

// ScanService is the orchestrator surface the subscriber drives. Defined
// here to avoid importing the orchestrator package.
type ScanService interface {
	Submit(ctx context.Context, req models.ScanRequest) (string, error)
	Run(ctx context.Context, scanID string) error
	Cancel(scanID string) error
}

// CancelRequest is the payload on scans.cancel.
type CancelRequest struct {
	ScanID string `json:"scan_id"`
}

// Subscriber consumes scan submissions and cancellations from NATS and
// drives the orchestrator. The HTTP/auth tier lives outside this engine and
// talks to it through these subjects.
type Subscriber struct {
	conn      *nats.Conn
	submitSub *nats.Subscription
	cancelSub *nats.Subscription
	service   ScanService
}

// NewSubscriber connects to NATS for command consumption.
func NewSubscriber(natsURL string, service ScanService) (*Subscriber, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Scanner (Sub) connected to NATS at %s", natsURL)

	return &Subscriber{conn: conn, service: service}, nil
}

// Start subscribes to the command subjects.
func (s *Subscriber) Start() error {
	var err error

	log.Printf("Subscribing to 'scans.submit'...")
	s.submitSub, err = s.conn.Subscribe("scans.submit", func(msg *nats.Msg) {
		s.handleSubmit(msg)
	})
	if err != nil {
		return err
	}

	log.Printf("Subscribing to 'scans.cancel'...")
	s.cancelSub, err = s.conn.Subscribe("scans.cancel", func(msg *nats.Msg) {
		s.handleCancel(msg)
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Subscriber) handleSubmit(msg *nats.Msg) {
	var req models.ScanRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Printf("Failed to unmarshal scan submission: %v", err)
		s.reply(msg, map[string]string{"error": "malformed submission"})
		return
	}

	scanID, err := s.service.Submit(context.Background(), req)
	if err != nil {
		log.Printf("Rejected scan submission: %v", err)
		s.reply(msg, map[string]string{"error": err.Error()})
		return
	}

	s.reply(msg, map[string]string{"scan_id": scanID})

	// Detach the run from the submission; the caller polls for status.
	go func() {
		if err := s.service.Run(context.Background(), scanID); err != nil {
			log.Printf("Scan %s run error: %v", scanID, err)
		}
	}()
}

func (s *Subscriber) handleCancel(msg *nats.Msg) {
	var req CancelRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Printf("Failed to unmarshal cancel request: %v", err)
		return
	}

	if err := s.service.Cancel(req.ScanID); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			log.Printf("Cancel rejected for scan %s: %v", req.ScanID, err)
		} else {
			log.Printf("Cancel failed for scan %s: %v", req.ScanID, err)
		}
		s.reply(msg, map[string]string{"error": err.Error()})
		return
	}

	s.reply(msg, map[string]string{"scan_id": req.ScanID, "status": "cancelling"})
}

// reply answers request-style messages; fire-and-forget publishes have no
// reply subject and are skipped.
func (s *Subscriber) reply(msg *nats.Msg, payload map[string]string) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Printf("Failed to reply on %s: %v", msg.Subject, err)
	}
}

// Close unsubscribes and drops the connection.
func (s *Subscriber) Close() {
	if s.submitSub != nil {
		s.submitSub.Unsubscribe()
	}
	if s.cancelSub != nil {
		s.cancelSub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
		log.Printf("Scanner (Sub) disconnected from NATS")
	}
}

// IsConnected returns true if connected to NATS.
func (s *Subscriber) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}
