package events

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"import-service/internal/importer"
)

// Event subjects for the import run lifecycle.
const (
	SubjectImportStarted   = "import.run.started"
	SubjectImportCompleted = "import.run.completed"
	SubjectImportFailed    = "import.run.failed"
	SubjectImportCancelled = "import.run.cancelled"
)

// ImportEvent is the payload published for every lifecycle transition.
type ImportEvent struct {
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	RunID      string    `json:"runId"`
	TenantID   string    `json:"tenantId"`
	EntityType string    `json:"entityType"`
	TotalRows  int       `json:"totalRows"`
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	ActorID    string    `json:"actorId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher publishes import lifecycle events to NATS for the audit
// trail and downstream consumers (notifications, analytics).
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS_URL and returns a publisher.
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("import-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "import-events"),
	}, nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

// PublishRunStarted publishes import.run.started.
func (p *Publisher) PublishRunStarted(runID uuid.UUID, tenantID, entityType, actorID string, totalRows int) {
	p.publish(SubjectImportStarted, &ImportEvent{
		EventType:  SubjectImportStarted,
		RunID:      runID.String(),
		TenantID:   tenantID,
		EntityType: entityType,
		TotalRows:  totalRows,
		ActorID:    actorID,
	})
}

// PublishRunFinished publishes the terminal event matching the run's
// final status.
func (p *Publisher) PublishRunFinished(runID uuid.UUID, tenantID, entityType, actorID string, progress importer.Progress) {
	var subject string
	switch progress.Status {
	case importer.StatusCompleted:
		subject = SubjectImportCompleted
	case importer.StatusCancelled:
		subject = SubjectImportCancelled
	default:
		subject = SubjectImportFailed
	}

	p.publish(subject, &ImportEvent{
		EventType:  subject,
		RunID:      runID.String(),
		TenantID:   tenantID,
		EntityType: entityType,
		TotalRows:  progress.Total,
		Processed:  progress.Processed,
		Successful: progress.Successful,
		Failed:     progress.Failed,
		ActorID:    actorID,
	})
}

// publish fires the event asynchronously so event delivery never blocks
// or fails the import flow itself.
func (p *Publisher) publish(subject string, event *ImportEvent) {
	event.EventID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	go func() {
		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to encode import event")
			return
		}
		if err := p.conn.Publish(subject, payload); err != nil {
			p.logger.WithFields(logrus.Fields{
				"subject": subject,
				"runId":   event.RunID,
			}).WithError(err).Error("Failed to publish import event")
			return
		}
		p.logger.WithFields(logrus.Fields{
			"subject": subject,
			"runId":   event.RunID,
		}).Debug("Import event published")
	}()
}
