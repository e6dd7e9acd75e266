// Package probe decouples packet capture from classification over NATS,
// the same pub/sub split the teacher's cmd/ns-probe uses: one process
// captures and publishes raw PacketRecords, another subscribes and runs
// them through the classifier. This is a domain-stack addition to
// spec.md's single-process core (see SPEC_FULL.md §6).
package probe

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"connmon/internal/config"
	"connmon/internal/model"
)

// Publisher serializes captured PacketRecords as JSON and publishes them to
// a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a Publisher bound to cfg.Subject.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("probe: connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes and publishes one PacketRecord.
func (p *Publisher) Publish(rec *model.PacketRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("probe: marshal packet record: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
