package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentpack/logging"
	"github.com/nats-io/nats.go"
)

// LogSink writes events through a logging.Logger.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a sink logging every event at debug level, failures at error level.
func NewLogSink(logger logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogSink{logger: logger}
}

// Handle implements Sink.
func (s *LogSink) Handle(e Event) error {
	args := []any{"run_id", e.RunID, "type", string(e.Type)}
	if e.Agent != "" {
		args = append(args, "agent", e.Agent)
	}
	if e.InputIndex != nil {
		args = append(args, "input_index", *e.InputIndex)
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Type == TypeTaskFailed {
		s.logger.Error(msg, args...)
		return nil
	}
	s.logger.Debug(msg, args...)
	return nil
}

// Conn is the subset of *nats.Conn used by NATSSink.
type Conn interface {
	Publish(subj string, data []byte) error
}

// NATSSink forwards events as JSON to a NATS subject. The event type is
// appended to the base subject, e.g. "agentpack.events.task_completed".
type NATSSink struct {
	conn    Conn
	subject string
}

// NewNATSSink creates a sink publishing on conn under subject.
func NewNATSSink(conn Conn, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

// NATSConfig holds connection settings for ConnectNATS.
type NATSConfig struct {
	URL           string
	Subject       string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
}

// ConnectNATS dials the server and returns a sink plus a close function.
func ConnectNATS(cfg NATSConfig) (*NATSSink, func(), error) {
	if cfg.Name == "" {
		cfg.Name = "agentpack"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Subject == "" {
		cfg.Subject = "agentpack.events"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	closeFn := func() {
		_ = nc.Drain()
	}
	return NewNATSSink(nc, cfg.Subject), closeFn, nil
}

// Handle implements Sink.
func (s *NATSSink) Handle(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	subject := s.subject + "." + string(e.Type)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish event to %s: %w", subject, err)
	}
	return nil
}
