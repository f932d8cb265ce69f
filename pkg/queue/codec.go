package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSeparator is the field separator used when none is configured.
const DefaultSeparator = `\`

// WorkflowMarker is the second field of a workflow message body.
const WorkflowMarker = "workflow"

// QueryMessage is the payload of a regular execute message.
type QueryMessage struct {
	RequestID int64
	Dataset   string
	Product   string
	Query     json.RawMessage
	Format    string
}

// WorkflowMessage carries a task DAG instead of a single query.
type WorkflowMessage struct {
	RequestID int64
	TaskList  json.RawMessage
}

// Codec frames and parses queue message bodies.
type Codec struct {
	sep string
}

// NewCodec creates a codec with the given single-character separator.
func NewCodec(separator string) Codec {
	if separator == "" {
		separator = DefaultSeparator
	}
	return Codec{sep: separator}
}

// ValidateField reports an error when a value cannot travel as a message
// field. There is no escaping in this framing, so the gateway uses this to
// reject documents that could never be published.
func (c Codec) ValidateField(field string) error {
	if strings.Contains(field, c.sep) {
		return fmt.Errorf("contains the reserved separator %q", c.sep)
	}
	return nil
}

// EncodeQuery renders a query message body. Fields may not contain the
// separator; there is no escaping in this framing.
func (c Codec) EncodeQuery(m QueryMessage) (string, error) {
	fields := []string{
		strconv.FormatInt(m.RequestID, 10),
		m.Dataset,
		m.Product,
		string(m.Query),
		m.Format,
	}
	for i, f := range fields {
		if err := c.ValidateField(f); err != nil {
			return "", fmt.Errorf("message field %d %s", i, err)
		}
	}
	return strings.Join(fields, c.sep), nil
}

// EncodeWorkflow renders a workflow message body.
func (c Codec) EncodeWorkflow(m WorkflowMessage) (string, error) {
	task := string(m.TaskList)
	if err := c.ValidateField(task); err != nil {
		return "", fmt.Errorf("task list %s", err)
	}
	return strconv.FormatInt(m.RequestID, 10) + c.sep + WorkflowMarker + c.sep + task, nil
}

// IsWorkflow reports whether a body is a workflow message.
func (c Codec) IsWorkflow(body string) bool {
	parts := strings.SplitN(body, c.sep, 3)
	return len(parts) == 3 && parts[1] == WorkflowMarker
}

// DecodeQuery parses a query message body.
func (c Codec) DecodeQuery(body string) (QueryMessage, error) {
	parts := strings.Split(body, c.sep)
	if len(parts) != 5 {
		return QueryMessage{}, fmt.Errorf("malformed query message: expected 5 fields, got %d", len(parts))
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return QueryMessage{}, fmt.Errorf("malformed request id %q: %w", parts[0], err)
	}
	return QueryMessage{
		RequestID: id,
		Dataset:   parts[1],
		Product:   parts[2],
		Query:     json.RawMessage(parts[3]),
		Format:    parts[4],
	}, nil
}

// DecodeWorkflow parses a workflow message body.
func (c Codec) DecodeWorkflow(body string) (WorkflowMessage, error) {
	parts := strings.SplitN(body, c.sep, 3)
	if len(parts) != 3 || parts[1] != WorkflowMarker {
		return WorkflowMessage{}, fmt.Errorf("malformed workflow message")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return WorkflowMessage{}, fmt.Errorf("malformed request id %q: %w", parts[0], err)
	}
	return WorkflowMessage{RequestID: id, TaskList: json.RawMessage(parts[2])}, nil
}

// RequestID extracts the request id from any message body without fully
// decoding it.
func (c Codec) RequestID(body string) (int64, error) {
	idx := strings.Index(body, c.sep)
	if idx < 0 {
		return 0, fmt.Errorf("malformed message: missing separator")
	}
	id, err := strconv.ParseInt(body[:idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed request id %q: %w", body[:idx], err)
	}
	return id, nil
}
