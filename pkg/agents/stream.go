package agents

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Wire event names emitted by the service.
const (
	wireMessageDelta   = "thread.message.delta"
	wireRequiresAction = "thread.run.requires_action"
	wireRunCompleted   = "thread.run.completed"
	wireRunFailed      = "thread.run.failed"
	wireDone           = "done"
)

// messageDelta is the payload of a thread.message.delta wire event.
type messageDelta struct {
	Delta struct {
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

// Stream reads server-sent events from an open run and surfaces them as
// tagged Event values. It is not safe for concurrent use; a run stream has
// exactly one consumer.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the next event from the stream. It returns io.EOF once the
// stream has delivered its final event. Unrecognized wire events are skipped.
func (s *Stream) Next() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}

	for {
		name, data, err := s.readWireEvent()
		if err != nil {
			s.done = true
			return Event{}, err
		}

		switch name {
		case wireMessageDelta:
			var md messageDelta
			if err := json.Unmarshal(data, &md); err != nil {
				return Event{}, fmt.Errorf("parsing message delta: %w", err)
			}
			var sb strings.Builder
			for _, c := range md.Delta.Content {
				if c.Type == "text" {
					sb.WriteString(c.Text.Value)
				}
			}
			return Event{Kind: EventMessageDelta, Delta: sb.String()}, nil

		case wireRequiresAction, wireRunCompleted, wireRunFailed:
			var run Run
			if err := json.Unmarshal(data, &run); err != nil {
				return Event{}, fmt.Errorf("parsing run event %s: %w", name, err)
			}
			switch name {
			case wireRequiresAction:
				return Event{Kind: EventRequiresAction, Run: &run}, nil
			case wireRunCompleted:
				return Event{Kind: EventRunCompleted, Run: &run}, nil
			default:
				return Event{Kind: EventRunFailed, Run: &run}, nil
			}

		case wireDone:
			s.done = true
			return Event{Kind: EventDone}, nil

		default:
			// Skip event types this consumer does not handle
			// (run steps, message lifecycle markers).
		}
	}
}

// readWireEvent scans one "event:"/"data:" block terminated by a blank line.
// Multi-line data fields are joined per the SSE format.
func (s *Stream) readWireEvent() (string, []byte, error) {
	var name string
	var data []string
	seen := false

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if seen {
				return name, []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			seen = true
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			seen = true
		case strings.HasPrefix(line, ":"):
			// comment line, keep-alive
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading stream: %w", err)
	}
	if seen {
		return name, []byte(strings.Join(data, "\n")), nil
	}
	return "", nil, io.EOF
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
