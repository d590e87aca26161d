package stream

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one dispatched server-sent event.
type Event struct {
	ID    string
	Type  string
	Data  string
	Retry time.Duration
}

// Reader splits an event stream into events.
type Reader struct {
	r      *bufio.Reader
	lastID string
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event that carries data. The event id persists
// across events the way an EventSource tracks its last event id. A retry
// field without data is returned on its own so callers can honour it.
func (r *Reader) Next() (Event, error) {
	var (
		data    strings.Builder
		hasData bool
		event   Event
	)
	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return Event{}, io.EOF
			}
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
		}
		if line == "" {
			if hasData {
				event.ID = r.lastID
				event.Data = data.String()
				if event.Type == "" {
					event.Type = "message"
				}
				return event, nil
			}
			if event.Retry > 0 {
				return event, nil
			}
			event = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			event.Type = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if ms, convErr := strconv.ParseUint(value, 10, 32); convErr == nil {
				event.Retry = time.Duration(ms) * time.Millisecond
			}
		}
		if err != nil {
			// Stream ended without a terminating blank line: the pending
			// event is discarded, as an EventSource would.
			return Event{}, io.EOF
		}
	}
}

// LastID returns the most recent event id seen on the stream.
func (r *Reader) LastID() string {
	return r.lastID
}

func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}
