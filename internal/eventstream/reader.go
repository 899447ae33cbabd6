package eventstream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// one dispatched server-sent event
type Event struct {
	ID   string
	Type string
	Data string
}

// incremental server-sent events parser. events are returned as soon as
// their terminating blank line arrives, so it works on open-ended bodies.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// returns the next event. io.EOF means the stream ended cleanly between
// events; a partial event at EOF is dispatched first.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
		seen    bool
	)

	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}

		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if seen && (hasData || ev.Type != "") {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}

			if eof {
				return Event{}, io.EOF
			}

			seen = false
			continue
		}

		seen = true

		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")

			switch field {
			case "event":
				ev.Type = value
			case "data":
				data = append(data, value)
				hasData = true
			case "id":
				ev.ID = value
			}
		}

		if eof {
			if hasData || ev.Type != "" {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}

			return Event{}, io.EOF
		}
	}
}
