// Package sse implements the byte-oriented incremental Server-Sent Events
// parser. It is purely additive: Process(chunk) returns
// zero or more fully-formed events and retains the unterminated tail for
// the next call, so feeding the same byte stream through any partition of
// chunks yields the same sequence of events.
package sse

import (
	"bytes"
	"strconv"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Event string
	Data  string
	ID    string
	Retry *uint64
}

type pendingEvent struct {
	eventType string
	dataLines []string
	id        string
	retry     *uint64
	any       bool
}

var bomBytes = []byte{0xEF, 0xBB, 0xBF}

// Parser holds the incremental parse state: the unterminated buffer
// tail, the event under construction, and whether a BOM
// decision has been made yet, since that's the only state that matters
// before the first event.
type Parser struct {
	tail        []byte
	cur         pendingEvent
	bomPending  []byte
	bomResolved bool
}

// New returns a fresh parser with no held state.
func New() *Parser {
	return &Parser{}
}

// Process consumes an arbitrary chunk of bytes and returns the events that
// became complete as a result, in order. Incomplete trailing data (a
// partial line, a lone trailing '\r' that might be the start of "\r\n", or
// a partial leading BOM) is retained for the next call.
func (p *Parser) Process(chunk []byte) []Event {
	data := chunk
	if !p.bomResolved {
		p.bomPending = append(p.bomPending, data...)
		if len(p.bomPending) < len(bomBytes) {
			return nil
		}
		if bytes.HasPrefix(p.bomPending, bomBytes) {
			data = p.bomPending[len(bomBytes):]
		} else {
			data = p.bomPending
		}
		p.bomResolved = true
		p.bomPending = nil
	}

	// A held tail of exactly "\r" already ended its line; a '\n' right
	// after it completes the same "\r\n" terminator and is skipped.
	pendingCR := len(p.tail) == 1 && p.tail[0] == '\r'
	buf := append(p.tail, data...)
	p.tail = nil
	if pendingCR {
		if len(buf) == 1 {
			p.tail = buf
			return nil
		}
		buf = buf[1:]
		if buf[0] == '\n' {
			buf = buf[1:]
		}
	}

	var events []Event
	for {
		idx := bytes.IndexAny(buf, "\r\n")
		if idx == -1 {
			break
		}
		switch buf[idx] {
		case '\n':
			if ev, ok := p.handleLine(string(buf[:idx])); ok {
				events = append(events, ev)
			}
			buf = buf[idx+1:]
		case '\r':
			if idx+1 == len(buf) {
				// A lone '\r' at the very end of the buffer ends its line
				// but might be the first half of "\r\n" split across
				// chunks — handle the line now and hold the '\r' for the
				// next call.
				if ev, ok := p.handleLine(string(buf[:idx])); ok {
					events = append(events, ev)
				}
				p.tail = buf[idx:]
				return events
			}
			if buf[idx+1] == '\n' {
				if ev, ok := p.handleLine(string(buf[:idx])); ok {
					events = append(events, ev)
				}
				buf = buf[idx+2:]
			} else {
				if ev, ok := p.handleLine(string(buf[:idx])); ok {
					events = append(events, ev)
				}
				buf = buf[idx+1:]
			}
		}
	}
	p.tail = buf
	return events
}

func (p *Parser) handleLine(line string) (Event, bool) {
	if line == "" {
		return p.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field := line
	value := ""
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		field = line[:idx]
		value = line[idx+1:]
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		p.cur.eventType = value
		p.cur.any = true
	case "data":
		p.cur.dataLines = append(p.cur.dataLines, value)
		p.cur.any = true
	case "id":
		if !strings.ContainsRune(value, 0) {
			p.cur.id = value
			p.cur.any = true
		}
	case "retry":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			p.cur.retry = &n
			p.cur.any = true
		}
	}
	return Event{}, false
}

func (p *Parser) dispatch() (Event, bool) {
	cur := p.cur
	p.cur = pendingEvent{}
	if !cur.any {
		return Event{}, false
	}
	return Event{
		Event: cur.eventType,
		Data:  strings.Join(cur.dataLines, "\n"),
		ID:    cur.id,
		Retry: cur.retry,
	}, true
}
