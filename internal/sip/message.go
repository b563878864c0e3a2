// Package sip implements the UDP SIP user agent from §4.1: message
// construction/parsing, digest authentication, the ring/call state
// machine, and the G.711 RTP session it drives.
package sip

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

// Header is a single name/value pair. Headers are kept in a slice
// rather than a map so outgoing messages serialize in the order they
// were added, matching the message-building contract in §4.1 (Via,
// Max-Forwards, From, To, Call-ID, CSeq, Contact, User-Agent,
// Content-Length, in that order).
type Header struct {
	Name  string
	Value string
}

// Message is a SIP request or response. IsRequest distinguishes the
// two; a request carries Method/RequestURI, a response carries
// StatusCode/ReasonPhrase.
type Message struct {
	IsRequest    bool
	Method       string
	RequestURI   string
	StatusCode   int
	ReasonPhrase string

	headers []Header
	Body    []byte
}

// NewRequest builds an empty request for method/uri; callers add
// headers via AddHeader/SetHeader in the required order.
func NewRequest(method, uri string) *Message {
	return &Message{IsRequest: true, Method: method, RequestURI: uri}
}

// NewResponse builds an empty response with the given status line.
func NewResponse(code int, reason string) *Message {
	return &Message{IsRequest: false, StatusCode: code, ReasonPhrase: reason}
}

// AddHeader appends a header, preserving insertion order.
func (m *Message) AddHeader(name, value string) {
	m.headers = append(m.headers, Header{Name: name, Value: value})
}

// SetHeader replaces every existing header of this name (case
// insensitive) with a single new value, appended at the position of
// the first match, or at the end if none existed.
func (m *Message) SetHeader(name, value string) {
	lower := strings.ToLower(name)
	for i, h := range m.headers {
		if strings.ToLower(h.Name) == lower {
			m.headers[i].Value = value
			m.removeHeaderAfter(i, lower)
			return
		}
	}
	m.AddHeader(name, value)
}

func (m *Message) removeHeaderAfter(keepIdx int, lowerName string) {
	out := m.headers[:keepIdx+1]
	for _, h := range m.headers[keepIdx+1:] {
		if strings.ToLower(h.Name) == lowerName {
			continue
		}
		out = append(out, h)
	}
	m.headers = out
}

// SetBody attaches a message body and sets Content-Length to match.
func (m *Message) SetBody(body []byte) {
	m.Body = body
	m.SetHeader("Content-Length", strconv.Itoa(len(body)))
}

// Header returns the first value for name, or "" if absent.
func (m *Message) Header(name string) string {
	lower := strings.ToLower(name)
	for _, h := range m.headers {
		if strings.ToLower(h.Name) == lower {
			return h.Value
		}
	}
	return ""
}

// Headers returns every value for name, in order.
func (m *Message) Headers(name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for _, h := range m.headers {
		if strings.ToLower(h.Name) == lower {
			out = append(out, h.Value)
		}
	}
	return out
}

// CSeq parses the CSeq header into its number and method.
func (m *Message) CSeq() (uint32, string, bool) {
	raw := m.Header("CSeq")
	parts := strings.Fields(raw)
	if len(parts) != 2 {
		return 0, "", false
	}
	n, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(n), parts[1], true
}

// ViaBranch extracts the branch parameter from the topmost Via header.
func (m *Message) ViaBranch() string {
	via := m.Header("Via")
	return paramValue(via, "branch")
}

func paramValue(header, key string) string {
	parts := strings.Split(header, ";")
	prefix := key + "="
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return ""
}

// String serializes the message per §4.1's wire contract: request/
// status line, headers in insertion order, blank line, body.
func (m *Message) String() string {
	var sb strings.Builder
	if m.IsRequest {
		sb.WriteString(m.Method)
		sb.WriteByte(' ')
		sb.WriteString(m.RequestURI)
		sb.WriteString(" SIP/2.0\r\n")
	} else {
		sb.WriteString("SIP/2.0 ")
		sb.WriteString(strconv.Itoa(m.StatusCode))
		sb.WriteByte(' ')
		sb.WriteString(m.ReasonPhrase)
		sb.WriteString("\r\n")
	}
	for _, h := range m.headers {
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(h.Value)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	if len(m.Body) > 0 {
		sb.Write(m.Body)
	}
	return sb.String()
}

// Bytes returns the wire form as bytes.
func (m *Message) Bytes() []byte {
	return []byte(m.String())
}

// Parse decodes a single SIP message (request or response) from a raw
// UDP datagram. Parse failures return ok=false; per §4.1/§7 the caller
// must silently drop the datagram rather than respond (RFC 3261
// robustness principle) — this function performs no validation beyond
// what's needed to route the message, by design.
func Parse(raw []byte) (*Message, bool) {
	reader := bufio.NewReader(bytes.NewReader(raw))
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, false
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, false
	}

	m := &Message{}
	if strings.HasPrefix(line, "SIP/2.0") {
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			return nil, false
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, false
		}
		m.IsRequest = false
		m.StatusCode = code
		if len(fields) == 3 {
			m.ReasonPhrase = fields[2]
		}
	} else {
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || !strings.HasPrefix(fields[2], "SIP/2.0") {
			return nil, false
		}
		m.IsRequest = true
		m.Method = fields[0]
		m.RequestURI = fields[1]
	}

	for {
		hline, err := reader.ReadString('\n')
		if err != nil {
			return nil, false
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		colon := strings.IndexByte(hline, ':')
		if colon < 0 {
			return nil, false
		}
		name := strings.TrimSpace(hline[:colon])
		value := strings.TrimSpace(hline[colon+1:])
		m.AddHeader(name, value)
	}

	clRaw := m.Header("Content-Length")
	if clRaw != "" {
		cl, err := strconv.Atoi(clRaw)
		if err == nil && cl > 0 {
			body := make([]byte, cl)
			if n, _ := io.ReadFull(reader, body); n > 0 {
				m.Body = body[:n]
			}
		}
	}

	return m, true
}
