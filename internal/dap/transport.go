// Package dap implements the server side of the Debug Adapter Protocol.
package dap

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"sync"
)

// Transport carries framed messages between the adapter and one client.
// Send may be called concurrently; Receive is called from one goroutine.
type Transport interface {
	Send(msg *Message) error
	Receive() (*Message, error)

	// Close closes the transport.
	Close() error
}

// Message is one protocol message with its framing headers.
type Message struct {
	ContentLength int

	// ContentType is only set when the peer sent one.
	ContentType string

	Content json.RawMessage
}

// MaxContentLength bounds the size of a single message body (10MB).
const MaxContentLength = 10 << 20

// stream frames messages over a byte stream.
type stream struct {
	r      *bufio.Reader
	w      io.Writer
	closer func() error

	mu sync.Mutex // serializes writes
}

func newStream(r io.Reader, w io.Writer, closer func() error) stream {
	return stream{r: bufio.NewReader(r), w: w, closer: closer}
}

// Send writes msg with its Content-Length header.
func (s *stream) Send(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeMessage(s.w, msg)
}

// Receive reads the next message. A stream that ends between messages
// returns io.EOF.
func (s *stream) Receive() (*Message, error) {
	return readMessage(s.r)
}

// Close closes the underlying stream.
func (s *stream) Close() error {
	return s.closer()
}

// StdioTransport serves the client on the adapter's own stdin and stdout.
type StdioTransport struct {
	stream
}

// NewStdioTransport reads requests from in and writes to out.
func NewStdioTransport(in io.ReadCloser, out io.WriteCloser) *StdioTransport {
	return &StdioTransport{newStream(in, out, func() error {
		inErr := in.Close()
		if err := out.Close(); err != nil {
			return err
		}
		return inErr
	})}
}

// SocketTransport serves a client connected over TCP.
type SocketTransport struct {
	stream
	conn net.Conn
}

// NewSocketTransport wraps an accepted connection.
func NewSocketTransport(conn net.Conn) *SocketTransport {
	return &SocketTransport{stream: newStream(conn, conn, conn.Close), conn: conn}
}

// RemoteAddr returns the client's address.
func (t *SocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// RawTransport frames messages over any io.ReadWriteCloser.
type RawTransport struct {
	stream
}

// NewRawTransport wraps rwc.
func NewRawTransport(rwc io.ReadWriteCloser) *RawTransport {
	return &RawTransport{newStream(rwc, rwc, rwc.Close)}
}

func writeMessage(w io.Writer, msg *Message) error {
	header := "Content-Length: " + strconv.Itoa(len(msg.Content)) + "\r\n"
	if msg.ContentType != "" {
		header += "Content-Type: " + msg.ContentType + "\r\n"
	}
	header += "\r\n"

	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(msg.Content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func readMessage(r *bufio.Reader) (*Message, error) {
	if _, err := r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}

	header, err := textproto.NewReader(r).ReadMIMEHeader()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	raw := header.Get("Content-Length")
	if raw == "" {
		return nil, errors.New("missing Content-Length header")
	}
	length, err := strconv.Atoi(raw)
	if err != nil || length <= 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", raw)
	}
	if length > MaxContentLength {
		return nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", length, MaxContentLength)
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return &Message{
		ContentLength: length,
		ContentType:   header.Get("Content-Type"),
		Content:       content,
	}, nil
}
