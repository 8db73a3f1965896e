package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single line write may block on a slow or
// dead peer.
const writeWait = 10 * time.Second

// lineTransport is one client connection reduced to what a session
// needs: blocking line reads and serialized line writes. The TCP
// listener and the WebSocket gateway each provide an implementation so
// the session state machine stays transport-agnostic.
type lineTransport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

// tcpTransport frames the protocol over a raw TCP connection as
// newline-delimited UTF-8 lines.
type tcpTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
	wmu     sync.Mutex
}

func newTCPTransport(conn net.Conn) *tcpTransport {
	return &tcpTransport{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
	}
}

func (t *tcpTransport) ReadLine() (string, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return "", err
		}
		return "", net.ErrClosed
	}
	return t.scanner.Text(), nil
}

func (t *tcpTransport) WriteLine(line string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// wsTransport carries one protocol line per WebSocket text message.
type wsTransport struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadLine() (string, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
