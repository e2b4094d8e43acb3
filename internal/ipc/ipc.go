// Package ipc is the daemon's unix-socket control channel. One JSON request
// per connection, one JSON response back; operator tooling stays off the
// audio path.
package ipc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/bloomd.sock"

// Request is one control command.
//
//	trigger        force a capture start, same path as the volume gate
//	inject <file>  decode an audio file and run it through the recognizer
//	status         machine state, utterance count, animation progress
//	clear          wipe the composite and the persisted list
type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Response is what every command returns.
type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Handler resolves one request into a response.
type Handler func(Request) Response

// Server accepts control connections on a unix socket.
type Server struct {
	ln      net.Listener
	path    string
	handler Handler
}

// Listen binds the socket, replacing a stale one from a previous run.
func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}

	s := &Server{ln: ln, path: path, handler: handler}
	go s.accept()
	slog.Info("control channel listening", "socket", path)
	return s, nil
}

func (s *Server) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		slog.Debug("control: bad request", "err", err)
		return
	}

	resp := s.handler(req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Debug("control: write response", "err", err)
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// Send connects, sends one request, and returns the daemon's response. Used
// by the control CLI.
func Send(path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
