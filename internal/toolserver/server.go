// Package toolserver exposes the serial bridge engine's four operations —
// list_ports, configure_connection, send_data, read_async_messages — as
// plain Go methods on a Server wrapping an *engine.Engine. It is the thin
// tool surface the spec's external interface names; request parsing,
// batching, and rich error envelopes belong to the dispatcher in
// cmd/serialbridged, not here.
package toolserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lattice-iot/serialbridge/internal/engine"
)

// ErrUnknownConnectionAction is returned by ConfigureConnection when Action
// is neither "open" nor "close".
var ErrUnknownConnectionAction = errors.New("toolserver: unknown connection action")

// Server adapts an *engine.Engine to the tool surface of §6.
type Server struct {
	Logger *slog.Logger
	Engine *engine.Engine
}

// New constructs a Server around an already-built Engine.
func New(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Logger: logger, Engine: e}
}

// ListPortsResult is the list_ports tool's output.
type ListPortsResult struct {
	Ports []engine.PortInfo `json:"ports"`
}

// ListPorts enumerates serial ports visible to the host OS.
func (s *Server) ListPorts(ctx context.Context) (ListPortsResult, error) {
	ports, err := engine.ListPorts()
	if err != nil {
		s.Logger.Error("list_ports failed", "error", err)
		return ListPortsResult{}, err
	}
	return ListPortsResult{Ports: ports}, nil
}

// ConnectionAction selects what ConfigureConnection should do.
type ConnectionAction string

const (
	ActionOpen  ConnectionAction = "open"
	ActionClose ConnectionAction = "close"
)

// ConfigureConnectionRequest is the configure_connection tool's input.
type ConfigureConnectionRequest struct {
	Action   ConnectionAction `json:"action"`
	Port     string           `json:"port"`
	BaudRate int              `json:"baudrate"`
}

// ConfigureConnectionResult is the configure_connection tool's output.
type ConfigureConnectionResult struct {
	OK        bool   `json:"ok"`
	Connected bool   `json:"connected"`
	Port      string `json:"port,omitempty"`
	BaudRate  int    `json:"baudrate,omitempty"`
}

// ConfigureConnection opens or closes the underlying Port Handle. On open,
// an empty Port or zero BaudRate is passed through as-is, leaving the
// Engine's Dialer to apply its own defaults.
func (s *Server) ConfigureConnection(ctx context.Context, req ConfigureConnectionRequest) (ConfigureConnectionResult, error) {
	switch req.Action {
	case ActionOpen:
		baud := req.BaudRate
		params := engine.ConnParams{PortName: req.Port, BaudRate: baud}
		if err := s.Engine.Connect(ctx, params); err != nil {
			s.Logger.Error("configure_connection open failed", "error", err, "port", req.Port)
			return ConfigureConnectionResult{}, err
		}
		s.Logger.Info("configure_connection opened", "port", req.Port, "baudrate", baud)
		return ConfigureConnectionResult{OK: true, Connected: true, Port: req.Port, BaudRate: baud}, nil
	case ActionClose:
		if err := s.Engine.Disconnect(); err != nil {
			s.Logger.Error("configure_connection close failed", "error", err)
			return ConfigureConnectionResult{}, err
		}
		s.Logger.Info("configure_connection closed")
		return ConfigureConnectionResult{OK: true, Connected: false}, nil
	default:
		return ConfigureConnectionResult{}, &engine.Error{Code: engine.CodeInvalidInput, Err: ErrUnknownConnectionAction}
	}
}

// SendDataRequest is the send_data tool's input. Payload is interpreted
// according to Encoding before being written to the port.
type SendDataRequest struct {
	Payload     string            `json:"payload"`
	Encoding    engine.Encoding   `json:"encoding"`
	WaitPolicy  engine.WaitPolicy `json:"wait_policy"`
	StopPattern string            `json:"stop_pattern,omitempty"`
	TimeoutMS   int               `json:"timeout_ms"`
}

// SendDataResult is the send_data tool's output, the §6 rendering of
// engine.SendResult.
type SendDataResult struct {
	OK                 bool   `json:"ok"`
	Text               string `json:"text"`
	Hex                string `json:"hex,omitempty"`
	IsHex              bool   `json:"is_hex"`
	MatchedStopPattern *bool  `json:"matched_stop_pattern,omitempty"`
	MatchedTerminator  string `json:"matched_terminator,omitempty"`
	BytesReceived      int    `json:"bytes_received"`
	PendingAsyncCount  int    `json:"pending_async_count"`
	Truncated          bool   `json:"truncated"`
}

// SendData encodes the request payload, writes it, and waits according to
// the requested policy.
func (s *Server) SendData(ctx context.Context, req SendDataRequest) (SendDataResult, error) {
	codec := s.Engine.Codec()
	payload, err := codec.Encode(req.Payload, req.Encoding)
	if err != nil {
		s.Logger.Error("send_data encode failed", "error", err)
		return SendDataResult{}, err
	}

	var stopPattern []byte
	if req.StopPattern != "" {
		stopPattern = []byte(req.StopPattern)
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	result, err := s.Engine.Send(ctx, payload, req.WaitPolicy, stopPattern, timeout)
	if err != nil {
		s.Logger.Error("send_data failed", "error", err, "policy", req.WaitPolicy)
		return SendDataResult{}, err
	}

	out := SendDataResult{
		OK:                 result.OK,
		Text:               result.Text,
		IsHex:              result.IsHex,
		MatchedStopPattern: result.MatchedStopPattern,
		MatchedTerminator:  result.MatchedTerminator,
		BytesReceived:      result.BytesReceived,
		PendingAsyncCount:  result.PendingAsyncCount,
		Truncated:          result.Truncated,
	}
	if result.IsHex {
		out.Hex = result.Text
		out.Text = ""
	}
	return out, nil
}

// ReadAsyncMessagesResult is the read_async_messages tool's output.
type ReadAsyncMessagesResult struct {
	Messages []AsyncMessage `json:"messages"`
	Dropped  int            `json:"dropped"`
}

// AsyncMessage is the §6 rendering of an engine.AsyncPacket.
type AsyncMessage struct {
	Text      string    `json:"text"`
	Hex       string    `json:"hex,omitempty"`
	IsHex     bool      `json:"is_hex"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadAsyncMessages drains every packet published by the Async Store since
// the previous call.
func (s *Server) ReadAsyncMessages(ctx context.Context) (ReadAsyncMessagesResult, error) {
	packets, dropped := s.Engine.ReadAsyncMessages()
	messages := make([]AsyncMessage, len(packets))
	for i, p := range packets {
		m := AsyncMessage{Text: p.Text, IsHex: p.IsHex, Timestamp: p.Timestamp}
		if p.IsHex {
			m.Hex = p.Text
			m.Text = ""
		}
		messages[i] = m
	}
	return ReadAsyncMessagesResult{Messages: messages, Dropped: dropped}, nil
}
