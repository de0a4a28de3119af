package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is an established, bidirectional byte stream to a serial
// device. It is assumed to already be open and ready for use; typical
// implementations are a real serial port, a pty, or a test fake.
//
// A Transport additionally exposes SetReadTimeout so the Reader can poll
// with the short timeout §4.A requires without blocking indefinitely.
type Transport interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds the next and all subsequent Read calls. A
	// negative duration means block indefinitely; this engine never uses
	// that mode once connected.
	SetReadTimeout(d time.Duration) error
}

// Dialer opens a Transport to a device. It abstracts how the connection is
// created (serial port, emulator, test double) and is used every time
// Connect is called, driven by the caller-supplied ConnParams — a Dialer
// must not hard-code the port it opens.
type Dialer interface {
	// Dial returns a Transport connected per params, or an error if one
	// cannot be established. Implementations should respect ctx
	// cancellation.
	Dial(ctx context.Context, params ConnParams) (Transport, error)
}

// SerialDialer opens a real serial port via go.bug.st/serial, the driver
// library this module inherits from its teacher project unmodified.
// PortName/BaudRate are fallback defaults used only when the ConnParams
// passed to Dial leave the corresponding field unset; a caller-supplied
// ConnParams always takes priority, so a fixed SerialDialer can still open
// whatever port a configure_connection call names at runtime.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides the line parameters beyond baud rate; nil uses 8/N/1.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context, params ConnParams) (Transport, error) {
	portName := params.PortName
	if portName == "" {
		portName = d.PortName
	}
	if portName == "" {
		return nil, errors.New("engine: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("engine: context is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	baud := params.BaudRate
	if baud == 0 {
		baud = d.BaudRate
	}
	if baud == 0 {
		baud = 115200
	}

	var mode *serial.Mode
	if d.Mode != nil {
		copied := *d.Mode
		copied.BaudRate = baud
		mode = &copied
	} else {
		mode = &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	return &serialTransport{port: port}, nil
}

// serialTransport adapts go.bug.st/serial.Port to the Transport interface.
type serialTransport struct {
	port serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error)  { return t.port.Read(p) }
func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }
func (t *serialTransport) Close() error                { return t.port.Close() }

func (t *serialTransport) SetReadTimeout(d time.Duration) error {
	return t.port.SetReadTimeout(d)
}
