// Package lumberjack implements the server and client sides of the Lumberjack
// v2 protocol spoken by Beats agents.
//
// A batch is sent as a window frame announcing the event count, followed by
// that many JSON data frames, optionally wrapped in zlib-compressed frames.
// The server answers with an ack frame carrying the last sequence number.
//
//	window:     '2' 'W' uint32(count)
//	json:       '2' 'J' uint32(seq) uint32(len) payload
//	compressed: '2' 'C' uint32(len) zlib(frames)
//	ack:        '2' 'A' uint32(seq)
//
// All integers are big-endian.
package lumberjack

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Protocol constants.
const (
	ProtocolVersion byte = '2'

	FrameWindow     byte = 'W'
	FrameJSON       byte = 'J'
	FrameCompressed byte = 'C'
	FrameAck        byte = 'A'
)

// ErrMalformedFrame is wrapped by every framing error. A connection that
// returns it must be closed.
var ErrMalformedFrame = errors.New("malformed lumberjack frame")

// Event is one decoded data frame.
type Event struct {
	Seq     uint32
	Payload []byte
}

// Window is one fully decoded batch.
type Window struct {
	Events []Event
}

// LastSeq is the sequence number to acknowledge.
func (w *Window) LastSeq() uint32 {
	if len(w.Events) == 0 {
		return 0
	}
	return w.Events[len(w.Events)-1].Seq
}

// Decoder reads windows from one connection. It is not safe for concurrent use.
type Decoder struct {
	r            *bufio.Reader
	maxFrameSize int64
	maxWindow    int
}

// NewDecoder creates a decoder. Frames larger than maxFrameSize bytes and
// windows larger than maxWindow events are rejected as malformed.
func NewDecoder(r io.Reader, maxFrameSize int64, maxWindow int) *Decoder {
	return &Decoder{
		r:            bufio.NewReader(r),
		maxFrameSize: maxFrameSize,
		maxWindow:    maxWindow,
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// ReadWindow blocks until a complete window has been decoded. It returns
// io.EOF if the peer closed the connection between windows.
func (d *Decoder) ReadWindow() (*Window, error) {
	typ, err := readHeader(d.r)
	if err != nil {
		return nil, err
	}
	if typ != FrameWindow {
		return nil, malformed("expected window frame, got %q", typ)
	}

	var size uint32
	if err := binary.Read(d.r, binary.BigEndian, &size); err != nil {
		return nil, unexpected(err)
	}
	if size == 0 || int64(size) > int64(d.maxWindow) {
		return nil, malformed("window size %d outside 1..%d", size, d.maxWindow)
	}

	w := &Window{Events: make([]Event, 0, size)}
	for len(w.Events) < int(size) {
		typ, err := readHeader(d.r)
		if err != nil {
			return nil, unexpected(err)
		}
		switch typ {
		case FrameJSON:
			ev, err := d.readJSON(d.r)
			if err != nil {
				return nil, err
			}
			w.Events = append(w.Events, ev)
		case FrameCompressed:
			if err := d.readCompressed(w, int(size)); err != nil {
				return nil, err
			}
		default:
			return nil, malformed("unexpected frame type %q inside window", typ)
		}
	}
	return w, nil
}

func readHeader(r io.Reader) (byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, malformed("truncated frame header")
		}
		return 0, err
	}
	if hdr[0] != ProtocolVersion {
		return 0, malformed("unsupported protocol version %q", hdr[0])
	}
	return hdr[1], nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: connection closed mid-window", io.ErrUnexpectedEOF)
	}
	return err
}

func (d *Decoder) readJSON(r io.Reader) (Event, error) {
	var hdr struct {
		Seq uint32
		Len uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return Event{}, unexpected(err)
	}
	if int64(hdr.Len) > d.maxFrameSize {
		return Event{}, malformed("data frame of %d bytes exceeds limit %d", hdr.Len, d.maxFrameSize)
	}
	payload := make([]byte, hdr.Len)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Event{}, unexpected(err)
	}
	return Event{Seq: hdr.Seq, Payload: payload}, nil
}

func (d *Decoder) readCompressed(w *Window, size int) error {
	var n uint32
	if err := binary.Read(d.r, binary.BigEndian, &n); err != nil {
		return unexpected(err)
	}
	if int64(n) > d.maxFrameSize {
		return malformed("compressed frame of %d bytes exceeds limit %d", n, d.maxFrameSize)
	}
	block := make([]byte, n)
	if _, err := io.ReadFull(d.r, block); err != nil {
		return unexpected(err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(block))
	if err != nil {
		return malformed("bad zlib stream: %v", err)
	}
	defer zr.Close()
	inner := bufio.NewReader(zr)

	for {
		typ, err := readHeader(inner)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				return err
			}
			return malformed("bad zlib stream: %v", err)
		}
		if typ != FrameJSON {
			return malformed("unexpected frame type %q inside compressed frame", typ)
		}
		if len(w.Events) >= size {
			return malformed("compressed frame holds more events than the window")
		}
		ev, err := d.readJSON(inner)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				return err
			}
			return malformed("truncated compressed frame: %v", err)
		}
		w.Events = append(w.Events, ev)
	}
}

// WriteAck writes an ack frame for seq.
func WriteAck(w io.Writer, seq uint32) error {
	var buf [6]byte
	buf[0], buf[1] = ProtocolVersion, FrameAck
	binary.BigEndian.PutUint32(buf[2:], seq)
	_, err := w.Write(buf[:])
	return err
}

// ReadAck reads one ack frame and returns its sequence number.
func ReadAck(r io.Reader) (uint32, error) {
	typ, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	if typ != FrameAck {
		return 0, malformed("expected ack frame, got %q", typ)
	}
	var seq uint32
	if err := binary.Read(r, binary.BigEndian, &seq); err != nil {
		return 0, unexpected(err)
	}
	return seq, nil
}

// EncodeWindow serializes payloads as one window with sequence numbers
// 1..len(payloads). With compress set, the data frames are wrapped in a
// single zlib-compressed frame.
func EncodeWindow(payloads [][]byte, compress bool) ([]byte, error) {
	var frames bytes.Buffer
	for i, p := range payloads {
		frames.Write([]byte{ProtocolVersion, FrameJSON})
		_ = binary.Write(&frames, binary.BigEndian, uint32(i+1))
		_ = binary.Write(&frames, binary.BigEndian, uint32(len(p)))
		frames.Write(p)
	}

	var out bytes.Buffer
	out.Write([]byte{ProtocolVersion, FrameWindow})
	_ = binary.Write(&out, binary.BigEndian, uint32(len(payloads)))

	if !compress {
		out.Write(frames.Bytes())
		return out.Bytes(), nil
	}

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(frames.Bytes()); err != nil {
		return nil, fmt.Errorf("compress window: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress window: %w", err)
	}
	out.Write([]byte{ProtocolVersion, FrameCompressed})
	_ = binary.Write(&out, binary.BigEndian, uint32(z.Len()))
	out.Write(z.Bytes())
	return out.Bytes(), nil
}
