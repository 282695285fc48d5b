// Package ipc implements the unix-socket request/response surface. Frames
// are length-prefixed: a 4-byte length followed by a fixed header and a
// JSON body whose shape depends on the command.
package ipc

import (
	"encoding/binary"
	"io"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/types"
)

var (
	ErrInvalidFrame  = errors.ErrCorruptRecord
	ErrFrameTooLarge = errors.ErrFrameTooLarge
)

const (
	RequestIDSize  = 8
	CommandSize    = 1
	NameLenSize    = 2
	PayloadLenSize = 4

	MaxFrameSize = 16 * 1024 * 1024
)

// Commands.
const (
	CmdInsert = iota + 1
	CmdUpdate
	CmdDelete
	CmdFind
	CmdCount
	CmdCreateCollection
	CmdDropCollection
	CmdEnsureIndex
	CmdListCollections
	CmdStats
)

// CommandName maps a command byte to its wire name, for logs and metrics.
func CommandName(cmd uint8) string {
	switch cmd {
	case CmdInsert:
		return "insert"
	case CmdUpdate:
		return "update"
	case CmdDelete:
		return "delete"
	case CmdFind:
		return "find"
	case CmdCount:
		return "count"
	case CmdCreateCollection:
		return "create_collection"
	case CmdDropCollection:
		return "drop_collection"
	case CmdEnsureIndex:
		return "ensure_index"
	case CmdListCollections:
		return "list_collections"
	case CmdStats:
		return "stats"
	default:
		return "unknown"
	}
}

// RequestFrame is one client request: a command against a collection with a
// JSON body.
type RequestFrame struct {
	RequestID  uint64
	Command    uint8
	Collection string
	Payload    []byte
}

// ResponseFrame carries the result back. Data is JSON; on error it holds
// {"error": "..."}.
type ResponseFrame struct {
	RequestID uint64
	Status    types.Status
	Data      []byte
}

func EncodeRequest(frame *RequestFrame) ([]byte, error) {
	size := RequestIDSize + CommandSize + NameLenSize + len(frame.Collection) + PayloadLenSize + len(frame.Payload)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], frame.RequestID)
	offset += RequestIDSize

	buf[offset] = frame.Command
	offset += CommandSize

	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(frame.Collection)))
	offset += NameLenSize
	copy(buf[offset:], frame.Collection)
	offset += len(frame.Collection)

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(frame.Payload)))
	offset += PayloadLenSize
	copy(buf[offset:], frame.Payload)

	return buf, nil
}

func DecodeRequest(data []byte) (*RequestFrame, error) {
	if len(data) < RequestIDSize+CommandSize+NameLenSize+PayloadLenSize {
		return nil, ErrInvalidFrame
	}

	offset := 0
	frame := &RequestFrame{}

	frame.RequestID = binary.LittleEndian.Uint64(data[offset:])
	offset += RequestIDSize

	frame.Command = data[offset]
	offset += CommandSize

	nameLen := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += NameLenSize
	if offset+nameLen+PayloadLenSize > len(data) {
		return nil, ErrInvalidFrame
	}
	frame.Collection = string(data[offset : offset+nameLen])
	offset += nameLen

	payloadLen := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += PayloadLenSize
	if offset+payloadLen > len(data) {
		return nil, ErrInvalidFrame
	}
	if payloadLen > 0 {
		frame.Payload = make([]byte, payloadLen)
		copy(frame.Payload, data[offset:offset+payloadLen])
	}

	return frame, nil
}

func EncodeResponse(frame *ResponseFrame) ([]byte, error) {
	size := RequestIDSize + 1 + PayloadLenSize + len(frame.Data)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], frame.RequestID)
	offset += RequestIDSize

	buf[offset] = byte(frame.Status)
	offset++

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(frame.Data)))
	offset += PayloadLenSize
	copy(buf[offset:], frame.Data)

	return buf, nil
}

func DecodeResponse(data []byte) (*ResponseFrame, error) {
	if len(data) < RequestIDSize+1+PayloadLenSize {
		return nil, ErrInvalidFrame
	}

	offset := 0
	frame := &ResponseFrame{}

	frame.RequestID = binary.LittleEndian.Uint64(data[offset:])
	offset += RequestIDSize

	frame.Status = types.Status(data[offset])
	offset++

	dataLen := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += PayloadLenSize
	if offset+dataLen > len(data) {
		return nil, ErrInvalidFrame
	}
	if dataLen > 0 {
		frame.Data = make([]byte, dataLen)
		copy(frame.Data, data[offset:])
	}

	return frame, nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(conn io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(conn io.Writer, data []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))

	if _, err := conn.Write(lenBuf); err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return err
	}
	return nil
}
