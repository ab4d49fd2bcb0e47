package hitl

import (
	"encoding/binary"
	"time"

	"github.com/titanscrape/titan/internal/model"
)

// frameHeaderSize is the 8-byte binary header prefixed to every JPEG frame
// pushed over the streaming transport (spec.md §6): 4 bytes big-endian
// frame_number, 4 bytes big-endian timestamp_ms mod 2^32.
const frameHeaderSize = 8

// EncodeFrame serializes frame into the wire format: header then raw JPEG.
func EncodeFrame(frame model.StreamFrame) []byte {
	buf := make([]byte, frameHeaderSize+len(frame.JPEG))
	binary.BigEndian.PutUint32(buf[0:4], uint32(frame.Sequence))
	binary.BigEndian.PutUint32(buf[4:8], uint32(frame.Timestamp.UnixMilli()))
	copy(buf[frameHeaderSize:], frame.JPEG)
	return buf
}

// DecodeFrameHeader splits the 8-byte header off data, returning the
// sequence number, millisecond timestamp (mod 2^32), and the JPEG payload.
func DecodeFrameHeader(data []byte) (sequence uint32, timestampMS uint32, jpeg []byte, ok bool) {
	if len(data) < frameHeaderSize {
		return 0, 0, nil, false
	}
	sequence = binary.BigEndian.Uint32(data[0:4])
	timestampMS = binary.BigEndian.Uint32(data[4:8])
	return sequence, timestampMS, data[frameHeaderSize:], true
}

// StatusMessage is the JSON text frame the admin viewport socket sends
// alongside binary viewport frames (on connect and in reply to a ping), in
// the `{event, data, timestamp}` shape of spec.md §6.
type StatusMessage struct {
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func newStatusMessage(event string, data any) StatusMessage {
	return StatusMessage{Event: event, Data: data, Timestamp: time.Now().UnixMilli()}
}
