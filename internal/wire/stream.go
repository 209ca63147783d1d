package wire

import (
	"encoding/binary"

	"github.com/shohag/pushrelay/internal/models"
)

const (
	errorResponseLen  = 1 + 1 + 4
	feedbackHeaderLen = 4 + 2
)

// buffer accumulates bytes from partial reads. Consumed bytes are dropped
// lazily on the next write.
type buffer struct {
	data []byte
	off  int
}

func (b *buffer) write(p []byte) {
	if b.off > 0 {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
}

func (b *buffer) readable() []byte { return b.data[b.off:] }

func (b *buffer) skip(n int) { b.off += n }

// ResponseDecoder turns a stream of bytes read from the gateway into error
// responses, in any split across reads.
type ResponseDecoder struct {
	buf buffer
}

// Feed appends p and returns every complete error response now available.
// Bytes that do not start an error response are skipped one at a time.
func (d *ResponseDecoder) Feed(p []byte) []models.ErrorResponse {
	d.buf.write(p)

	var out []models.ErrorResponse
	for {
		b := d.buf.readable()
		if len(b) < errorResponseLen {
			return out
		}
		if b[0] != CommandErrorResponse {
			d.buf.skip(1)
			continue
		}
		out = append(out, models.ErrorResponse{
			Status: b[1],
			ID:     binary.BigEndian.Uint32(b[2:6]),
		})
		d.buf.skip(errorResponseLen)
	}
}

// Buffered reports how many bytes are waiting for the rest of a frame.
func (d *ResponseDecoder) Buffered() int { return len(d.buf.readable()) }

// FeedbackDecoder turns the feedback service's byte stream into records.
type FeedbackDecoder struct {
	buf buffer
}

// Feed appends p and returns every complete record now available. A partial
// trailing record stays buffered for the next call.
func (d *FeedbackDecoder) Feed(p []byte) []models.FeedbackRecord {
	d.buf.write(p)

	var out []models.FeedbackRecord
	for {
		b := d.buf.readable()
		if len(b) < feedbackHeaderLen {
			return out
		}
		tokenLen := int(binary.BigEndian.Uint16(b[4:6]))
		if len(b) < feedbackHeaderLen+tokenLen {
			return out
		}
		token := make([]byte, tokenLen)
		copy(token, b[feedbackHeaderLen:feedbackHeaderLen+tokenLen])
		out = append(out, models.FeedbackRecord{
			Timestamp: int64(binary.BigEndian.Uint32(b[0:4])),
			Token:     token,
		})
		d.buf.skip(feedbackHeaderLen + tokenLen)
	}
}

func (d *FeedbackDecoder) Buffered() int { return len(d.buf.readable()) }

// EncodeFeedback writes one feedback record. The gateway never receives
// these; it exists for test servers and tooling.
func EncodeFeedback(r models.FeedbackRecord) []byte {
	buf := make([]byte, 0, feedbackHeaderLen+len(r.Token))
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.Timestamp))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Token)))
	return append(buf, r.Token...)
}

// EncodeErrorResponse writes one command 8 frame.
func EncodeErrorResponse(r models.ErrorResponse) []byte {
	buf := make([]byte, 0, errorResponseLen)
	buf = append(buf, CommandErrorResponse, r.Status)
	return binary.BigEndian.AppendUint32(buf, r.ID)
}
