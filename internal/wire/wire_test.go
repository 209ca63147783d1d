package wire

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/pushrelay/internal/models"
)

func newToken(t *testing.T) []byte {
	t.Helper()
	token := make([]byte, 32)
	_, err := rand.Read(token)
	require.NoError(t, err)
	return token
}

// roundTrip encodes n, checks the fixed fields and returns the decoded payload.
func roundTrip(t *testing.T, n *models.Notification) map[string]any {
	t.Helper()

	frame, err := EncodeNotification(n)
	require.NoError(t, err)
	assert.Equal(t, CommandNotification, frame[0])

	f, err := DecodeNotification(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(n.ID), f.ID)
	if n.Expiry().IsZero() {
		assert.Equal(t, uint32(0), f.Expiry)
	} else {
		assert.Equal(t, uint32(n.Expiry().Unix()), f.Expiry)
	}
	assert.Equal(t, n.Token, f.Token)
	assert.Len(t, frame, notificationHeaderLen+len(n.Token)+2+len(f.Payload))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	require.Contains(t, payload, "aps")
	return payload
}

func TestEncodeNotification_Expiry(t *testing.T) {
	t.Run("not set", func(t *testing.T) {
		payload := roundTrip(t, models.NewNotification(1, newToken(t)))
		assert.Equal(t, map[string]any{"aps": map[string]any{}}, payload)
	})

	t.Run("set", func(t *testing.T) {
		n := models.NewNotification(2, newToken(t)).WithExpiry(time.Now())
		roundTrip(t, n)
	})
}

func TestEncodeNotification_IDTruncatedTo32Bits(t *testing.T) {
	n := models.NewNotification(1<<32+5, newToken(t))
	frame, err := EncodeNotification(n)
	require.NoError(t, err)

	f, err := DecodeNotification(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), f.ID)
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name  string
		build func(n *models.Notification)
		want  string
	}{
		{
			name:  "sound",
			build: func(n *models.Notification) { n.WithSound("default") },
			want:  `{"aps":{"sound":"default"}}`,
		},
		{
			name:  "badge",
			build: func(n *models.Notification) { n.WithBadge(1) },
			want:  `{"aps":{"badge":1}}`,
		},
		{
			name:  "minimal alert",
			build: func(n *models.Notification) { n.WithAlert("msg") },
			want:  `{"aps":{"alert":"msg"}}`,
		},
		{
			name:  "minimal localized alert",
			build: func(n *models.Notification) { n.LocalizedAlert().Body("msg") },
			want:  `{"aps":{"alert":{"body":"msg","action-loc-key":null}}}`,
		},
		{
			name: "full localized alert",
			build: func(n *models.Notification) {
				n.LocalizedAlert().ActionLocKey("action").LocKey("key").LocArgs("arg").LaunchImage("file")
			},
			want: `{"aps":{"alert":{"action-loc-key":"action","loc-key":"key","loc-args":["arg"],"launch-image":"file"}}}`,
		},
		{
			name:  "extra",
			build: func(n *models.Notification) { n.WithExtra("key", "value") },
			want:  `{"aps":{},"key":"value"}`,
		},
		{
			name: "extra does not replace aps",
			build: func(n *models.Notification) {
				n.WithExtra("aps", "ignored").WithBadge(3)
			},
			want: `{"aps":{"badge":3}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := models.NewNotification(7, newToken(t))
			tt.build(n)

			roundTrip(t, n)
			payload, err := EncodePayload(n)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(payload))
		})
	}
}

func TestEncodeNotification_Errors(t *testing.T) {
	t.Run("unserializable extra", func(t *testing.T) {
		n := models.NewNotification(9, newToken(t)).WithExtra("ch", make(chan int))
		_, err := EncodeNotification(n)

		var encErr *EncodeError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, uint64(9), encErr.ID)
	})

	t.Run("token too long", func(t *testing.T) {
		n := models.NewNotification(10, make([]byte, 70000))
		_, err := EncodeNotification(n)
		assert.True(t, errors.Is(err, ErrTokenTooLong))
	})

	t.Run("payload too long", func(t *testing.T) {
		big := make([]byte, 70000)
		for i := range big {
			big[i] = 'a'
		}
		n := models.NewNotification(11, newToken(t)).WithExtra("blob", string(big))
		_, err := EncodeNotification(n)
		assert.True(t, errors.Is(err, ErrPayloadTooLong))
	})
}

func TestDecodeNotification_Short(t *testing.T) {
	_, err := DecodeNotification([]byte{1, 0, 0})
	assert.ErrorIs(t, err, ErrShortFrame)

	frame, err := EncodeNotification(models.NewNotification(1, newToken(t)))
	require.NoError(t, err)
	_, err = DecodeNotification(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestFeedbackDecoder_PartialRecord(t *testing.T) {
	first := models.FeedbackRecord{Timestamp: 1300000000, Token: []byte{1, 2, 3, 4}}
	second := models.FeedbackRecord{Timestamp: 1300000001, Token: []byte{5, 6}}
	third := models.FeedbackRecord{Timestamp: 1300000002, Token: []byte{7, 8, 9}}

	stream := append(EncodeFeedback(first), EncodeFeedback(second)...)
	thirdBytes := EncodeFeedback(third)
	stream = append(stream, thirdBytes[:4]...)

	var d FeedbackDecoder
	records := d.Feed(stream)
	require.Len(t, records, 2)
	assert.Equal(t, first, records[0])
	assert.Equal(t, second, records[1])
	assert.Equal(t, 4, d.Buffered())

	records = d.Feed(thirdBytes[4:])
	require.Len(t, records, 1)
	assert.Equal(t, third, records[0])
	assert.Equal(t, 0, d.Buffered())
}

func TestFeedbackDecoder_ByteAtATime(t *testing.T) {
	want := []models.FeedbackRecord{
		{Timestamp: 1, Token: []byte{0xaa}},
		{Timestamp: 2, Token: []byte{0xbb, 0xcc}},
	}
	var stream []byte
	for _, r := range want {
		stream = append(stream, EncodeFeedback(r)...)
	}

	var d FeedbackDecoder
	var got []models.FeedbackRecord
	for i := range stream {
		got = append(got, d.Feed(stream[i:i+1])...)
	}
	assert.Equal(t, want, got)
}

func TestResponseDecoder(t *testing.T) {
	resp := models.ErrorResponse{Status: models.StatusInvalidToken, ID: 0xfffffffe}
	frame := EncodeErrorResponse(resp)

	var d ResponseDecoder
	assert.Empty(t, d.Feed(frame[:3]))
	assert.Equal(t, 3, d.Buffered())

	got := d.Feed(frame[3:])
	require.Len(t, got, 1)
	assert.Equal(t, resp, got[0])
	assert.Equal(t, uint32(0xfffffffe), got[0].ID)
}

func TestResponseDecoder_SkipsUnknownBytes(t *testing.T) {
	resp := models.ErrorResponse{Status: models.StatusShutdown, ID: 3}
	stream := append([]byte{0x00, 0x42}, EncodeErrorResponse(resp)...)

	var d ResponseDecoder
	got := d.Feed(stream)
	require.Len(t, got, 1)
	assert.Equal(t, resp, got[0])
}
