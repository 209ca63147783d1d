package models

import "fmt"

// Status codes carried by a gateway error response.
const (
	StatusNoErrors           uint8 = 0
	StatusProcessingError    uint8 = 1
	StatusMissingDeviceToken uint8 = 2
	StatusMissingTopic       uint8 = 3
	StatusMissingPayload     uint8 = 4
	StatusInvalidTokenSize   uint8 = 5
	StatusInvalidTopicSize   uint8 = 6
	StatusInvalidPayloadSize uint8 = 7
	StatusInvalidToken       uint8 = 8
	StatusShutdown           uint8 = 10
	StatusUnknown            uint8 = 255
)

var statusText = map[uint8]string{
	StatusNoErrors:           "no errors",
	StatusProcessingError:    "processing error",
	StatusMissingDeviceToken: "missing device token",
	StatusMissingTopic:       "missing topic",
	StatusMissingPayload:     "missing payload",
	StatusInvalidTokenSize:   "invalid token size",
	StatusInvalidTopicSize:   "invalid topic size",
	StatusInvalidPayloadSize: "invalid payload size",
	StatusInvalidToken:       "invalid token",
	StatusShutdown:           "shutdown",
	StatusUnknown:            "unknown",
}

func StatusText(status uint8) string {
	if s, ok := statusText[status]; ok {
		return s
	}
	return fmt.Sprintf("status %d", status)
}

// ErrorResponse is sent by the gateway when it rejects a notification. The
// gateway closes the connection after sending it.
type ErrorResponse struct {
	Status uint8
	ID     uint32
}

func (r ErrorResponse) Error() string {
	return fmt.Sprintf("notification %d rejected: %s", r.ID, StatusText(r.Status))
}
