package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentAddrs(t *testing.T) {
	assert.Equal(t, "gateway.sandbox.push.apple.com:2195", Sandbox.GatewayAddr())
	assert.Equal(t, "feedback.sandbox.push.apple.com:2196", Sandbox.FeedbackAddr())
	assert.Equal(t, "gateway.push.apple.com:2195", Production.GatewayAddr())
	assert.Equal(t, "feedback.push.apple.com:2196", Production.FeedbackAddr())

	env, err := EnvironmentByName("production")
	require.NoError(t, err)
	assert.Equal(t, Production, env)

	_, err = EnvironmentByName("staging")
	assert.Error(t, err)
}

func TestAlertMarshalKeepsNullActionLocKey(t *testing.T) {
	a := (&Alert{}).Body("msg")
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"msg","action-loc-key":null}`, string(b))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "invalid token", StatusText(StatusInvalidToken))
	assert.Equal(t, "status 42", StatusText(42))

	err := ErrorResponse{Status: StatusShutdown, ID: 7}
	assert.Equal(t, "notification 7 rejected: shutdown", err.Error())
}

func TestNewID(t *testing.T) {
	a := NewID("fb")
	b := NewID("fb")
	assert.True(t, strings.HasPrefix(a, "fb_"))
	assert.NotEqual(t, a, b)
}
