package models

import (
	"encoding/json"
	"time"
)

// Notification is a single push notification addressed to one device token.
// ID and Token are fixed at creation; the presentation fields are meant to be
// set once before the notification is sent.
type Notification struct {
	ID    uint64
	Token []byte

	alert  any
	badge  *int
	sound  *string
	expiry time.Time
	extra  map[string]any
}

func NewNotification(id uint64, token []byte) *Notification {
	return &Notification{ID: id, Token: token}
}

// WithAlert sets a plain text alert.
func (n *Notification) WithAlert(message string) *Notification {
	n.alert = message
	return n
}

// LocalizedAlert replaces the alert with a structured one and returns it for
// further configuration.
func (n *Notification) LocalizedAlert() *Alert {
	a := &Alert{}
	n.alert = a
	return a
}

func (n *Notification) WithBadge(number int) *Notification {
	n.badge = &number
	return n
}

func (n *Notification) WithSound(file string) *Notification {
	n.sound = &file
	return n
}

func (n *Notification) WithExpiry(t time.Time) *Notification {
	n.expiry = t
	return n
}

// WithExtra adds a custom key at the top level of the payload, next to "aps".
func (n *Notification) WithExtra(key string, value any) *Notification {
	if n.extra == nil {
		n.extra = make(map[string]any)
	}
	n.extra[key] = value
	return n
}

// AlertValue returns nil, a string or an *Alert.
func (n *Notification) AlertValue() any {
	return n.alert
}

func (n *Notification) Badge() (int, bool) {
	if n.badge == nil {
		return 0, false
	}
	return *n.badge, true
}

func (n *Notification) Sound() (string, bool) {
	if n.sound == nil {
		return "", false
	}
	return *n.sound, true
}

func (n *Notification) Expiry() time.Time {
	return n.expiry
}

func (n *Notification) Extra() map[string]any {
	return n.extra
}

// Alert is the structured (localizable) form of an alert.
type Alert struct {
	body         *string
	actionLocKey *string
	locKey       *string
	locArgs      []string
	launchImage  *string
}

func (a *Alert) Body(body string) *Alert {
	a.body = &body
	return a
}

func (a *Alert) ActionLocKey(key string) *Alert {
	a.actionLocKey = &key
	return a
}

func (a *Alert) LocKey(key string) *Alert {
	a.locKey = &key
	return a
}

func (a *Alert) LocArgs(args ...string) *Alert {
	a.locArgs = args
	return a
}

func (a *Alert) LaunchImage(file string) *Alert {
	a.launchImage = &file
	return a
}

// MarshalJSON omits every unset field except action-loc-key, which is
// written as null when unset.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Body         *string  `json:"body,omitempty"`
		ActionLocKey *string  `json:"action-loc-key"`
		LocKey       *string  `json:"loc-key,omitempty"`
		LocArgs      []string `json:"loc-args,omitempty"`
		LaunchImage  *string  `json:"launch-image,omitempty"`
	}{
		Body:         a.body,
		ActionLocKey: a.actionLocKey,
		LocKey:       a.locKey,
		LocArgs:      a.locArgs,
		LaunchImage:  a.launchImage,
	})
}
