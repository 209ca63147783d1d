package models

import (
	"fmt"
	"net"
	"strconv"
)

const (
	GatewayPort  = 2195
	FeedbackPort = 2196
)

// Environment names a push service deployment by its domain.
type Environment struct {
	Name   string
	Domain string
}

var (
	Sandbox    = Environment{Name: "sandbox", Domain: "sandbox.push.apple.com"}
	Production = Environment{Name: "production", Domain: "push.apple.com"}
)

func EnvironmentByName(name string) (Environment, error) {
	switch name {
	case Sandbox.Name:
		return Sandbox, nil
	case Production.Name:
		return Production, nil
	default:
		return Environment{}, fmt.Errorf("unknown environment: %q", name)
	}
}

func (e Environment) GatewayAddr() string {
	return net.JoinHostPort("gateway."+e.Domain, strconv.Itoa(GatewayPort))
}

func (e Environment) FeedbackAddr() string {
	return net.JoinHostPort("feedback."+e.Domain, strconv.Itoa(FeedbackPort))
}
