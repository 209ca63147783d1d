// Package transport opens the TLS connections used to reach the gateway and
// feedback services.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/shohag/pushrelay/internal/config"
)

// Dialer opens a ready-to-use secure byte stream. *tls.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

var ErrMissingCertificate = errors.New("tls: cert_file and key_file are required")

// NewTLSDialer loads the client identity and optional CA bundle described by
// cfg. Any problem with that material is returned here, before a client is
// built around the dialer.
func NewTLSDialer(cfg config.TLSConfig, timeout time.Duration) (*tls.Dialer, error) {
	tlsCfg, err := LoadTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		},
		Config: tlsCfg,
	}, nil
}

func LoadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, ErrMissingCertificate
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ServerName:   cfg.ServerName,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
