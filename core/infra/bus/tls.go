package bus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

const (
	envNATSTLSCA         = "NATS_TLS_CA"
	envNATSTLSCert       = "NATS_TLS_CERT"
	envNATSTLSKey        = "NATS_TLS_KEY"
	envNATSTLSInsecure   = "NATS_TLS_INSECURE"
	envNATSTLSServerName = "NATS_TLS_SERVER_NAME"
)

// TLSOptions describes the client TLS settings for the NATS connection.
type TLSOptions struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Insecure   bool
}

// TLSOptionsFromEnv reads NATS_TLS_* variables.
func TLSOptionsFromEnv() TLSOptions {
	return TLSOptions{
		CAFile:     strings.TrimSpace(os.Getenv(envNATSTLSCA)),
		CertFile:   strings.TrimSpace(os.Getenv(envNATSTLSCert)),
		KeyFile:    strings.TrimSpace(os.Getenv(envNATSTLSKey)),
		ServerName: strings.TrimSpace(os.Getenv(envNATSTLSServerName)),
		Insecure:   parseBoolEnv(envNATSTLSInsecure),
	}
}

// Enabled reports whether any TLS setting is present.
func (o TLSOptions) Enabled() bool {
	return o.CAFile != "" || o.CertFile != "" || o.KeyFile != "" || o.ServerName != "" || o.Insecure
}

// Config builds a tls.Config, or nil when TLS is not enabled.
func (o TLSOptions) Config() (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName}
	if o.Insecure {
		cfg.InsecureSkipVerify = true // #nosec G402 -- operator opt-in.
	}
	if o.CAFile != "" {
		// #nosec G304 -- CA path is operator-provided.
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("nats tls ca read: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("nats tls ca parse: %s", o.CAFile)
		}
		cfg.RootCAs = pool
	}
	if (o.CertFile == "") != (o.KeyFile == "") {
		return nil, fmt.Errorf("nats tls cert/key must be set together")
	}
	if o.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("nats tls keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
