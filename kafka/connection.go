package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Transport builds the writer transport used to forward updates.
func (c *Config) Transport() (*kafka.Transport, error) {
	tc, m, err := c.security()
	if err != nil {
		return nil, err
	}
	return &kafka.Transport{
		DialTimeout: c.DialTimeout,
		IdleTimeout: c.IdleTimeout,
		MetadataTTL: c.MetadataTTL,
		TLS:         tc,
		SASL:        m,
	}, nil
}

// Dialer builds the dialer event readers and health checks connect with.
func (c *Config) Dialer() (*kafka.Dialer, error) {
	tc, m, err := c.security()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{
		Timeout:       c.DialTimeout,
		DualStack:     true,
		TLS:           tc,
		SASLMechanism: m,
	}, nil
}

func (c *Config) security() (*tls.Config, sasl.Mechanism, error) {
	tc, err := c.TLS.build()
	if err != nil {
		return nil, nil, fmt.Errorf("kafka tls: %w", err)
	}
	m, err := c.SASL.mechanism()
	if err != nil {
		return nil, nil, fmt.Errorf("kafka sasl: %w", err)
	}
	return tc, m, nil
}

// build returns nil when TLS is disabled.
func (t TLSConfig) build() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}
	tc := &tls.Config{InsecureSkipVerify: t.SkipVerify, MinVersion: tls.VersionTLS12}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca_file %s holds no PEM certificate", t.CAFile)
		}
		tc.RootCAs = pool
	}
	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// mechanism returns nil when SASL is disabled.
func (s SASLConfig) mechanism() (sasl.Mechanism, error) {
	if !s.Enabled {
		return nil, nil
	}
	switch s.Mechanism {
	case MechanismPlain:
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case MechanismSCRAM256:
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case MechanismSCRAM512:
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	}
	return nil, fmt.Errorf("unsupported mechanism %q", s.Mechanism)
}

var codecs = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// compression maps a codec name to kafka-go's constant. Unknown names
// fall back to snappy.
func compression(name string) kafka.Compression {
	if c, ok := codecs[name]; ok {
		return c
	}
	return kafka.Snappy
}
