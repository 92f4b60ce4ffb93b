package kafka

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

func TestCompression(t *testing.T) {
	tests := []struct {
		name     string
		expected kafkago.Compression
	}{
		{"gzip", kafkago.Gzip},
		{"lz4", kafkago.Lz4},
		{"zstd", kafkago.Zstd},
		{"snappy", kafkago.Snappy},
		{"none", 0},
		{"unknown", kafkago.Snappy},
		{"", kafkago.Snappy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compression(tt.name); got != tt.expected {
				t.Errorf("compression(%q) = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
}

func TestSASLMechanism(t *testing.T) {
	for _, mech := range mechanisms {
		t.Run(mech, func(t *testing.T) {
			m, err := SASLConfig{Enabled: true, Mechanism: mech, Username: "user", Password: "pass"}.mechanism()
			if err != nil {
				t.Fatalf("mechanism() error: %v", err)
			}
			if m == nil || m.Name() != mech {
				t.Fatalf("mechanism() = %v, want %s", m, mech)
			}
		})
	}
	if m, err := (SASLConfig{Mechanism: MechanismPlain}).mechanism(); m != nil || err != nil {
		t.Errorf("disabled SASL = (%v, %v), want (nil, nil)", m, err)
	}
	if _, err := (SASLConfig{Enabled: true, Mechanism: "KERBEROS"}).mechanism(); err == nil {
		t.Fatal("expected error for unsupported mechanism")
	}
}

func TestTransport(t *testing.T) {
	plainCfg := Config{IdleTimeout: 30 * time.Second, MetadataTTL: 6 * time.Second}
	transport, err := plainCfg.Transport()
	if err != nil {
		t.Fatalf("Transport() error: %v", err)
	}
	if transport.TLS != nil || transport.SASL != nil {
		t.Error("expected plaintext transport")
	}
	if transport.MetadataTTL != 6*time.Second {
		t.Errorf("MetadataTTL = %v, want 6s", transport.MetadataTTL)
	}

	secure := Config{
		TLS:  TLSConfig{Enabled: true},
		SASL: SASLConfig{Enabled: true, Mechanism: MechanismPlain, Username: "u"},
	}
	transport, err = secure.Transport()
	if err != nil {
		t.Fatalf("Transport() error: %v", err)
	}
	if transport.TLS == nil || transport.SASL == nil {
		t.Fatal("expected TLS and SASL to be configured")
	}
	if transport.TLS.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", transport.TLS.MinVersion)
	}
}

func TestDialer(t *testing.T) {
	cfg := Config{DialTimeout: 10 * time.Second}
	dialer, err := cfg.Dialer()
	if err != nil {
		t.Fatalf("Dialer() error: %v", err)
	}
	if !dialer.DualStack || dialer.Timeout != 10*time.Second {
		t.Errorf("dialer = %+v", dialer)
	}
	if dialer.TLS != nil || dialer.SASLMechanism != nil {
		t.Error("expected plaintext dialer")
	}

	cfg.SASL = SASLConfig{Enabled: true, Mechanism: MechanismSCRAM256, Username: "u", Password: "p"}
	dialer, err = cfg.Dialer()
	if err != nil {
		t.Fatalf("Dialer() error: %v", err)
	}
	if dialer.SASLMechanism == nil {
		t.Error("expected non-nil SASL mechanism")
	}
}

func TestSecurity_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing CA", Config{TLS: TLSConfig{Enabled: true, CAFile: filepath.Join(dir, "missing.pem")}}},
		{"bad CA", Config{TLS: TLSConfig{Enabled: true, CAFile: garbage}}},
		{"bad key pair", Config{TLS: TLSConfig{Enabled: true, CertFile: garbage, KeyFile: garbage}}},
		{"bad SASL", Config{SASL: SASLConfig{Enabled: true, Mechanism: "INVALID"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.Dialer(); err == nil {
				t.Error("Dialer should fail")
			}
			if _, err := tt.cfg.Transport(); err == nil {
				t.Error("Transport should fail")
			}
		})
	}
}
