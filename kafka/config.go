package kafka

import (
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Config describes the broker connection, the event topics the observer
// consumes and the topic reducer updates are forwarded to.
type Config struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  []string `mapstructure:"topics"`
	// UpdatesTopic receives reducer updates as JSON. Empty disables forwarding.
	UpdatesTopic string `mapstructure:"updates_topic"`

	TLS  TLSConfig  `mapstructure:"tls"`
	SASL SASLConfig `mapstructure:"sasl"`

	Producer ProducerConfig `mapstructure:"producer"`
	Consumer ConsumerConfig `mapstructure:"consumer"`

	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	MetadataTTL time.Duration `mapstructure:"metadata_ttl"`
}

// TLSConfig enables TLS towards the brokers. Client certificates are
// optional.
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SkipVerify bool   `mapstructure:"skip_verify"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// SASL mechanisms.
const (
	MechanismPlain     = "PLAIN"
	MechanismSCRAM256  = "SCRAM-SHA-256"
	MechanismSCRAM512  = "SCRAM-SHA-512"
	defaultCompression = "snappy"
)

var mechanisms = []string{MechanismPlain, MechanismSCRAM256, MechanismSCRAM512}

// SASLConfig authenticates the client.
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// ProducerConfig tunes the writer that forwards updates.
type ProducerConfig struct {
	// Compression is none, gzip, snappy, lz4 or zstd.
	Compression  string        `mapstructure:"compression"`
	Retries      int           `mapstructure:"retries"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequiredAcks is -1 for all replicas, 1 for the leader only.
	RequiredAcks int `mapstructure:"required_acks"`
}

// ConsumerConfig tunes group membership of the event readers.
type ConsumerConfig struct {
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  time.Duration `mapstructure:"rebalance_timeout"`
}

func orDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// ApplyDefaults fills zero fields for a local single-broker setup.
func (c *Config) ApplyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.GroupID == "" {
		c.GroupID = "observer"
	}
	if len(c.Topics) == 0 {
		c.Topics = []string{"activity-events"}
	}
	if c.SASL.Enabled && c.SASL.Mechanism == "" {
		c.SASL.Mechanism = MechanismPlain
	}

	p := &c.Producer
	if p.Compression == "" {
		p.Compression = defaultCompression
	}
	if p.Retries <= 0 {
		p.Retries = 3
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.RequiredAcks == 0 {
		p.RequiredAcks = -1
	}
	orDuration(&p.BatchTimeout, time.Second)
	orDuration(&p.WriteTimeout, 10*time.Second)

	orDuration(&c.Consumer.SessionTimeout, 30*time.Second)
	orDuration(&c.Consumer.HeartbeatInterval, 3*time.Second)
	orDuration(&c.Consumer.RebalanceTimeout, 30*time.Second)

	orDuration(&c.DialTimeout, 10*time.Second)
	orDuration(&c.IdleTimeout, 30*time.Second)
	orDuration(&c.MetadataTTL, 6*time.Second)
}

// Validate reports every problem of an enabled config at once.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	v := validation.New()
	v.Check(len(c.Brokers) > 0, "brokers", "is required")
	v.Check(len(c.Topics) > 0, "topics", "is required")
	v.Required("group_id", c.GroupID)
	v.OneOf("producer.compression", c.Producer.Compression, []string{"none", "gzip", "snappy", "lz4", "zstd"})
	v.Min("producer.retries", c.Producer.Retries, 1)
	v.Min("producer.batch_size", c.Producer.BatchSize, 1)
	v.Check(c.Producer.RequiredAcks == -1 || c.Producer.RequiredAcks == 1, "producer.required_acks", "must be -1 or 1")
	v.Check(c.Consumer.HeartbeatInterval < c.Consumer.SessionTimeout,
		"consumer.heartbeat_interval", "must be shorter than session_timeout")
	if c.SASL.Enabled {
		v.OneOf("sasl.mechanism", c.SASL.Mechanism, mechanisms)
		v.Required("sasl.username", c.SASL.Username)
	}
	if c.TLS.Enabled {
		v.Check((c.TLS.CertFile == "") == (c.TLS.KeyFile == ""), "tls.cert_file", "requires key_file and vice versa")
	}
	return v.Err()
}
