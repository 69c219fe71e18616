package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"brokerbox/outbox-relay/log"

	"github.com/alexflint/go-arg"
)

const (
	MySQL    DbDriver = "mysql"
	Postgres DbDriver = "postgres"

	AMQP  Transport = "amqp"
	Kafka Transport = "kafka"
)

type DbDriver string

type Transport string

var supportedDbTypes = map[DbDriver]bool{
	Postgres: true,
	MySQL:    true,
}

var supportedTransports = map[Transport]bool{
	AMQP:  true,
	Kafka: true,
}

type Config struct {
	SkipMigrations     bool      `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	DBHost             string    `arg:"--db-host,env:DB_HOST,required"`
	DBPort             uint32    `arg:"--db-port,env:DB_PORT,required"`
	DBUser             string    `arg:"--db-user,env:DB_USER,required"`
	DBPass             string    `arg:"--db-pass,env:DB_PASS,required"`
	DBSchema           string    `arg:"--db-schema,env:DB_SCHEMA,required"`
	DBDriver           DbDriver  `arg:"--db-driver,env:DB_DRIVER,required"`
	DBOutboxTable      string    `arg:"--db-outbox-table,env:DB_OUTBOX_TABLE"`
	DBInboxTable       string    `arg:"--db-inbox-table,env:DB_INBOX_TABLE"`
	RelayTransport     Transport `arg:"--transport,env:TRANSPORT"`
	AMQPUrl            string    `arg:"--amqp-url,env:AMQP_URL"`
	AMQPQueue          string    `arg:"--amqp-queue,env:AMQP_QUEUE"`
	KafkaHost          []string  `arg:"--kafka-host,env:KAFKA_HOST"`
	TLSEnable          bool      `arg:"--tls,env:TLS_ENABLE"`
	TLSSkipVerifyPeer  bool      `arg:"--tls-skip-verify-peer,env:TLS_SKIP_VERIFY_PEER"`
	MaxPublishAttempts int       `arg:"--max-publish-attempts,env:MAX_PUBLISH_ATTEMPTS"`
	BatchSize          int       `arg:"--batch-size,env:BATCH_SIZE"`
	PollFrequencyMs    int       `arg:"--poll-frequency-ms,env:POLL_FREQUENCY_MS"`
	PublishTimeoutMs   int       `arg:"--publish-timeout-ms,env:PUBLISH_TIMEOUT_MS"`
	QueryTimeoutMs     int       `arg:"--query-timeout-ms,env:QUERY_TIMEOUT_MS"`
	SentRetentionHours int       `arg:"--sent-retention-hours,env:SENT_RETENTION_HOURS"`
	RunCleanup         bool      `arg:"--cleanup,env:RUN_CLEANUP"`
	RunInbox           bool      `arg:"--inbox,env:RUN_INBOX"`
}

func NewConfig() (*Config, error) {
	c := &Config{
		DBOutboxTable:      "outbox",
		DBInboxTable:       "inbox",
		RelayTransport:     AMQP,
		MaxPublishAttempts: 3,
		BatchSize:          10,
		PollFrequencyMs:    500,
		PublishTimeoutMs:   5000,
		QueryTimeoutMs:     3000,
		SentRetentionHours: 1,
	}
	arg.MustParse(c)

	if !supportedDbTypes[c.DBDriver] {
		return nil, fmt.Errorf("the DB_DRIVER provided (%s) is not supported", c.DBDriver)
	}

	if !supportedTransports[c.RelayTransport] {
		return nil, fmt.Errorf("the TRANSPORT provided (%s) is not supported", c.RelayTransport)
	}

	if c.RelayTransport.AMQP() && c.AMQPUrl == "" {
		return nil, fmt.Errorf("AMQP_URL is required when the transport is %s", AMQP)
	}

	if c.RelayTransport.Kafka() && len(c.KafkaHost) == 0 {
		return nil, fmt.Errorf("KAFKA_HOST is required when the transport is %s", Kafka)
	}

	return c, nil
}

func (c *Config) GetPollIntervalDurationInMs() time.Duration {
	return time.Duration(c.PollFrequencyMs) * time.Millisecond
}

func (c *Config) GetPublishTimeoutDurationInMs() time.Duration {
	return time.Duration(c.PublishTimeoutMs) * time.Millisecond
}

func (c *Config) GetQueryTimeoutDurationInMs() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

func (c *Config) GetSentRetentionDuration() time.Duration {
	return time.Duration(c.SentRetentionHours) * time.Hour
}

func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case MySQL:
		tls := "false"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				tls = "skip-verify"
			} else {
				tls = "true"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s&multiStatements=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBSchema, tls)
	case Postgres:
		sslMode := "disable"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				sslMode = "require"
			} else {
				sslMode = "verify-full"
			}
		}
		return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", c.DBDriver, url.UserPassword(c.DBUser, c.DBPass), c.DBHost, c.DBPort, c.DBSchema, sslMode)
	default:
		log.Logger.Fatalf("the DB driver configured (%s) is not supported", c.DBDriver)
		return ""
	}
}

// GetDependencySystemAddresses returns the broker host:port pairs that the
// readiness probe should be able to reach.
func (c *Config) GetDependencySystemAddresses() []string {
	if c.RelayTransport.Kafka() {
		return c.KafkaHost
	}

	u, err := url.Parse(c.AMQPUrl)
	if err != nil || u.Host == "" {
		return nil
	}

	host := u.Host
	if u.Port() == "" {
		host = host + ":5672"
	}

	return []string{host}
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"SkipMigrations":     c.SkipMigrations,
		"DBHost":             c.DBHost,
		"DBPort":             c.DBPort,
		"DBUser":             c.DBUser,
		"DBPass":             "xxxxx",
		"DBSchema":           c.DBSchema,
		"DBDriver":           c.DBDriver,
		"DBOutboxTable":      c.DBOutboxTable,
		"DBInboxTable":       c.DBInboxTable,
		"RelayTransport":     c.RelayTransport,
		"AMQPUrl":            redactUrl(c.AMQPUrl),
		"AMQPQueue":          c.AMQPQueue,
		"KafkaHost":          c.KafkaHost,
		"TLSEnable":          c.TLSEnable,
		"TLSSkipVerifyPeer":  c.TLSSkipVerifyPeer,
		"MaxPublishAttempts": c.MaxPublishAttempts,
		"BatchSize":          c.BatchSize,
		"PollFrequencyMs":    c.PollFrequencyMs,
		"PublishTimeoutMs":   c.PublishTimeoutMs,
		"QueryTimeoutMs":     c.QueryTimeoutMs,
		"SentRetentionHours": c.SentRetentionHours,
		"RunCleanup":         c.RunCleanup,
		"RunInbox":           c.RunInbox,
	})
}

func redactUrl(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}

	return u.String()
}

func (d DbDriver) MySQL() bool {
	return d == MySQL
}

func (d DbDriver) Postgres() bool {
	return d == Postgres
}

func (d DbDriver) String() string {
	return string(d)
}

func (t Transport) AMQP() bool {
	return t == AMQP
}

func (t Transport) Kafka() bool {
	return t == Kafka
}
