// Package config builds the process configuration once at startup. The
// resulting Config is a plain value passed into each adapter constructor;
// nothing in this package is mutated after Load returns.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel      string
	Server        Server
	Database      Database
	Redis         RedisConfig
	Kafka         Kafka
	ContentStore  ContentStore
	Ledger        Ledger
	Jobs          Jobs
	Watcher       Watcher
	Notifications Notifications
}

type Server struct {
	Addr           string
	Environment    string
	JWTSigningKey  string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers           string
	NotificationTopic string
	AuditTopic        string
	Acks              string
	Retries           int
	DeliveryTimeout   time.Duration
}

// ContentStore configures the content-addressed blob backend.
type ContentStore struct {
	Backend    string // "pinata" or "memory"
	APIURL     string
	GatewayURL string
	APIKey     string
	APISecret  string
	JWT        string
	Timeout    time.Duration
}

// Ledger configures the contract adapter. Keys are hex encoded secp256k1
// private keys; CustodialKeys maps lower-cased wallet addresses to keys the
// service signs with on that wallet's behalf.
type Ledger struct {
	Backend         string // "ethereum" or "memory"
	RPCURL          string
	ChainID         int64
	ContractAddress string
	OperatorKey     string
	CustodialKeys   map[string]string
	GasLimit        uint64
	GasPriceGwei    int64
	CallTimeout     time.Duration
	ConfirmTimeout  time.Duration
	ReceiptPoll     time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// GasPriceWei converts the configured gwei price.
func (l Ledger) GasPriceWei() *big.Int {
	return new(big.Int).Mul(big.NewInt(l.GasPriceGwei), big.NewInt(1_000_000_000))
}

type Jobs struct {
	Workers   int
	QueueSize int
	ResultTTL time.Duration
}

type Watcher struct {
	Enabled       bool
	Interval      time.Duration
	StartBlock    uint64
	MaxBlockRange uint64
}

type Notifications struct {
	Channel string // "kafka", "redis" or "log"
}

const (
	defaultPinataAPI     = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	defaultPinataGateway = "https://gateway.pinata.cloud/ipfs/"
)

// Load reads an optional dotenv file and then the process environment.
// A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	e := &envReader{}
	cfg := Config{
		LogLevel: e.str("LOG_LEVEL", "info"),
		Server: Server{
			Addr:           e.str("EKYC_ADDR", ":8080"),
			Environment:    e.str("ENVIRONMENT", "development"),
			JWTSigningKey:  e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TokenTTL:       e.duration("TOKEN_TTL", 15*time.Minute),
			RequestTimeout: e.duration("REQUEST_TIMEOUT", 30*time.Second),
			MaxUploadBytes: e.int64("MAX_UPLOAD_BYTES", 10<<20),
		},
		Database: Database{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           e.str("KAFKA_BROKERS", ""),
			NotificationTopic: e.str("KAFKA_NOTIFICATION_TOPIC", "ekyc.notifications"),
			AuditTopic:        e.str("KAFKA_AUDIT_TOPIC", "ekyc.audit.events"),
			Acks:              e.str("KAFKA_ACKS", "all"),
			Retries:           e.int("KAFKA_RETRIES", 3),
			DeliveryTimeout:   e.duration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
		},
		ContentStore: ContentStore{
			Backend:    e.str("CONTENT_STORE", "pinata"),
			APIURL:     e.str("PINATA_API_URL", defaultPinataAPI),
			GatewayURL: e.str("PINATA_GATEWAY_URL", defaultPinataGateway),
			APIKey:     e.str("PINATA_API_KEY", ""),
			APISecret:  e.str("PINATA_SECRET_API_KEY", ""),
			JWT:        e.str("PINATA_JWT", ""),
			Timeout:    e.duration("CONTENT_STORE_TIMEOUT", 30*time.Second),
		},
		Ledger: Ledger{
			Backend:         e.str("LEDGER", "ethereum"),
			RPCURL:          e.str("WEB3_PROVIDER", "http://localhost:8545"),
			ChainID:         e.int64("CHAIN_ID", 1337),
			ContractAddress: e.str("CONTRACT_ADDRESS", ""),
			OperatorKey:     strings.TrimPrefix(e.str("OPERATOR_PRIVATE_KEY", ""), "0x"),
			CustodialKeys:   e.keyMap("LEDGER_CUSTODIAL_KEYS"),
			GasLimit:        uint64(e.int64("GAS_LIMIT", 2_000_000)),
			GasPriceGwei:    e.int64("GAS_PRICE", 50),
			CallTimeout:     e.duration("LEDGER_CALL_TIMEOUT", 10*time.Second),
			ConfirmTimeout:  e.duration("LEDGER_CONFIRM_TIMEOUT", 2*time.Minute),
			ReceiptPoll:     e.duration("LEDGER_RECEIPT_POLL", time.Second),
			BreakerFailures: e.int("LEDGER_BREAKER_FAILURES", 5),
			BreakerCooldown: e.duration("LEDGER_BREAKER_COOLDOWN", 15*time.Second),
		},
		Jobs: Jobs{
			Workers:   e.int("JOB_WORKERS", 4),
			QueueSize: e.int("JOB_QUEUE_SIZE", 64),
			ResultTTL: e.duration("JOB_RESULT_TTL", time.Hour),
		},
		Watcher: Watcher{
			Enabled:       e.bool("LEDGER_WATCHER_ENABLED", false),
			Interval:      e.duration("LEDGER_WATCHER_INTERVAL", 15*time.Second),
			StartBlock:    uint64(e.int64("LEDGER_WATCHER_START_BLOCK", 0)),
			MaxBlockRange: uint64(e.int64("LEDGER_WATCHER_MAX_RANGE", 2000)),
		},
		Notifications: Notifications{
			Channel: e.str("NOTIFICATION_CHANNEL", "log"),
		},
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate rejects configurations that would only fail later at first use.
func (c Config) Validate() error {
	var errs []error
	switch c.ContentStore.Backend {
	case "memory":
	case "pinata":
		if c.ContentStore.JWT == "" && (c.ContentStore.APIKey == "" || c.ContentStore.APISecret == "") {
			errs = append(errs, errors.New("pinata requires PINATA_JWT or PINATA_API_KEY and PINATA_SECRET_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CONTENT_STORE %q", c.ContentStore.Backend))
	}
	switch c.Ledger.Backend {
	case "memory":
	case "ethereum":
		if !common.IsHexAddress(c.Ledger.ContractAddress) {
			errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS %q is not a hex address", c.Ledger.ContractAddress))
		}
		if c.Ledger.ChainID <= 0 {
			errs = append(errs, errors.New("CHAIN_ID must be positive"))
		}
		for addr := range c.Ledger.CustodialKeys {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Errorf("custodial key address %q is not a hex address", addr))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER %q", c.Ledger.Backend))
	}
	switch c.Notifications.Channel {
	case "log":
	case "kafka":
		if c.Kafka.Brokers == "" {
			errs = append(errs, errors.New("NOTIFICATION_CHANNEL=kafka requires KAFKA_BROKERS"))
		}
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("NOTIFICATION_CHANNEL=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFICATION_CHANNEL %q", c.Notifications.Channel))
	}
	if c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("JOB_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) int(key string, def int) int {
	return int(e.int64(key, int64(def)))
}

func (e *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// keyMap parses "0xaddr=hexkey,0xaddr=hexkey".
func (e *envReader) keyMap(key string) map[string]string {
	out := make(map[string]string)
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, k, ok := strings.Cut(pair, "=")
		if !ok {
			e.errs = append(e.errs, fmt.Errorf("%s: entry %q is not addr=key", key, pair))
			continue
		}
		out[strings.ToLower(strings.TrimSpace(addr))] = strings.TrimPrefix(strings.TrimSpace(k), "0x")
	}
	return out
}
