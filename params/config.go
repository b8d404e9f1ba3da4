package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Node struct {
	DBPath   string
	InMemory bool // pebble on vfs.NewMem, for devnets
	LogFile  string
	LogLevel string

	// Address and code hash this order book answers as.
	ContractAddress  string
	ContractCodeHash string
	// Deployer recorded as the sender of Init.
	Deployer string
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

// Registration is the InitMsg the node instantiates itself with on an empty store.
type Registration struct {
	FactoryAddress  string
	FactoryCodeHash string
	FactoryKey      string
	Token1Address   string
	Token1CodeHash  string
	Token2Address   string
	Token2CodeHash  string
}

type Registry struct {
	Mode    string // "local" or "http"
	URL     string
	Timeout time.Duration
}

type Dispatch struct {
	Mode   string // "log", "kafka" or "pubsub"
	Buffer int

	KafkaBrokers []string
	KafkaTopic   string

	P2PListen    string
	P2PBootstrap []string
	P2PTopic     string
}

type Config struct {
	Node         Node
	API          API
	Registration Registration
	Registry     Registry
	Dispatch     Dispatch
}

func Default() Config {
	return Config{
		Node: Node{
			DBPath:           "data/orderbook",
			LogFile:          "data/node.log",
			LogLevel:         "info",
			ContractAddress:  "0x00000000000000000000000000000000000b00c5",
			ContractCodeHash: "secret-orderbook",
			Deployer:         "0x0000000000000000000000000000000000000001",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Registration: Registration{
			FactoryAddress: "0x00000000000000000000000000000000000000fa",
			Token1Address:  "0x0000000000000000000000000000000000000011",
			Token2Address:  "0x0000000000000000000000000000000000000022",
		},
		Registry: Registry{
			Mode:    "local",
			Timeout: 5 * time.Second,
		},
		Dispatch: Dispatch{
			Mode:       "log",
			Buffer:     256,
			KafkaTopic: "orderbook.outbound",
			P2PListen:  "/ip4/0.0.0.0/tcp/4001",
			P2PTopic:   "secret-orderbook/outbound/1.0.0",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.InMemory = getBool("DB_IN_MEMORY", cfg.Node.InMemory)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.ContractAddress = getEnv("CONTRACT_ADDRESS", cfg.Node.ContractAddress)
	cfg.Node.ContractCodeHash = getEnv("CONTRACT_CODE_HASH", cfg.Node.ContractCodeHash)
	cfg.Node.Deployer = getEnv("DEPLOYER_ADDRESS", cfg.Node.Deployer)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.AllowedOrigins = getList("API_ALLOWED_ORIGINS", cfg.API.AllowedOrigins)

	r := &cfg.Registration
	r.FactoryAddress = getEnv("FACTORY_ADDRESS", r.FactoryAddress)
	r.FactoryCodeHash = getEnv("FACTORY_CODE_HASH", r.FactoryCodeHash)
	r.FactoryKey = getEnv("FACTORY_KEY", r.FactoryKey)
	r.Token1Address = getEnv("TOKEN1_ADDRESS", r.Token1Address)
	r.Token1CodeHash = getEnv("TOKEN1_CODE_HASH", r.Token1CodeHash)
	r.Token2Address = getEnv("TOKEN2_ADDRESS", r.Token2Address)
	r.Token2CodeHash = getEnv("TOKEN2_CODE_HASH", r.Token2CodeHash)

	cfg.Registry.Mode = getEnv("REGISTRY_MODE", cfg.Registry.Mode)
	cfg.Registry.URL = getEnv("REGISTRY_URL", cfg.Registry.URL)
	cfg.Registry.Timeout = getMillis("REGISTRY_TIMEOUT_MS", cfg.Registry.Timeout)

	d := &cfg.Dispatch
	d.Mode = getEnv("DISPATCH_MODE", d.Mode)
	d.Buffer = getInt("DISPATCH_BUFFER", d.Buffer)
	d.KafkaBrokers = getList("KAFKA_BROKERS", d.KafkaBrokers)
	d.KafkaTopic = getEnv("KAFKA_TOPIC", d.KafkaTopic)
	d.P2PListen = getEnv("LISTEN", d.P2PListen)
	d.P2PBootstrap = getList("P2P_BOOTSTRAP", d.P2PBootstrap)
	d.P2PTopic = getEnv("P2P_TOPIC", d.P2PTopic)

	return cfg
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	if c.Registration.FactoryKey == "" {
		errs = append(errs, errors.New("FACTORY_KEY is required"))
	}
	if c.Registration.Token1Address == c.Registration.Token2Address {
		errs = append(errs, errors.New("TOKEN1_ADDRESS and TOKEN2_ADDRESS must differ"))
	}
	switch c.Registry.Mode {
	case "local":
	case "http":
		if c.Registry.URL == "" {
			errs = append(errs, errors.New("REGISTRY_URL is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REGISTRY_MODE %q", c.Registry.Mode))
	}
	switch c.Dispatch.Mode {
	case "log", "pubsub":
	case "kafka":
		if len(c.Dispatch.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required in kafka mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DISPATCH_MODE %q", c.Dispatch.Mode))
	}
	return errors.Join(errs...)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

// getList reads a comma-separated list, e.g. "host1:9092,host2:9092".
func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
