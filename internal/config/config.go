package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// RAKSHAK — Configuration with YAML base + Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Bus        BusConfig        `yaml:"bus"`
	StateStore StateStoreConfig `yaml:"state_store"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	TripStore  TripStoreConfig  `yaml:"trip_store"`
	Route      RouteConfig      `yaml:"route"`
	Behaviour  BehaviourConfig  `yaml:"behaviour"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Identity   IdentityConfig   `yaml:"identity"`
	Truck      TruckConfig      `yaml:"truck"`
	Perception PerceptionConfig `yaml:"perception"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// BusConfig selects the Bus backend: Pub/Sub when PubSubProjectID is set,
// either directly or from a URL of the form pubsub://project[/topic];
// in-process otherwise.
type BusConfig struct {
	URL             string `yaml:"url"`
	PubSubProjectID string `yaml:"pubsub_project_id"`
	PubSubTopicID   string `yaml:"pubsub_topic_id"`
}

// StateStoreConfig selects the State Store's KV backend.
type StateStoreConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// NotifierConfig selects the Notifier backend.
type NotifierConfig struct {
	Backend            string `yaml:"backend"` // "local" or "cloudtasks"
	Workers            int    `yaml:"workers"`
	CloudTasksProject  string `yaml:"cloud_tasks_project"`
	CloudTasksLocation string `yaml:"cloud_tasks_location"`
	CloudTasksQueue    string `yaml:"cloud_tasks_queue"`
	CallbackURL        string `yaml:"callback_url"`
	SMSProviderURL     string `yaml:"sms_provider_url"`
	SMSProviderToken   string `yaml:"sms_provider_token"`
	SMSFrom            string `yaml:"sms_from"`
	SMTPHost           string `yaml:"smtp_host"`
	SMTPPort           int    `yaml:"smtp_port"`
	SMTPUser           string `yaml:"smtp_user"`
	SMTPPassword       string `yaml:"smtp_password"`
	SMTPFrom           string `yaml:"smtp_from"`
}

// SummarizerConfig selects the Summarizer variant.
type SummarizerConfig struct {
	Provider      string `yaml:"provider"` // template | remote | local
	RemoteURL     string `yaml:"remote_url"`
	RemoteModelID string `yaml:"remote_model_id"`
}

// TripStoreConfig selects the CRUD store backend.
type TripStoreConfig struct {
	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseServiceKey string `yaml:"supabase_service_key"`
}

// RouteConfig controls geometry artifact loading.
type RouteConfig struct {
	GeometryPath  string `yaml:"geometry_path"`
	GeometryDBURL string `yaml:"geometry_db_url"`
}

// BehaviourConfig controls the learned Scorer model artifact.
type BehaviourConfig struct {
	ModelArtifactPath   string `yaml:"model_artifact_path"`
	ModelArtifactBucket string `yaml:"model_artifact_bucket"`
}

// FusionConfig controls the Bayesian network artifact and staleness window.
type FusionConfig struct {
	BayesArtifactPath string        `yaml:"bayes_artifact_path"`
	StalenessWindow   time.Duration `yaml:"staleness_window"`
}

// IdentityConfig wires an optional SPIFFE-authenticated mTLS listener.
type IdentityConfig struct {
	SPIFFESocketPath string `yaml:"spiffe_socket_path"`
}

// TruckConfig supplies the bridge's default truck id (TRUCK_ID) when a
// request omits one.
type TruckConfig struct {
	DefaultID string `yaml:"default_id"`
}

// PerceptionConfig selects the Detector backend. Resolution order:
// an explicit gRPC address, then a pooled sidecar image, then StubDetector.
type PerceptionConfig struct {
	DetectorGRPCAddr string `yaml:"detector_grpc_addr"`
	DetectorImage    string `yaml:"detector_image"`
	DetectorPoolMin  int    `yaml:"detector_pool_min"`
	DetectorPoolMax  int    `yaml:"detector_pool_max"`
}

// ArchiveConfig selects the durable incident archive backend.
type ArchiveConfig struct {
	Backend         string `yaml:"backend"` // "memory" or "spanner"
	SpannerProject  string `yaml:"spanner_project"`
	SpannerInstance string `yaml:"spanner_instance"`
	SpannerDatabase string `yaml:"spanner_database"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading config.yaml (if
// present) then applying environment overrides. Every knob is optional;
// the system runs with defaults.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file found, continuing with process environment")
		}

		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config.yaml, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variables over the YAML base.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("RAKSHAK_ENV", c.Server.Env)

	c.Bus.URL = getEnv("BUS_URL", c.Bus.URL)
	c.Bus.PubSubProjectID = getEnv("GCP_PROJECT_ID", c.Bus.PubSubProjectID)
	c.Bus.PubSubTopicID = getEnv("PUBSUB_TOPIC_ID", c.Bus.PubSubTopicID)
	if rest, ok := strings.CutPrefix(c.Bus.URL, "pubsub://"); ok && c.Bus.PubSubProjectID == "" {
		project, topic, _ := strings.Cut(rest, "/")
		c.Bus.PubSubProjectID = project
		if c.Bus.PubSubTopicID == "" {
			c.Bus.PubSubTopicID = topic
		}
	}

	c.StateStore.RedisAddr = getEnv("REDIS_ADDR", c.StateStore.RedisAddr)
	c.StateStore.RedisPassword = getEnv("REDIS_PASSWORD", c.StateStore.RedisPassword)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.StateStore.RedisDB = v
	}

	c.Notifier.Backend = getEnv("NOTIFIER_BACKEND", c.Notifier.Backend)
	if v := getEnvInt("NOTIFIER_WORKERS", 0); v > 0 {
		c.Notifier.Workers = v
	}
	c.Notifier.CloudTasksProject = getEnv("CLOUDTASKS_PROJECT", c.Notifier.CloudTasksProject)
	c.Notifier.CloudTasksQueue = getEnv("CLOUDTASKS_QUEUE", c.Notifier.CloudTasksQueue)
	c.Notifier.CloudTasksLocation = getEnv("CLOUDTASKS_LOCATION", c.Notifier.CloudTasksLocation)
	c.Notifier.CallbackURL = getEnv("NOTIFIER_CALLBACK_URL", c.Notifier.CallbackURL)
	c.Notifier.SMSProviderURL = getEnv("SMS_PROVIDER_URL", c.Notifier.SMSProviderURL)
	c.Notifier.SMSProviderToken = getEnv("SMS_PROVIDER_TOKEN", c.Notifier.SMSProviderToken)
	c.Notifier.SMSFrom = getEnv("SMS_PROVIDER_FROM", c.Notifier.SMSFrom)
	c.Notifier.SMTPHost = getEnv("SMTP_HOST", c.Notifier.SMTPHost)
	if v := getEnvInt("SMTP_PORT", 0); v > 0 {
		c.Notifier.SMTPPort = v
	}
	c.Notifier.SMTPUser = getEnv("SMTP_USER", c.Notifier.SMTPUser)
	c.Notifier.SMTPPassword = getEnv("SMTP_PASSWORD", c.Notifier.SMTPPassword)
	c.Notifier.SMTPFrom = getEnv("SMTP_FROM", c.Notifier.SMTPFrom)

	c.Summarizer.Provider = getEnv("LLM_PROVIDER", c.Summarizer.Provider)
	c.Summarizer.RemoteURL = getEnv("SUMMARIZER_REMOTE_URL", c.Summarizer.RemoteURL)
	c.Summarizer.RemoteModelID = getEnv("SUMMARIZER_REMOTE_MODEL_ID", c.Summarizer.RemoteModelID)

	c.TripStore.SupabaseURL = getEnv("SUPABASE_URL", c.TripStore.SupabaseURL)
	c.TripStore.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.TripStore.SupabaseServiceKey)

	c.Route.GeometryPath = getEnv("GEOMETRY_PATH", c.Route.GeometryPath)
	c.Route.GeometryDBURL = getEnv("GEOMETRY_DB_URL", c.Route.GeometryDBURL)

	c.Behaviour.ModelArtifactPath = getEnv("MODEL_ARTIFACT_PATH", c.Behaviour.ModelArtifactPath)
	c.Behaviour.ModelArtifactBucket = getEnv("MODEL_ARTIFACT_BUCKET", c.Behaviour.ModelArtifactBucket)

	c.Fusion.BayesArtifactPath = getEnv("BAYES_ARTIFACT_PATH", c.Fusion.BayesArtifactPath)
	if v := getEnvInt("FUSION_STALENESS_WINDOW_SEC", 0); v > 0 {
		c.Fusion.StalenessWindow = time.Duration(v) * time.Second
	}

	c.Identity.SPIFFESocketPath = getEnv("SPIFFE_SOCKET_PATH", c.Identity.SPIFFESocketPath)

	c.Truck.DefaultID = getEnv("TRUCK_ID", c.Truck.DefaultID)

	c.Perception.DetectorGRPCAddr = getEnv("DETECTOR_GRPC_ADDR", c.Perception.DetectorGRPCAddr)
	c.Perception.DetectorImage = getEnv("DETECTOR_IMAGE", c.Perception.DetectorImage)
	if v := getEnvInt("DETECTOR_POOL_MIN", 0); v > 0 {
		c.Perception.DetectorPoolMin = v
	}
	if v := getEnvInt("DETECTOR_POOL_MAX", 0); v > 0 {
		c.Perception.DetectorPoolMax = v
	}

	c.Archive.Backend = getEnv("ARCHIVE_BACKEND", c.Archive.Backend)
	c.Archive.SpannerProject = getEnv("SPANNER_PROJECT_ID", c.Archive.SpannerProject)
	c.Archive.SpannerInstance = getEnv("SPANNER_INSTANCE_ID", c.Archive.SpannerInstance)
	c.Archive.SpannerDatabase = getEnv("SPANNER_DATABASE_ID", c.Archive.SpannerDatabase)

	c.applyDefaults()
}

// applyDefaults sets the zero-configuration defaults.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Notifier.Backend == "" {
		c.Notifier.Backend = "local"
	}
	if c.Notifier.Workers == 0 {
		c.Notifier.Workers = 4
	}
	if c.Summarizer.Provider == "" {
		c.Summarizer.Provider = "template"
	}
	if c.Fusion.StalenessWindow == 0 {
		c.Fusion.StalenessWindow = 10 * time.Second
	}
	if c.Truck.DefaultID == "" {
		c.Truck.DefaultID = "TRUCK-DEFAULT"
	}
	if c.Perception.DetectorPoolMin == 0 {
		c.Perception.DetectorPoolMin = 1
	}
	if c.Perception.DetectorPoolMax == 0 {
		c.Perception.DetectorPoolMax = 3
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = "memory"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
