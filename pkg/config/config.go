package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	Planner    PlannerConfig
	Cron       CronConfig
	OpenAI     OpenAIConfig
	GoogleMaps GoogleMapsConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
	Outbox     OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.App.validate(); err != nil {
		return nil, err
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Planner.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREWPLANNER_APP_ENV" required:"true"`
	Port         string `envconfig:"CREWPLANNER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CREWPLANNER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CREWPLANNER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CREWPLANNER_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"CREWPLANNER_AUTO_MIGRATE" default:"false"`

	// CORSOrigins is a comma separated allow list for the dispatch console.
	CORSOrigins []string `envconfig:"CREWPLANNER_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) validate() error {
	switch strings.ToLower(a.LogFormat) {
	case LogFormatJSON, LogFormatConsole:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLogFormat, LogFormatJSON, LogFormatConsole)
	}
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREWPLANNER_SERVICE_KIND" default:"api"`

	// MetricsAddr is the listen address for worker metrics. Empty disables the listener.
	MetricsAddr string `envconfig:"CREWPLANNER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREWPLANNER_DB_DSN"`
	Driver string `envconfig:"CREWPLANNER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CREWPLANNER_DB_HOST"`
	LegacyPort     int    `envconfig:"CREWPLANNER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CREWPLANNER_DB_USER"`
	LegacyPassword string `envconfig:"CREWPLANNER_DB_PASSWORD"`
	LegacyName     string `envconfig:"CREWPLANNER_DB_NAME"`
	LegacySSLMode  string `envconfig:"CREWPLANNER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CREWPLANNER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREWPLANNER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREWPLANNER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREWPLANNER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CREWPLANNER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CREWPLANNER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CREWPLANNER_REDIS_ADDR"`
	Password     string        `envconfig:"CREWPLANNER_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREWPLANNER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREWPLANNER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREWPLANNER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREWPLANNER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREWPLANNER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREWPLANNER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PlannerConfig tunes the capacity/eligibility/routing engine.
type PlannerConfig struct {
	// UnrestrictedCrewPolicy decides how crews without any area schedule are treated: "open"
	// lets them serve every area, "closed" lets them serve none.
	UnrestrictedCrewPolicy string        `envconfig:"CREWPLANNER_PLANNER_UNRESTRICTED_CREW_POLICY" default:"open"`
	RouteStartRule         string        `envconfig:"CREWPLANNER_PLANNER_ROUTE_START_RULE" default:"first"`
	SlotHorizonDays        int           `envconfig:"CREWPLANNER_PLANNER_SLOT_HORIZON_DAYS" default:"14"`
	SlotFallbackCount      int           `envconfig:"CREWPLANNER_PLANNER_SLOT_FALLBACK_COUNT" default:"3"`
	OracleCandidateLimit   int           `envconfig:"CREWPLANNER_PLANNER_ORACLE_CANDIDATE_LIMIT" default:"20"`
	OracleTimeout          time.Duration `envconfig:"CREWPLANNER_ORACLE_TIMEOUT" default:"8s"`
	// OracleRateLimit caps oracle calls per minute across all instances. Zero disables the cap.
	OracleRateLimit int           `envconfig:"CREWPLANNER_PLANNER_ORACLE_RATE_LIMIT_PER_MINUTE" default:"30"`
	CommitLockTTL   time.Duration `envconfig:"CREWPLANNER_PLANNER_COMMIT_LOCK_TTL" default:"2m"`
	GeocodeMissing  bool          `envconfig:"CREWPLANNER_PLANNER_GEOCODE_MISSING" default:"false"`
}

func (p PlannerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.UnrestrictedCrewPolicy)) {
	case PolicyOpen, PolicyClosed:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPlannerUnrestrictedPolicy, PolicyOpen, PolicyClosed)
	}
	switch strings.ToLower(strings.TrimSpace(p.RouteStartRule)) {
	case StartRuleFirst, StartRuleNorthernmost:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPlannerRouteStartRule, StartRuleFirst, StartRuleNorthernmost)
	}
	if p.SlotHorizonDays <= 0 || p.SlotHorizonDays > 60 {
		return fmt.Errorf("%s must be between 1 and 60", EnvPlannerSlotHorizonDays)
	}
	if p.OracleRateLimit < 0 {
		return fmt.Errorf("%s must not be negative", EnvPlannerOracleRateLimit)
	}
	return nil
}

// OpenUnrestricted reports whether crews without schedules are eligible everywhere.
func (p PlannerConfig) OpenUnrestricted() bool {
	return !strings.EqualFold(strings.TrimSpace(p.UnrestrictedCrewPolicy), PolicyClosed)
}

type CronConfig struct {
	Interval      time.Duration `envconfig:"CREWPLANNER_CRON_INTERVAL" default:"24h"`
	ScanDays      int           `envconfig:"CREWPLANNER_CRON_SCAN_DAYS" default:"14"`
	AutoCommit    bool          `envconfig:"CREWPLANNER_CRON_AUTO_COMMIT" default:"false"`
	SequenceRoute bool          `envconfig:"CREWPLANNER_CRON_SEQUENCE_ROUTES" default:"true"`
	JobTimeout    time.Duration `envconfig:"CREWPLANNER_CRON_JOB_TIMEOUT" default:"30m"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"CREWPLANNER_OPENAI_API_KEY"`
	Model   string `envconfig:"CREWPLANNER_OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL string `envconfig:"CREWPLANNER_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"CREWPLANNER_GOOGLE_MAPS_API_KEY"`
	Region string `envconfig:"CREWPLANNER_GOOGLE_MAPS_REGION"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CREWPLANNER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CREWPLANNER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CREWPLANNER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"CREWPLANNER_PUBSUB_DOMAIN_TOPIC" default:"crewplanner-domain-events"`
	DomainSubscription string `envconfig:"CREWPLANNER_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize        int `envconfig:"CREWPLANNER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int `envconfig:"CREWPLANNER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int `envconfig:"CREWPLANNER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int `envconfig:"CREWPLANNER_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int `envconfig:"CREWPLANNER_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
