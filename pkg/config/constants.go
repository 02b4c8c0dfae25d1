package config

const EnvPrefix = "CREWPLANNER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

const (
	PolicyOpen   = "open"
	PolicyClosed = "closed"

	StartRuleFirst        = "first"
	StartRuleNorthernmost = "northernmost"
)

const (
	EnvAppEnv    = "CREWPLANNER_APP_ENV"
	EnvPort      = "CREWPLANNER_APP_PORT"
	EnvLogFormat = "CREWPLANNER_LOG_FORMAT"

	EnvDBDSN  = "CREWPLANNER_DB_DSN"
	EnvDBHost = "CREWPLANNER_DB_HOST"
	EnvDBUser = "CREWPLANNER_DB_USER"
	EnvDBName = "CREWPLANNER_DB_NAME"

	EnvRedisURL = "CREWPLANNER_REDIS_URL"

	EnvPlannerUnrestrictedPolicy = "CREWPLANNER_PLANNER_UNRESTRICTED_CREW_POLICY"
	EnvPlannerRouteStartRule     = "CREWPLANNER_PLANNER_ROUTE_START_RULE"
	EnvPlannerSlotHorizonDays    = "CREWPLANNER_PLANNER_SLOT_HORIZON_DAYS"
	EnvPlannerOracleRateLimit    = "CREWPLANNER_PLANNER_ORACLE_RATE_LIMIT_PER_MINUTE"
	EnvOracleTimeout             = "CREWPLANNER_ORACLE_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
