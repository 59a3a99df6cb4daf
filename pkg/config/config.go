package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	LogLevel   string
	Database   DatabaseConfig
	Warehouse  DatabaseConfig
	BI         BIConfig
	Jira       JiraConfig
	Kestra     KestraConfig
	Slack      SlackConfig
	Alerting   AlertingConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	S3         S3Config
	Dynamo     DynamoConfig
	Worker     WorkerConfig
	Security   SecurityConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	ApplicationName string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// BIConfig описывает подключение к базе с материализованным представлением BI.
type BIConfig struct {
	DatabaseConfig
	RefreshTable  string
	RefreshColumn string
}

type JiraConfig struct {
	Enabled    bool
	BaseURL    string
	Email      string
	APIToken   string
	JQL        string
	MaxResults int
	Timeout    time.Duration
	FilterURL  string
}

type KestraConfig struct {
	Enabled      bool
	BaseURL      string
	Tenant       string
	APIKey       string
	APIKeyHeader string
	Namespace    string
	Timeout      time.Duration
}

type SlackConfig struct {
	WebhookURL    string
	AllowedPrefix string
	Timeout       time.Duration
	MaxAttempts   int
}

type AlertingConfig struct {
	RedshiftThresholdMinutes int
	KPIAlertPct              float64
	Timezone                 string
	Location                 *time.Location
	CycleInterval            time.Duration
	CycleTimeout             time.Duration
	TestCooldown             time.Duration
	QueryListLimit           int
	WarehouseConsoleURL      string
	CollectorCacheTTL        time.Duration
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type CloudWatchConfig struct {
	Enabled         bool
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Namespace       string
	LogGroupName    string
	LogStreamName   string
	LogsEnabled     bool
	FlushInterval   time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type DynamoConfig struct {
	Enabled         bool
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// WorkerConfig используется отдельным бинарником monitor-worker.
type WorkerConfig struct {
	Port string
}

type SecurityConfig struct {
	AllowedOrigins     []string
	AuthEnabled        bool
	AuthToken          string
	TestSendRatePerMin int
	TestSendBurst      int
}

const (
	minCycleInterval = 10 * time.Second
	maxCycleInterval = 600 * time.Second
)

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cycleInterval, err := parseDuration(getEnv("AUTO_REFRESH_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTO_REFRESH_INTERVAL: %w", err)
	}
	if cycleInterval < minCycleInterval || cycleInterval > maxCycleInterval {
		return nil, fmt.Errorf("AUTO_REFRESH_INTERVAL must be between %s and %s", minCycleInterval, maxCycleInterval)
	}

	cycleTimeout, err := parseDuration(getEnv("CYCLE_TIMEOUT", "45s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CYCLE_TIMEOUT: %w", err)
	}

	testCooldown, err := parseDuration(getEnv("ALERT_TEST_COOLDOWN", "8s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_TEST_COOLDOWN: %w", err)
	}

	cacheTTL, err := parseDuration(getEnv("COLLECTOR_CACHE_TTL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTOR_CACHE_TTL: %w", err)
	}

	thresholdMin, err := getEnvInt("REDSHIFT_THRESHOLD_MIN", 10)
	if err != nil {
		return nil, err
	}

	kpiPct, err := getEnvFloat("KPI_ALERT_PCT", 0.20)
	if err != nil {
		return nil, err
	}

	timezone := getEnv("TZ_NAME", "America/Sao_Paulo")
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME: %w", err)
	}

	slackTimeout, err := parseDuration(getEnv("SLACK_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLACK_TIMEOUT: %w", err)
	}

	slackAttempts, err := getEnvInt("SLACK_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}

	jiraTimeout, err := parseDuration(getEnv("JIRA_TIMEOUT", "12s"))
	if err != nil {
		return nil, fmt.Errorf("invalid JIRA_TIMEOUT: %w", err)
	}

	jiraMaxResults, err := getEnvInt("JIRA_MAX_RESULTS", 20)
	if err != nil {
		return nil, err
	}

	kestraTimeout, err := parseDuration(getEnv("KESTRA_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid KESTRA_TIMEOUT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cwFlush, err := parseDuration(getEnv("CLOUDWATCH_FLUSH_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_FLUSH_INTERVAL: %w", err)
	}

	retentionDays, err := getEnvInt("DYNAMO_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	testRate, err := getEnvInt("ALERT_TEST_RATE_PER_MINUTE", 6)
	if err != nil {
		return nil, err
	}

	awsRegion := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Enabled:         getEnvBool("HISTORY_DB_ENABLED", true),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "monitor_dw"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			ApplicationName: "MonitorDW",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Warehouse: DatabaseConfig{
			Enabled:         getEnvBool("REDSHIFT_ENABLED", true),
			Host:            getEnv("REDSHIFT_HOST", "localhost"),
			Port:            getEnv("REDSHIFT_PORT", "5439"),
			User:            getEnv("REDSHIFT_USER", ""),
			Password:        getEnv("REDSHIFT_PASSWORD", ""),
			Database:        getEnv("REDSHIFT_DB", "dev"),
			SSLMode:         getEnv("REDSHIFT_SSLMODE", "require"),
			ApplicationName: "MonitorDW",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 10 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		BI: BIConfig{
			DatabaseConfig: DatabaseConfig{
				Enabled:         getEnvBool("BI_DB_ENABLED", true),
				Host:            getEnv("BI_DB_HOST", "localhost"),
				Port:            getEnv("BI_DB_PORT", "5432"),
				User:            getEnv("BI_DB_USER", ""),
				Password:        getEnv("BI_DB_PASSWORD", ""),
				Database:        getEnv("BI_DB_NAME", "bi"),
				SSLMode:         getEnv("BI_DB_SSLMODE", "require"),
				ApplicationName: "MonitorDW",
				MaxOpenConns:    2,
				MaxIdleConns:    1,
				ConnMaxLifetime: 10 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			RefreshTable:  getEnv("BI_REFRESH_TABLE", "robos_bi.mv_backlog_sap"),
			RefreshColumn: getEnv("BI_REFRESH_COLUMN", "etl_load_date"),
		},
		Jira: JiraConfig{
			Enabled:    getEnvBool("JIRA_ENABLED", true),
			BaseURL:    strings.TrimRight(getEnv("JIRA_BASE_URL", ""), "/"),
			Email:      getEnv("JIRA_EMAIL", ""),
			APIToken:   getEnv("JIRA_API_TOKEN", ""),
			JQL:        getEnv("JIRA_JQL", DefaultJiraJQL),
			MaxResults: jiraMaxResults,
			Timeout:    jiraTimeout,
			FilterURL:  getEnv("JIRA_FILTER_URL", ""),
		},
		Kestra: KestraConfig{
			Enabled:      getEnvBool("KESTRA_ENABLED", false),
			BaseURL:      strings.TrimRight(getEnv("KESTRA_BASE_URL", ""), "/"),
			Tenant:       getEnv("KESTRA_TENANT", "main"),
			APIKey:       getEnv("KESTRA_API_KEY", ""),
			APIKeyHeader: getEnv("KESTRA_API_KEY_HEADER", "X-EVINO-KESTRA-API-KEY"),
			Namespace:    getEnv("KESTRA_NAMESPACE", ""),
			Timeout:      kestraTimeout,
		},
		Slack: SlackConfig{
			WebhookURL:    getEnv("SLACK_WEBHOOK_URL", ""),
			AllowedPrefix: getEnv("SLACK_WEBHOOK_PREFIX", "https://hooks.slack.com/services/"),
			Timeout:       slackTimeout,
			MaxAttempts:   slackAttempts,
		},
		Alerting: AlertingConfig{
			RedshiftThresholdMinutes: thresholdMin,
			KPIAlertPct:              kpiPct,
			Timezone:                 timezone,
			Location:                 location,
			CycleInterval:            cycleInterval,
			CycleTimeout:             cycleTimeout,
			TestCooldown:             testCooldown,
			QueryListLimit:           20,
			WarehouseConsoleURL:      getEnv("REDSHIFT_CONSOLE_URL", ""),
			CollectorCacheTTL:        cacheTTL,
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		CloudWatch: CloudWatchConfig{
			Enabled:         getEnvBool("CLOUDWATCH_ENABLED", false),
			Region:          getEnv("CLOUDWATCH_REGION", awsRegion),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "MonitorDW"),
			LogGroupName:    getEnv("CLOUDWATCH_LOG_GROUP", "/monitor-dw/app"),
			LogStreamName:   getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("monitor-dw")),
			LogsEnabled:     getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			FlushInterval:   cwFlush,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", awsRegion),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", getEnv("AWS_ACCESS_KEY_ID", "")),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", getEnv("AWS_SECRET_ACCESS_KEY", "")),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "alerts"),
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMO_ENABLED", false),
			TableName:       getEnv("DYNAMO_TABLE", "monitor_dw_dispatches"),
			Region:          getEnv("DYNAMO_REGION", awsRegion),
			Endpoint:        getEnv("DYNAMO_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RetentionDays:   retentionDays,
		},
		Worker: WorkerConfig{
			Port: getEnv("WORKER_PORT", "8081"),
		},
		Security: SecurityConfig{
			AllowedOrigins:     splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:        getEnvBool("AUTH_ENABLED", false),
			AuthToken:          getEnv("AUTH_BEARER_TOKEN", ""),
			TestSendRatePerMin: testRate,
			TestSendBurst:      2,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultJiraJQL выбирает незакрытые задачи проекта TD, назначенные текущему пользователю или никому.
const DefaultJiraJQL = "project = TD AND resolution IS EMPTY AND statusCategory IN ('To Do','In Progress') " +
	"AND (assignee = currentUser() OR assignee IS EMPTY)"

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return errors.New("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.Alerting.RedshiftThresholdMinutes <= 0 {
		return errors.New("REDSHIFT_THRESHOLD_MIN must be positive")
	}
	if c.Alerting.KPIAlertPct < 0 || c.Alerting.KPIAlertPct > 1 {
		return errors.New("KPI_ALERT_PCT must be within [0, 1]")
	}
	if c.Slack.MaxAttempts < 1 {
		return errors.New("SLACK_MAX_ATTEMPTS must be >= 1")
	}
	if c.Jira.Enabled && c.Jira.BaseURL != "" && (c.Jira.Email == "" || c.Jira.APIToken == "") {
		return errors.New("JIRA_EMAIL and JIRA_API_TOKEN are required when JIRA_BASE_URL is set")
	}
	if c.Kestra.Enabled && c.Kestra.BaseURL == "" {
		return errors.New("KESTRA_BASE_URL is required when KESTRA_ENABLED=true")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return errors.New("S3_BUCKET is required when S3_ENABLED=true")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	if c.ApplicationName != "" {
		dsn += " application_name=" + c.ApplicationName
	}
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	current := ""

	for _, r := range raw {
		if r == ',' {
			if current != "" {
				items = append(items, current)
				current = ""
			}
			continue
		}
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			current += string(r)
		}
	}

	if current != "" {
		items = append(items, current)
	}

	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
