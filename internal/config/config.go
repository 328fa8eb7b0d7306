package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/puzzlehunt/huntserver/internal/logger"
	"github.com/puzzlehunt/huntserver/internal/validator"
)

type StaffKeyPermissions struct {
	Staff bool `mapstructure:"staff" json:"staff"`
	Admin bool `mapstructure:"admin" json:"admin"`
}

// Staff members authenticate with a configured key; the name is what shows up as a hint claimer.
type StaffKey struct {
	Active      *bool               `mapstructure:"active"      json:"active"      validate:"required"`
	ID          string              `mapstructure:"id"          json:"id"          validate:"required,uuid_rfc4122"`
	Name        string              `mapstructure:"name"        json:"name"        validate:"required"`
	Token       string              `mapstructure:"token"       json:"token"       validate:"required"`
	Permissions StaffKeyPermissions `mapstructure:"permissions" json:"permissions"`
}

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

type RateLimitConfig struct {
	RedisHost       string `mapstructure:"redis_host"`
	GlobalPerMinute int64  `mapstructure:"global_per_minute"`
	SubmitPerMinute int64  `mapstructure:"submit_per_minute"`
	FailOpen        bool   `mapstructure:"fail_open"`
}

type LeaderboardConfig struct {
	RedisHost string        `mapstructure:"redis_host"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Accrual schedule for hints or free answers.
//
// A team receives PerInterval[i] credits at StartTime + i*Interval (shifted earlier by the team's
// start offset), but nothing beyond manual awards until it is MinTeamAge old.
type AccrualConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	PerInterval []int         `mapstructure:"per_interval"`
	Interval    time.Duration `mapstructure:"interval"     validate:"required"`
	StartTime   time.Time     `mapstructure:"start_time"`
	MinTeamAge  time.Duration `mapstructure:"min_team_age"`
}

type HuntConfig struct {
	Title             string        `mapstructure:"title"                validate:"required"`
	StartTime         time.Time     `mapstructure:"start_time"           validate:"required"`
	EndTime           time.Time     `mapstructure:"end_time"             validate:"required"`
	CloseTime         time.Time     `mapstructure:"close_time"           validate:"required"`
	UnlockScheme      string        `mapstructure:"unlock_scheme"        validate:"required,oneof=counting deep"`
	MaxGuesses        int           `mapstructure:"max_guesses"          validate:"required"`
	MaxMembersPerTeam int           `mapstructure:"max_members_per_team" validate:"required"`
	IntroRoundSlug    string        `mapstructure:"intro_round_slug"`
	MetaMetaSlug      string        `mapstructure:"meta_meta_slug"`
	IntroHints        int           `mapstructure:"intro_hints"`
	OneHintAtATime    bool          `mapstructure:"one_hint_at_a_time"`
	SurveysEnabled    bool          `mapstructure:"surveys_enabled"`
	Hints             AccrualConfig `mapstructure:"hints"`
	FreeAnswers       AccrualConfig `mapstructure:"free_answers"`
}

type MailConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Region        string `mapstructure:"region"`
	FromEmail     string `mapstructure:"from_email"`
	FromName      string `mapstructure:"from_name"`
	ReplyTo       string `mapstructure:"reply_to"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Webhook URLs of a Discord compatible chat. Any channel left empty falls back to General; if General
// is empty alerts are only logged.
type AlertsConfig struct {
	General     string `mapstructure:"general"`
	Submissions string `mapstructure:"submissions"`
	FreeAnswers string `mapstructure:"free_answers"`
	Victory     string `mapstructure:"victory"`
	Hints       string `mapstructure:"hints"`
	Username    string `mapstructure:"username"`
}

// See huntserver.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig    `mapstructure:"postgres"               validate:"required"`
	Logging              *LoggingConfig     `mapstructure:"logging"                validate:"required"`
	Hunt                 *HuntConfig        `mapstructure:"hunt"                   validate:"required"`
	RateLimit            *RateLimitConfig   `mapstructure:"ratelimit"`
	Leaderboard          *LeaderboardConfig `mapstructure:"leaderboard"`
	Mail                 *MailConfig        `mapstructure:"mail"`
	Alerts               *AlertsConfig      `mapstructure:"alerts"`
	Domain               string             `mapstructure:"domain"                 validate:"required"`
	ListenAddress        string             `mapstructure:"listen_address"         validate:"required"`
	Staff                []StaffKey         `mapstructure:"staff"`
	GracefulShutdownSecs int64              `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel                string = "logging.app.level"
	EnvPrefix                  string = "huntserver"
	UseOTLP                    string = "logging.use_otlp"
	GlobalPerMinute            string = "ratelimit.global_per_minute"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	ListenAddress              string = "listen_address"
	Domain                     string = "domain"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresConnectonTTL       string = "postgres.connection_ttl"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RedisHost                  string = "ratelimit.redis_host"
	SubmitPerMinute            string = "ratelimit.submit_per_minute"
	LeaderboardRedisHost       string = "leaderboard.redis_host"
	LeaderboardCacheTTL        string = "leaderboard.cache_ttl"
	HuntTitle                  string = "hunt.title"
	HuntUnlockScheme           string = "hunt.unlock_scheme"
	HuntMaxGuesses             string = "hunt.max_guesses"
	HuntMaxMembersPerTeam      string = "hunt.max_members_per_team"
	HuntIntroRoundSlug         string = "hunt.intro_round_slug"
	HuntMetaMetaSlug           string = "hunt.meta_meta_slug"
	HuntOneHintAtATime         string = "hunt.one_hint_at_a_time"
	HuntHintsEnabled           string = "hunt.hints.enabled"
	HuntHintsInterval          string = "hunt.hints.interval"
	HuntHintsMinTeamAge        string = "hunt.hints.min_team_age"
	HuntFreeAnswersInterval    string = "hunt.free_answers.interval"
	HuntFreeAnswersMinTeamAge  string = "hunt.free_answers.min_team_age"
	MailEnabled                string = "mail.enabled"
	MailRegion                 string = "mail.region"
	MailSubjectPrefix          string = "mail.subject_prefix"
	AlertsUsername             string = "alerts.username"
	AlertsGeneral              string = "alerts.general"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("huntserver")

	v.AddConfigPath("/etc/huntserver/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{PostgresPassword, AlertsGeneral} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	SetDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	loaded, err := Load(v)
	if err != nil {
		configReady = false
		return nil, err
	}

	config = *loaded
	configReady = true
	return &config, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(Domain, "http://localhost:1323/")
	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectonTTL, 10*time.Minute)
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))

	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(GlobalPerMinute, 0)
	v.SetDefault(SubmitPerMinute, 0)
	v.SetDefault(RateLimitFailOpen, true)

	v.SetDefault(LeaderboardRedisHost, "")
	v.SetDefault(LeaderboardCacheTTL, 15*time.Second)

	v.SetDefault(HuntTitle, "Puzzle Hunt")
	v.SetDefault(HuntUnlockScheme, "counting")
	v.SetDefault(HuntMaxGuesses, 20)
	v.SetDefault(HuntMaxMembersPerTeam, 6)
	v.SetDefault(HuntIntroRoundSlug, "intro")
	v.SetDefault(HuntMetaMetaSlug, "meta-meta")
	v.SetDefault(HuntOneHintAtATime, true)
	v.SetDefault(HuntHintsEnabled, true)
	v.SetDefault(HuntHintsInterval, 24*time.Hour)
	v.SetDefault(HuntHintsMinTeamAge, 24*time.Hour)
	v.SetDefault(HuntFreeAnswersInterval, 24*time.Hour)
	v.SetDefault(HuntFreeAnswersMinTeamAge, 72*time.Hour)

	v.SetDefault(MailEnabled, false)
	v.SetDefault(MailRegion, "us-east-1")
	v.SetDefault(MailSubjectPrefix, "[Puzzle Hunt] ")
	v.SetDefault(AlertsUsername, "HuntBot")

	v.SetDefault(UseOTLP, false)

	v.SetDefault(GracefulShutdownSecs, 30)
}

// Unmarshals and validates an already populated viper instance
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	valid := validator.Create()
	if err := valid.Validate(&c); err != nil {
		return nil, err
	}

	if err := c.Hunt.check(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (h *HuntConfig) check() error {
	if !h.StartTime.Before(h.EndTime) {
		return fmt.Errorf("hunt start time %s must be before end time %s", h.StartTime, h.EndTime)
	}
	if h.CloseTime.Before(h.EndTime) {
		return fmt.Errorf("hunt close time %s must not be before end time %s", h.CloseTime, h.EndTime)
	}
	if h.IntroHints < 0 {
		return fmt.Errorf("intro hints must not be negative, got %d", h.IntroHints)
	}
	if h.Hints.StartTime.IsZero() {
		h.Hints.StartTime = h.StartTime.Add(h.Hints.Interval)
	}
	if h.FreeAnswers.StartTime.IsZero() {
		h.FreeAnswers.StartTime = h.StartTime.Add(h.FreeAnswers.Interval)
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
	)
}
