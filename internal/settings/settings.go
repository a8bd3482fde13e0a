// Package settings loads albumd process configuration with viper.
//
// Values come from a Settings.{toml,yaml,json} file and ALBUMD_* environment variables;
// nested keys join with an underscore, so server.port is ALBUMD_SERVER_PORT. The
// namespaces list is file-only and defaults to goSession.DefaultConfig's admin and user
// namespaces.
package settings

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/password"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "ALBUMD"
	configName     = "Settings"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Settings struct {
	Server       Server          `mapstructure:"server"`
	Log          Log             `mapstructure:"log"`
	Store        Store           `mapstructure:"store"`
	Namespaces   []Namespace     `mapstructure:"namespaces"`
	Audit        Audit           `mapstructure:"audit"`
	Metrics      Metrics         `mapstructure:"metrics"`
	LoginLimit   LoginLimit      `mapstructure:"login_limit"`
	Password     password.Params `mapstructure:"password"`
	DefaultAdmin Account         `mapstructure:"default_admin"`
	DefaultUser  Account         `mapstructure:"default_user"`
}

type Server struct {
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	Key             string        `mapstructure:"key"`
	KeyFile         string        `mapstructure:"key_file"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is hostname:port.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Hostname, strconv.Itoa(s.Port))
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Store struct {
	Driver   string   `mapstructure:"driver"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Postgres struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// Namespace mirrors goSession.NamespaceConfig with file keys. An omitted secure key means
// true and an omitted same_site means lax.
type Namespace struct {
	Name          string        `mapstructure:"name"`
	CookieName    string        `mapstructure:"cookie_name"`
	Path          string        `mapstructure:"path"`
	Domain        string        `mapstructure:"domain"`
	Secure        *bool         `mapstructure:"secure"`
	SameSite      http.SameSite `mapstructure:"same_site"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	LoginDeadline time.Duration `mapstructure:"login_deadline"`
	VisitDeadline time.Duration `mapstructure:"visit_deadline"`
	Leeway        time.Duration `mapstructure:"leeway"`
	RequiredRole  string        `mapstructure:"required_role"`
}

type Audit struct {
	Enabled    bool   `mapstructure:"enabled"`
	BufferSize int    `mapstructure:"buffer_size"`
	DropIfFull bool   `mapstructure:"drop_if_full"`
	File       string `mapstructure:"file"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Latency bool   `mapstructure:"latency"`
	Path    string `mapstructure:"path"`
}

// LoginLimit throttles failed logins through the store.redis connection.
type LoginLimit struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	PerIP       bool          `mapstructure:"per_ip"`
}

// Account is a user seeded at startup. An empty username skips seeding.
type Account struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Nickname string `mapstructure:"nickname"`
	Role     string `mapstructure:"role"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.key", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "album")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 8)
	v.SetDefault("store.postgres.ensure_schema", true)

	engine := goSession.DefaultConfig()
	v.SetDefault("audit.enabled", engine.Audit.Enabled)
	v.SetDefault("audit.buffer_size", engine.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", engine.Audit.DropIfFull)
	v.SetDefault("audit.file", "")
	v.SetDefault("metrics.enabled", engine.Metrics.Enabled)
	v.SetDefault("metrics.latency", engine.Metrics.EnableLatencyHistograms)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("login_limit.enabled", false)
	v.SetDefault("login_limit.max_attempts", 5)
	v.SetDefault("login_limit.window", 15*time.Minute)
	v.SetDefault("login_limit.per_ip", true)

	p := password.DefaultParams()
	v.SetDefault("password.memory", p.Memory)
	v.SetDefault("password.iterations", p.Iterations)
	v.SetDefault("password.threads", p.Threads)
	v.SetDefault("password.salt_length", p.SaltLength)
	v.SetDefault("password.key_length", p.KeyLength)
	v.SetDefault("password.min_length", p.MinLength)
	v.SetDefault("password.max_length", p.MaxLength)

	for _, acct := range []string{"default_admin", "default_user"} {
		for _, field := range []string{"username", "password", "nickname", "role"} {
			v.SetDefault(acct+"."+field, "")
		}
	}
}

// Load reads configFile, or ./Settings.* when configFile is empty, then applies ALBUMD_*
// overrides. A missing ./Settings file is not an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("settings: read %q: %w", configFile, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("settings: read %s: %w", configName, err)
			}
		}
	}

	var s Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(stringToSameSiteHook),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return nil, fmt.Errorf("settings: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func stringToSameSiteHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(http.SameSite(0)) {
		return data, nil
	}
	return parseSameSite(data.(string))
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return http.SameSiteDefaultMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("settings: unknown same_site %q", s)
	}
}

// Validate checks the fields albumd cannot start without.
func (s *Settings) Validate() error {
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("settings: server.port %d out of range", s.Server.Port)
	}
	if s.Server.Key == "" && s.Server.KeyFile == "" {
		return errors.New("settings: server.key or server.key_file is required")
	}
	switch s.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if s.Store.Postgres.DSN == "" {
			return errors.New("settings: store.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("settings: unknown store.driver %q", s.Store.Driver)
	}
	if s.LoginLimit.Enabled && (s.LoginLimit.MaxAttempts <= 0 || s.LoginLimit.Window <= 0) {
		return errors.New("settings: login_limit needs positive max_attempts and window")
	}
	if err := s.Password.Validate(); err != nil {
		return err
	}
	for _, acct := range []Account{s.DefaultAdmin, s.DefaultUser} {
		if acct.Username != "" && acct.Password == "" {
			return fmt.Errorf("settings: seed account %q has no password", acct.Username)
		}
	}
	cfg := s.EngineConfig()
	return cfg.Validate()
}

// MasterKey decodes server.key, or reads server.key_file, into the engine master secret.
// Both standard and URL-safe base64 are accepted.
func (s *Settings) MasterKey() ([]byte, error) {
	raw := s.Server.Key
	if s.Server.KeyFile != "" {
		b, err := os.ReadFile(s.Server.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("settings: read key file: %w", err)
		}
		raw = string(b)
	}
	raw = strings.TrimRight(strings.TrimSpace(raw), "=")

	enc := base64.RawStdEncoding
	if strings.ContainsAny(raw, "-_") {
		enc = base64.RawURLEncoding
	}
	key, err := enc.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("settings: decode server key: %w", err)
	}
	return key, nil
}

// EngineConfig converts the settings into a goSession.Config.
func (s *Settings) EngineConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	if len(s.Namespaces) > 0 {
		cfg.Namespaces = make([]goSession.NamespaceConfig, 0, len(s.Namespaces))
		for _, ns := range s.Namespaces {
			secure := true
			if ns.Secure != nil {
				secure = *ns.Secure
			}
			cfg.Namespaces = append(cfg.Namespaces, goSession.NamespaceConfig{
				Name:          ns.Name,
				CookieName:    ns.CookieName,
				Path:          ns.Path,
				Domain:        ns.Domain,
				Secure:        secure,
				SameSite:      ns.SameSite,
				MaxAge:        ns.MaxAge,
				LoginDeadline: ns.LoginDeadline,
				VisitDeadline: ns.VisitDeadline,
				Leeway:        ns.Leeway,
				RequiredRole:  ns.RequiredRole,
			})
		}
	}
	cfg.Audit = goSession.AuditConfig{
		Enabled:    s.Audit.Enabled,
		BufferSize: s.Audit.BufferSize,
		DropIfFull: s.Audit.DropIfFull,
	}
	cfg.Metrics = goSession.MetricsConfig{
		Enabled:                 s.Metrics.Enabled,
		EnableLatencyHistograms: s.Metrics.Latency,
	}
	return cfg
}

// Seeds returns the configured seed accounts that have a username. Roles default to
// "admin" and "user".
func (s *Settings) Seeds() []Account {
	var out []Account
	for _, a := range []struct {
		acct Account
		role string
	}{{s.DefaultAdmin, "admin"}, {s.DefaultUser, "user"}} {
		if a.acct.Username == "" {
			continue
		}
		if a.acct.Role == "" {
			a.acct.Role = a.role
		}
		out = append(out, a.acct)
	}
	return out
}
