// Package config holds the application configuration tree loaded through
// go-config. Sections expose getter methods so consumers can depend on a
// narrow interface instead of the whole tree.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

type BaseConfig struct {
	App         App         `json:"app" yaml:"app"`
	Auth        Auth        `json:"auth" yaml:"auth"`
	Persistence Persistence `json:"persistence" yaml:"persistence"`
	Provider    Provider    `json:"provider" yaml:"provider"`
	Email       Email       `json:"email" yaml:"email"`
	Views       Views       `json:"views" yaml:"views"`
}

func (a *BaseConfig) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Auth),
		validation.Field(&a.Persistence),
	)
}

func (a BaseConfig) GetApp() App                 { return a.App }
func (a BaseConfig) GetAuth() Auth               { return a.Auth }
func (a BaseConfig) GetPersistence() Persistence { return a.Persistence }
func (a BaseConfig) GetProvider() Provider       { return a.Provider }
func (a BaseConfig) GetEmail() Email             { return a.Email }
func (a BaseConfig) GetViews() Views             { return a.Views }

type App struct {
	Name       string `json:"name" yaml:"name"`
	Env        string `json:"env" yaml:"env"`
	Address    string `json:"address" yaml:"address"`
	AdminEmail string `json:"admin_email" yaml:"admin_email"`
}

func (a App) GetName() string       { return a.Name }
func (a App) GetEnv() string        { return a.Env }
func (a App) GetAdminEmail() string { return a.AdminEmail }

func (a App) GetAddress() string {
	if a.Address == "" {
		return ":8080"
	}
	return a.Address
}

func (a App) IsProduction() bool { return a.Env == "production" }

type Auth struct {
	SigningKey                string   `json:"signing_key" yaml:"signing_key"`
	Issuer                    string   `json:"issuer" yaml:"issuer"`
	Audience                  []string `json:"audience" yaml:"audience"`
	SessionDurationExpression string   `json:"session_duration" yaml:"session_duration"`
	CookieName                string   `json:"cookie_name" yaml:"cookie_name"`
	SecureCookies             bool     `json:"secure_cookies" yaml:"secure_cookies"`
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
	)
}

func (a Auth) GetSigningKey() string  { return a.SigningKey }
func (a Auth) GetIssuer() string      { return a.Issuer }
func (a Auth) GetAudience() []string  { return a.Audience }
func (a Auth) GetSecureCookies() bool { return a.SecureCookies }

func (a Auth) GetCookieName() string {
	if a.CookieName == "" {
		return "user-id"
	}
	return a.CookieName
}

// GetSessionDuration parses the configured expression; an unset value keeps
// the 30 day default.
func (a Auth) GetSessionDuration() time.Duration {
	if a.SessionDurationExpression == "" {
		return 30 * 24 * time.Hour
	}
	dur, err := time.ParseDuration(a.SessionDurationExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", a.SessionDurationExpression),
		)
	}
	return dur
}

type Persistence struct {
	Debug                 bool   `json:"debug" yaml:"debug"`
	Driver                string `json:"driver" yaml:"driver"`
	Server                string `json:"server" yaml:"server"`
	Database              string `json:"database" yaml:"database"`
	DSN                   string `json:"dsn" yaml:"dsn"`
	PingTimeoutExpression string `json:"ping_timeout" yaml:"ping_timeout"`
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DSN, validation.Required),
	)
}

func (p Persistence) GetDebug() bool      { return p.Debug }
func (p Persistence) GetDriver() string   { return p.Driver }
func (p Persistence) GetServer() string   { return p.Server }
func (p Persistence) GetDatabase() string { return p.Database }
func (p Persistence) GetDSN() string      { return p.DSN }

func (p Persistence) GetOtelIdentifier() string { return "" }

func (p Persistence) GetPingTimeout() time.Duration {
	if p.PingTimeoutExpression == "" {
		return 5 * time.Second
	}
	dur, err := time.ParseDuration(p.PingTimeoutExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", p.PingTimeoutExpression),
		)
	}
	return dur
}

// Provider configures the upstream verification registry.
type Provider struct {
	Endpoint  string  `json:"endpoint" yaml:"endpoint"`
	APIKey    string  `json:"api_key" yaml:"api_key"`
	Source    string  `json:"source" yaml:"source"`
	UseMock   bool    `json:"use_mock" yaml:"use_mock"`
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `json:"rate_burst" yaml:"rate_burst"`
}

func (p Provider) GetEndpoint() string { return p.Endpoint }
func (p Provider) GetAPIKey() string   { return p.APIKey }
func (p Provider) GetSource() string   { return p.Source }
func (p Provider) GetUseMock() bool    { return p.UseMock }

func (p Provider) GetRateLimit() float64 {
	if p.RateLimit <= 0 {
		return 10
	}
	return p.RateLimit
}

func (p Provider) GetRateBurst() int {
	if p.RateBurst <= 0 {
		return 20
	}
	return p.RateBurst
}

// Email configures outbound credential delivery. Disabled configurations
// fall back to the console notifier so temp passwords still surface in dev.
type Email struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	From     string `json:"from" yaml:"from"`
}

func (e Email) GetEnabled() bool    { return e.Enabled }
func (e Email) GetHost() string     { return e.Host }
func (e Email) GetUsername() string { return e.Username }
func (e Email) GetPassword() string { return e.Password }
func (e Email) GetFrom() string     { return e.From }

func (e Email) GetPort() int {
	if e.Port == 0 {
		return 587
	}
	return e.Port
}

func (e Email) GetAddr() string {
	return fmt.Sprintf("%s:%d", e.GetHost(), e.GetPort())
}

type Views struct {
	Dir       string `json:"dir" yaml:"dir"`
	AssetsDir string `json:"assets_dir" yaml:"assets_dir"`
	Extension string `json:"extension" yaml:"extension"`
	Reload    bool   `json:"reload" yaml:"reload"`
}

func (v Views) GetReload() bool { return v.Reload }

func (v Views) GetDir() string {
	if v.Dir == "" {
		return "views"
	}
	return v.Dir
}

func (v Views) GetAssetsDir() string {
	if v.AssetsDir == "" {
		return "public"
	}
	return v.AssetsDir
}

func (v Views) GetExtension() string {
	if v.Extension == "" {
		return ".html"
	}
	return v.Extension
}
