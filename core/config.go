package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		ReadRateLimit             int // requests per minute
		WriteRateLimit            int // requests per minute
		RateLimitBurst            int
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		DSN           string // sqlite3 only
	}

	ContentConfig struct {
		Root    string
		Pattern string
		Watch   bool
	}

	BackendConfig struct {
		URL             string // empty: serve dynamic content in-process
		HealthTimeout   time.Duration
		RefreshInterval time.Duration
	}

	PDFConfig struct {
		Watermark   string
		PageWidthPx float64
		PaddingPx   float64
	}

	Config struct {
		Debug           bool
		TestMode        bool
		Env             string
		Build           string
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string
		WorkDir         string
		MaxContentBytes int64

		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Content  ContentConfig
		Backend  BackendConfig
		PDF      PDFConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Student Notes")
	v.SetDefault("secretKey", "kq8-w1r)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2ejh")
	v.SetDefault("defaultFromEmail", "Student Notes <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("workDir", "")
	v.SetDefault("notes.maxContentBytes", int64(10*1024*1024))

	v.SetDefault("server.host", ":8080")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.readRateLimit", 30)
	v.SetDefault("server.writeRateLimit", 10)
	v.SetDefault("server.rateLimitBurst", 5)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "notes")
	v.SetDefault("database.password", "notes")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.name", "notes")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.dsn", "file:notes.db?_foreign_keys=on")

	v.SetDefault("content.root", "content")
	v.SetDefault("content.pattern", "pages/**/*.{md,jsx}")
	v.SetDefault("content.watch", true)

	v.SetDefault("backend.url", "")
	v.SetDefault("backend.healthTimeout", 2*time.Second)
	v.SetDefault("backend.refreshInterval", 5*time.Minute)

	v.SetDefault("pdf.watermark", "shankar.com")
	v.SetDefault("pdf.pageWidthPx", 800.0)
	v.SetDefault("pdf.paddingPx", 40.0)
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// Values come from defaults, then config/.env.<env> (if present), then the environment.
// Environment variables are prefixed with the ENV and use "_" as key separator, e.g. DEV_SERVER_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := os.Getenv(env + "_WORKDIR")
	if workDir == "" {
		workDir = Getwd()
	}
	v.SetDefault("workDir", workDir)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return fromViper(v, env)
}

func fromViper(v *viper.Viper, env string) *Config {
	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		WorkDir:          v.GetString("workDir"),
		MaxContentBytes:  v.GetInt64("notes.maxContentBytes"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			ReadRateLimit:             v.GetInt("server.readRateLimit"),
			WriteRateLimit:            v.GetInt("server.writeRateLimit"),
			RateLimitBurst:            v.GetInt("server.rateLimitBurst"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			DSN:           v.GetString("database.dsn"),
		},
		Content: ContentConfig{
			Root:    v.GetString("content.root"),
			Pattern: v.GetString("content.pattern"),
			Watch:   v.GetBool("content.watch"),
		},
		Backend: BackendConfig{
			URL:             v.GetString("backend.url"),
			HealthTimeout:   v.GetDuration("backend.healthTimeout"),
			RefreshInterval: v.GetDuration("backend.refreshInterval"),
		},
		PDF: PDFConfig{
			Watermark:   v.GetString("pdf.watermark"),
			PageWidthPx: v.GetFloat64("pdf.pageWidthPx"),
			PaddingPx:   v.GetFloat64("pdf.paddingPx"),
		},
	}
}

// NewTestConfig returns the default configuration in TEST mode, without reading the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	v.Set("secretKey", "secret")
	v.Set("server.disableReqLogs", true)
	v.Set("server.readRateLimit", 0)
	v.Set("server.writeRateLimit", 0)
	conf := fromViper(v, "TEST")
	conf.WorkDir = ""
	return conf
}
