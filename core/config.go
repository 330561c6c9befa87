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

// build is set at link time: -ldflags "-X github.com/trezcool/masomo-credits/core.build=..."
var build = "develop"

type (
	Config struct {
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Credit   CreditConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		DisableReqLogs     bool
		ReadTimeout        time.Duration
		WriteTimeout       time.Duration
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	CreditConfig struct {
		DefaultPageSize int
		MaxPageSize     int
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// DefaultFromEmail parses the configured sender; falls back to noreply@<host>.
func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: "noreply@" + c.Server.Host}
}

// NewConfig loads the app Config from defaults, `config/.env.<env>` (if any) and environment variables.
// environment variables are prefixed with the current env, eg: PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)

	v.SetDefault("credit.defaultPageSize", 20)
	v.SetDefault("credit.maxPageSize", 100)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.name", "masomo_test")
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Build:            build,
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			ReadTimeout:        v.GetDuration("server.readTimeout"),
			WriteTimeout:       v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
		},
		Credit: CreditConfig{
			DefaultPageSize: v.GetInt("credit.defaultPageSize"),
			MaxPageSize:     v.GetInt("credit.maxPageSize"),
		},
	}
}
