package digithab

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/spf13/viper"

	"github.com/DIGIT-HABs/back/automations"
	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/gateway"
	"github.com/DIGIT-HABs/back/geocode"
)

// WithOptions applies a series of configuration functions to the server
// instance. The first failing option aborts.
func (server *Server) WithOptions(options ...func(*Server) error) error {
	for _, option := range options {
		err := option(server)
		if err != nil {
			return fmt.Errorf("applying option on digithab : %w", err)
		}
	}
	return nil
}

// WithConfigDir points the server at its configuration directory, creating it
// on first run, and loads config.yaml through viper. When the file does not
// exist yet it is written out with defaults, including a freshly generated
// JWT secret.
func WithConfigDir(appConfigDir string) func(*Server) error {
	return func(server *Server) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("[*] creating config dir")
				err := os.MkdirAll(appConfigDir, 0700)
				if err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}
		server.ConfigDir = appConfigDir

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appConfigDir)
		v.SetDefault("environment", "development")
		v.SetDefault("http.address", "127.0.0.1")
		v.SetDefault("http.port", "8080")
		v.SetDefault("http.origins", []string{"https://crm.digit-hab.com"})
		v.SetDefault("database.dialect", db.DialectSQLite)
		v.SetDefault("database.dsn", path.Join(appConfigDir, "digithab.db"))
		v.SetDefault("geocoder_url", geocode.DefaultBaseURL)
		v.SetDefault("feed_base_url", "https://crm.digit-hab.com")
		v.SetDefault("script_hub", automations.DefaultScriptHub)
		v.SetDefault("uploads_dir", path.Join(appConfigDir, "uploads"))
		v.SetDefault("scripts_dir", path.Join(appConfigDir, "scripts"))
		v.SetDefault("working_hours", map[string]string{
			"monday":    "09:00-19:00",
			"tuesday":   "09:00-19:00",
			"wednesday": "09:00-19:00",
			"thursday":  "09:00-19:00",
			"friday":    "09:00-19:00",
			"saturday":  "10:00-18:00",
		})
		v.SetDefault("gateway.address", "0.0.0.0")
		v.SetDefault("gateway.port", "8443")
		v.SetDefault("gateway.rules", []gateway.Rule{
			{Host: "crm.digit-hab.com", Upstream: "http://127.0.0.1:8080"},
		})

		err = v.ReadInConfig()
		if err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				err = v.SafeWriteConfig()
				if err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}

		server.Config = &Config{viper: v}
		if err := v.Unmarshal(server.Config); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}
		server.Config.ConfigDir = appConfigDir

		if server.Config.JWTSecret == "" {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("generating jwt secret : %w", err)
			}
			server.Config.JWTSecret = hex.EncodeToString(secret)
			v.Set("jwt_secret", server.Config.JWTSecret)
		}

		v.Set("config_dir", appConfigDir)
		// Rewrite entire file from struct
		err = v.WriteConfig()
		if err != nil {
			return fmt.Errorf("writing config after unmarshalling : %w", err)
		}
		return nil
	}
}

// WithRepo hands the server its storage layer, closing any repository set
// earlier.
func WithRepo(repo Repository) func(*Server) error {
	return func(server *Server) error {
		if server.Repo != nil {
			if err := server.Repo.Close(); err != nil {
				return err
			}
			server.Repo = nil
		}
		server.Repo = repo
		return nil
	}
}

// WithScript loads a single automation script into the engine before the
// server starts. Enabled scripts from the repository are loaded on Start
// regardless.
func WithScript(script *domain.Script, options ...func(*automations.Runtime) error) func(*Server) error {
	return func(server *Server) error {
		if script == nil {
			return errors.New("script is nil")
		}
		options = append(options, server.scriptLogOption())
		if err := server.engine.Load(script, options...); err != nil {
			return fmt.Errorf("loading script %s : %w", script.Name, err)
		}
		return nil
	}
}

// WithLogHandler takes a handler function that will be executed for each
// persisted activity log entry.
func WithLogHandler(handler func(entry *domain.Log) error) func(*Server) error {
	return func(server *Server) error {
		if server.OnLog != nil {
			return errors.New("server already has a log handler defined")
		}
		server.OnLog = handler
		return nil
	}
}
