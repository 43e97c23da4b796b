// Package digithab provides the backend server for the DIGIT-HAB real-estate
// CRM. It wires the storage layer, the domain services, and the HTTP API into
// one orchestrator and is designed to be decoupled from the delivery binary:
// cmd/digithab only assembles options and drives the lifecycle.
//
// The core functionality includes:
//   - SQLite and PostgreSQL storage behind one repository interface
//   - JWT authentication with optional Google sign-in
//   - Lead scoring, client matching, and round-robin assignment
//   - Reservation scheduling with conflict detection and route planning
//   - Multi-channel notifications (WebSocket, email, SMS, push, in-app)
//   - Stripe deposits and commission payouts
//   - Lua automation scripts reacting to CRM events
//   - XML property feeds for the listing portals
//   - A host-routing gateway for co-hosted tenant applications
package digithab

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/auth"
	"github.com/DIGIT-HABs/back/automations"
	"github.com/DIGIT-HABs/back/chat"
	"github.com/DIGIT-HABs/back/core"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/feed"
	"github.com/DIGIT-HABs/back/geocode"
	"github.com/DIGIT-HABs/back/jobs"
	"github.com/DIGIT-HABs/back/matching"
	"github.com/DIGIT-HABs/back/notify"
	"github.com/DIGIT-HABs/back/payments"
	"github.com/DIGIT-HABs/back/reporting"
	"github.com/DIGIT-HABs/back/schedule"
)

// Repository is the full storage surface the server consumes. db.Repository
// satisfies it for both dialects.
type Repository interface {
	domain.UserRepository
	domain.TokenRepository
	domain.ProfileRepository
	domain.ClientRepository
	domain.LeadRepository
	domain.PropertyRepository
	domain.AgencyRepository
	domain.AppointmentRepository
	domain.ReservationRepository
	domain.CommissionRepository
	domain.PaymentRepository
	domain.ChatRepository
	domain.NotificationRepository
	domain.ScriptRepository
	domain.StatsRepository
	domain.ConfigRepository
	domain.LogRepository
	domain.RouteRepository
	Close() error
}

// Server is the orchestrator for the whole backend. It owns the configuration,
// the repository, and the service graph, and it serves the HTTP API.
type Server struct {
	ConfigDir string  // The configuration directory (holds config.yaml, the SQLite file, uploads, scripts)
	Config    *Config // The deployment configuration loaded from config.yaml
	Repo      Repository

	// OnLog, when set, is called for every persisted activity log entry.
	OnLog func(entry *domain.Log) error

	auth      *auth.Service
	google    *auth.GoogleFlow
	matcher   *matching.Service
	scheduler *schedule.Service
	notifier  *notify.Service
	payer     *payments.Service
	reporter  *reporting.Service
	feeds     *feed.Exporter
	hub       *automations.Registry
	engine    *automations.Engine
	chatHub   *chat.Hub
	consumer  *chat.Consumer
	runner    *jobs.Runner
	watcher   *automations.Watcher
	geocoder  *geocode.Client

	activity chan *domain.Log
	httpSrv  *http.Server
	stop     chan struct{}
}

// New creates a Server and applies the provided options. The automation
// engine exists from this point so scripts can be loaded before Start.
func New(options ...func(*Server) error) (*Server, error) {
	server := &Server{
		activity: make(chan *domain.Log, 32),
		stop:     make(chan struct{}),
	}
	server.engine = automations.NewEngine(server)
	err := server.WithOptions(options...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Engine exposes the automation engine, mainly so callers can inspect what
// is loaded.
func (server *Server) Engine() *automations.Engine {
	return server.engine
}

// WriteLog records an activity log entry. Entries go through a write channel
// and are persisted by a background writer once the server has started.
func (server *Server) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	switch level {
	case "DEBUG":
	case "INFO":
	case "WARN":
	case "ERROR":
	case "FATAL":
	default:
		return fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	entry := &domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, option := range options {
		err := option(entry)
		if err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}
	server.activity <- entry
	return nil
}

// writeActivity drains the activity channel into the repository. It runs for
// the lifetime of the process; a failed insert is logged and skipped so one
// bad entry cannot stall the writer.
func (server *Server) writeActivity() {
	for entry := range server.activity {
		if err := server.Repo.InsertLog(entry); err != nil {
			log.Printf("warning: persisting activity log: %v", err)
			continue
		}
		if server.OnLog != nil {
			if err := server.OnLog(entry); err != nil {
				log.Printf("warning: activity log handler: %v", err)
			}
		}
	}
}

// Notify implements automations.CRMService. Script notifications carry the
// "automation" kind and use the recipient's default channels.
func (server *Server) Notify(recipientID uuid.UUID, title string, message string, data map[string]any) error {
	if server.notifier == nil {
		return errors.New("notifications are not wired yet")
	}
	_, err := server.notifier.Create(recipientID, "automation", title, message, data, nil)
	if err != nil {
		return fmt.Errorf("creating script notification : %w", err)
	}
	return nil
}

// GetScriptRepo implements automations.CRMService.
func (server *Server) GetScriptRepo() (domain.ScriptRepository, error) {
	if server.Repo == nil {
		return nil, errors.New("no repository configured")
	}
	return server.Repo, nil
}

// GetCRMReader implements automations.CRMService.
func (server *Server) GetCRMReader() (automations.CRMReader, error) {
	if server.Repo == nil {
		return nil, errors.New("no repository configured")
	}
	return server.Repo, nil
}

// scriptLogOption is the runtime option the server attaches to every loaded
// script: print output lands in the activity log, attributed to the script
// that printed it.
func (server *Server) scriptLogOption() func(*automations.Runtime) error {
	return func(runtime *automations.Runtime) error {
		script := runtime.Data
		if script == nil {
			return errors.New("runtime has no script attached")
		}
		handler := func(scriptLog automations.ScriptLog) error {
			return server.WriteLog("DEBUG", scriptLog.Text, core.LogWithScriptID(script.ID))
		}
		return automations.ScriptWithLogHandler(handler)(runtime)
	}
}
