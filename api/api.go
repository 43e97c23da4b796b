// Package api serves the REST surface of the CRM: authentication and OAuth,
// the resource catalog the front office runs on, the Stripe webhook, the
// chat WebSocket endpoint, the portal feed, and Prometheus metrics.
package api

import (
	"compress/flate"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DIGIT-HABs/back/auth"
	"github.com/DIGIT-HABs/back/automations"
	"github.com/DIGIT-HABs/back/chat"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/feed"
	"github.com/DIGIT-HABs/back/jobs"
	"github.com/DIGIT-HABs/back/matching"
	"github.com/DIGIT-HABs/back/notify"
	"github.com/DIGIT-HABs/back/payments"
	"github.com/DIGIT-HABs/back/reporting"
	"github.com/DIGIT-HABs/back/schedule"
)

// Repo is the slice of the storage layer the handlers read and write.
// db.Repository satisfies it.
type Repo interface {
	domain.UserRepository
	domain.ProfileRepository
	domain.ClientRepository
	domain.LeadRepository
	domain.PropertyRepository
	domain.AgencyRepository
	domain.AppointmentRepository
	domain.ReservationRepository
	domain.CommissionRepository
	domain.ChatRepository
	domain.NotificationRepository
	domain.ScriptRepository
	domain.StatsRepository
	domain.ConfigRepository
}

// Config wires the repositories and services the API serves from. Optional
// surfaces (OAuth, payments, chat, jobs, automations hub) may be left nil
// and their endpoints answer 503.
type Config struct {
	Repo       Repo
	Auth       *auth.Service
	Google     *auth.GoogleFlow
	Matcher    *matching.Service
	Scheduler  *schedule.Service
	Notifier   *notify.Service
	Payer      *payments.Service
	Reporter   *reporting.Service
	Feeds      *feed.Exporter
	Hub        *automations.Registry
	Engine     *automations.Engine
	Consumer   *chat.Consumer
	Runner     *jobs.Runner
	UploadsDir string
	Origins    []string
}

// Server carries the wired dependencies behind the router.
type Server struct {
	repo Repo

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
	consumer  *chat.Consumer
	runner    *jobs.Runner

	uploadsDir string
	origins    []string

	metrics  *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New builds the API server and its metrics registry.
func New(config Config) *Server {
	server := &Server{
		repo:       config.Repo,
		auth:       config.Auth,
		google:     config.Google,
		matcher:    config.Matcher,
		scheduler:  config.Scheduler,
		notifier:   config.Notifier,
		payer:      config.Payer,
		reporter:   config.Reporter,
		feeds:      config.Feeds,
		hub:        config.Hub,
		engine:     config.Engine,
		consumer:   config.Consumer,
		runner:     config.Runner,
		uploadsDir: config.UploadsDir,
		origins:    config.Origins,
	}

	server.metrics = prometheus.NewRegistry()
	server.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digithab_http_requests_total",
		Help: "HTTP requests served, by method, route, and status code.",
	}, []string{"method", "route", "status"})
	server.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "digithab_http_request_seconds",
		Help:    "HTTP request latency in seconds, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	server.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		server.requests,
		server.latency,
	)

	return server
}

// Router assembles the middleware chain and the full route catalog.
func (server *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(server.measure)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   server.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	compressor := middleware.NewCompressor(flate.DefaultCompression,
		"application/json", "application/xml", "text/html", "text/plain", "text/csv")
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	router.Use(compressor.Handler)

	router.Get("/healthz", server.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(server.metrics, promhttp.HandlerOpts{}))
	router.Get("/feed.xml", server.handleFeed)
	router.Post("/webhooks/stripe", server.handleStripeWebhook)
	router.Get("/ws/chat/{conversationID}", server.handleChat)

	if server.uploadsDir != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(server.uploadsDir)))
		router.Handle("/uploads/*", files)
	}

	router.Route("/api/v1", func(router chi.Router) {
		router.Route("/auth", func(router chi.Router) {
			router.Post("/register", server.handleRegister)
			router.Post("/login", server.handleLogin)
			router.Post("/refresh", server.handleRefresh)
			router.Get("/google", server.handleGoogleStart)
			router.Get("/google/callback", server.handleGoogleCallback)

			router.Group(func(router chi.Router) {
				router.Use(server.authenticate)
				router.Post("/logout", server.handleLogout)
				router.Get("/me", server.handleCurrentUser)
			})
		})

		router.Group(func(router chi.Router) {
			router.Use(server.authenticate)

			router.Route("/users", func(router chi.Router) {
				router.With(server.requireRole(domain.RoleAdmin)).Get("/", server.handleListUsers)
				router.With(server.requireRole(domain.RoleAdmin)).Post("/backfill-profiles", server.handleBackfillProfiles)
				router.Get("/{userID}", server.handleGetUser)
				router.Put("/{userID}", server.handleUpdateUser)
				router.Get("/{userID}/profile", server.handleGetProfile)
				router.Put("/{userID}/profile", server.handleUpdateProfile)
			})

			router.Route("/agencies", func(router chi.Router) {
				router.With(server.requireRole(domain.RoleAdmin)).Get("/", server.handleListAgencies)
				router.With(server.requireRole(domain.RoleAdmin)).Post("/", server.handleCreateAgency)
				router.Get("/{agencyID}", server.handleGetAgency)
				router.With(server.requireRole(domain.RoleAdmin)).Put("/{agencyID}", server.handleUpdateAgency)
				router.With(server.requireRole(domain.RoleAdmin)).Get("/{agencyID}/usage", server.handleAgencyUsage)
			})

			router.Route("/clients", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAgent, domain.RoleAdmin))
				router.Get("/", server.handleListClients)
				router.Get("/{clientID}", server.handleGetClient)
				router.Put("/{clientID}", server.handleUpdateClient)
				router.Get("/{clientID}/interactions", server.handleListInteractions)
				router.Post("/{clientID}/interactions", server.handleCreateInteraction)
				router.Post("/interactions/{interactionID}/complete", server.handleCompleteInteraction)
				router.Get("/{clientID}/notes", server.handleListNotes)
				router.Post("/{clientID}/notes", server.handleCreateNote)
				router.Get("/{clientID}/interests", server.handleListInterests)
				router.Post("/{clientID}/interests", server.handleCreateInterest)
				router.Get("/{clientID}/matches", server.handleClientMatches)
			})

			router.Route("/leads", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAgent, domain.RoleAdmin))
				router.Get("/", server.handleListLeads)
				router.Post("/", server.handleCreateLead)
				router.Get("/{leadID}", server.handleGetLead)
				router.Put("/{leadID}", server.handleUpdateLead)
				router.Post("/{leadID}/assign", server.handleAssignLead)
				router.Post("/{leadID}/convert", server.handleConvertLead)
				router.Get("/{leadID}/score", server.handleLeadScore)
			})

			router.Route("/properties", func(router chi.Router) {
				router.Get("/", server.handleListProperties)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Post("/", server.handleCreateProperty)
				router.Get("/{propertyID}", server.handleGetProperty)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Put("/{propertyID}", server.handleUpdateProperty)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Post("/{propertyID}/publish", server.handlePublishProperty)
				router.Post("/{propertyID}/view", server.handlePropertyView)
				router.Post("/{propertyID}/inquiry", server.handlePropertyInquiry)
				router.Get("/{propertyID}/media", server.handleListMedia)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Post("/{propertyID}/media", server.handleUploadMedia)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Delete("/media/{mediaID}", server.handleDeleteMedia)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Get("/{propertyID}/matches", server.handlePropertyExplanation)
			})

			router.Route("/commissions", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAgent, domain.RoleAdmin))
				router.Get("/", server.handleListCommissions)
				router.Post("/", server.handleCreateCommission)
				router.Get("/{commissionID}", server.handleGetCommission)
				router.With(server.requireRole(domain.RoleAdmin)).Post("/{commissionID}/approve", server.handleApproveCommission)
				router.With(server.requireRole(domain.RoleAdmin)).Post("/{commissionID}/pay", server.handlePayCommission)
				router.With(server.requireRole(domain.RoleAdmin)).Post("/{commissionID}/cancel", server.handleCancelCommission)
				router.Get("/summary", server.handleCommissionSummary)
			})

			router.Route("/appointments", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAgent, domain.RoleAdmin))
				router.Get("/", server.handleListAppointments)
				router.Post("/", server.handleCreateAppointment)
				router.Get("/{appointmentID}", server.handleGetAppointment)
				router.Put("/{appointmentID}", server.handleUpdateAppointment)
				router.Delete("/{appointmentID}", server.handleDeleteAppointment)
				router.Get("/slots", server.handleSlots)
				router.Get("/conflicts", server.handleConflicts)
				router.Get("/route", server.handleRoute)
				router.Get("/best-match", server.handleBestMatch)
			})

			router.Route("/reservations", func(router chi.Router) {
				router.Get("/", server.handleListReservations)
				router.Post("/", server.handleCreateReservation)
				router.Get("/{reservationID}", server.handleGetReservation)
				router.With(server.requireRole(domain.RoleAgent, domain.RoleAdmin)).Post("/{reservationID}/confirm", server.handleConfirmReservation)
				router.Post("/{reservationID}/cancel", server.handleCancelReservation)
				router.Post("/{reservationID}/deposit", server.handleCreateDeposit)
			})

			router.Route("/conversations", func(router chi.Router) {
				router.Get("/", server.handleListConversations)
				router.Post("/", server.handleCreateConversation)
				router.Get("/{conversationID}", server.handleGetConversation)
				router.Get("/{conversationID}/messages", server.handleListMessages)
			})

			router.Route("/notifications", func(router chi.Router) {
				router.Get("/", server.handleListNotifications)
				router.Post("/{notificationID}/read", server.handleMarkNotificationRead)
				router.Get("/settings", server.handleGetNotificationSettings)
				router.Put("/settings", server.handleUpdateNotificationSettings)
				router.Get("/stats", server.handleNotificationStats)
			})

			router.Route("/reports", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAgent, domain.RoleAdmin))
				router.Get("/clients/{clientID}", server.handleClientReport)
				router.Get("/agents/{agentID}", server.handleAgentReport)
				router.With(server.requireRole(domain.RoleAdmin)).Get("/agencies/{agencyID}", server.handleAgencyReport)
			})

			router.Route("/automations", func(router chi.Router) {
				router.Use(server.requireRole(domain.RoleAdmin))
				router.Get("/", server.handleListScripts)
				router.Get("/hub", server.handleHubManifest)
				router.Post("/install", server.handleInstallScript)
				router.Post("/{name}/enable", server.handleEnableScript)
				router.Post("/{name}/disable", server.handleDisableScript)
			})
		})
	})

	return router
}

// handleHealth answers liveness probes.
func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
