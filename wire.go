package digithab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DIGIT-HABs/back/api"
	"github.com/DIGIT-HABs/back/auth"
	"github.com/DIGIT-HABs/back/automations"
	"github.com/DIGIT-HABs/back/chat"
	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/feed"
	"github.com/DIGIT-HABs/back/gateway"
	"github.com/DIGIT-HABs/back/geocode"
	"github.com/DIGIT-HABs/back/jobs"
	"github.com/DIGIT-HABs/back/matching"
	"github.com/DIGIT-HABs/back/notify"
	"github.com/DIGIT-HABs/back/payments"
	"github.com/DIGIT-HABs/back/reporting"
	"github.com/DIGIT-HABs/back/schedule"
)

// shutdownTimeout bounds the graceful drain of in-flight API requests.
const shutdownTimeout = 10 * time.Second

// wire builds the service graph from the configuration and the repository.
// Optional integrations stay nil when their keys are absent; the API answers
// 503 for those surfaces.
func (server *Server) wire() error {
	config := server.Config

	server.auth = auth.NewService(server.Repo, server.Repo, server.Repo, config.JWTSecret)
	if config.Google.ClientID != "" && config.Google.ClientSecret != "" {
		server.google = auth.NewGoogleFlow(server.auth, config.Google.ClientID, config.Google.ClientSecret, config.Google.RedirectURL)
	}

	server.notifier = notify.NewService(server.Repo, server.Repo)
	server.matcher = matching.NewService(server.Repo, server.Repo, server.Repo, server.Repo, server.Repo, server.notifier)
	server.scheduler = schedule.NewService(server.Repo, server.Repo, server.Repo)
	server.reporter = reporting.NewService(server.Repo, server.Repo, server.Repo, server.Repo)
	server.feeds = feed.NewExporter(server.Repo, server.Repo, config.FeedBaseURL)
	server.geocoder = geocode.New(config.GeocoderURL)

	var redisClient *redis.Client
	if config.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
	}
	server.chatHub = chat.NewHub(redisClient)
	server.consumer = chat.NewConsumer(server.chatHub, server.Repo, server.Repo, server.auth)

	server.notifier.Register(domain.ChannelWebsocket, chat.NewWebsocketChannel(server.chatHub))
	server.notifier.Register(domain.ChannelPush, notify.PushChannel{})
	if config.SMTP.Host != "" {
		email, err := notify.NewEmailChannel(config.SMTP.Host, config.SMTP.Port, config.SMTP.Username, config.SMTP.Password, config.SMTP.From)
		if err != nil {
			return fmt.Errorf("wiring email channel : %w", err)
		}
		server.notifier.Register(domain.ChannelEmail, email)
	}
	if config.Twilio.AccountSID != "" {
		server.notifier.Register(domain.ChannelSMS, notify.NewSMSChannel(config.Twilio.AccountSID, config.Twilio.AuthToken, config.Twilio.From))
	}

	if config.Stripe.SecretKey != "" {
		stripeClient := payments.NewStripeClient(config.Stripe.SecretKey)
		server.payer = payments.NewService(stripeClient, server.Repo, server.Repo, server.Repo, server.Repo, config.Stripe.WebhookSecret)
		server.payer.OnCommissionPaid = server.engine.CommissionPaid
	}

	hub, err := automations.NewRegistry(config.ScriptHub)
	if err != nil {
		return fmt.Errorf("wiring script hub : %w", err)
	}
	server.hub = hub

	return nil
}

// seedWorkingHours writes the configured working hours into the database the
// first time the server starts against an empty schedule configuration.
func (server *Server) seedWorkingHours() {
	existing, err := server.Repo.GetWorkingHours()
	if err != nil {
		log.Printf("warning: reading working hours: %v", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	hours, err := server.Config.WorkingHoursByWeekday()
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	if len(hours) == 0 {
		return
	}
	if err := server.Repo.SetWorkingHours(hours); err != nil {
		log.Printf("warning: seeding working hours: %v", err)
	}
}

// Start wires the services, brings up the background machinery, and serves
// the HTTP API. It blocks until the context is cancelled, Stop is called, or
// the listener fails.
func (server *Server) Start(ctx context.Context) error {
	if server.Repo == nil {
		return errors.New("no repository configured")
	}
	if server.Config == nil {
		return errors.New("no configuration loaded")
	}

	go server.writeActivity()

	if err := server.wire(); err != nil {
		return err
	}
	server.seedWorkingHours()

	if server.Config.RedisAddr != "" {
		runner, err := jobs.New(server.Config.RedisAddr, server.Repo, server.notifier, server.matcher, server.geocoder)
		if err != nil {
			log.Printf("warning: background jobs disabled: %v", err)
		} else if err := runner.Start(); err != nil {
			log.Printf("warning: background jobs disabled: %v", err)
		} else {
			server.runner = runner
		}
	}

	if server.Config.ScriptsDir != "" {
		watcher, err := automations.NewWatcher(server.engine, server.Config.ScriptsDir)
		if err != nil {
			log.Printf("warning: script watcher disabled: %v", err)
		} else if err := watcher.Start(ctx); err != nil {
			log.Printf("warning: script watcher disabled: %v", err)
		} else {
			server.watcher = watcher
			if err := watcher.Sync(); err != nil {
				log.Printf("warning: syncing scripts dir: %v", err)
			}
		}
	}
	if err := server.engine.LoadEnabled(server.scriptLogOption()); err != nil {
		log.Printf("warning: loading automations: %v", err)
	}

	apiServer := api.New(api.Config{
		Repo:       server.Repo,
		Auth:       server.auth,
		Google:     server.google,
		Matcher:    server.matcher,
		Scheduler:  server.scheduler,
		Notifier:   server.notifier,
		Payer:      server.payer,
		Reporter:   server.reporter,
		Feeds:      server.feeds,
		Hub:        server.hub,
		Engine:     server.engine,
		Consumer:   server.consumer,
		Runner:     server.runner,
		UploadsDir: server.Config.UploadsDir,
		Origins:    server.Config.HTTP.Origins,
	})

	address := net.JoinHostPort(server.Config.HTTP.Address, server.Config.HTTP.Port)
	server.httpSrv = &http.Server{
		Addr:              address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.WriteLog("INFO", fmt.Sprintf("DIGIT-HAB backend started on %s", address))
	log.Printf("[*] serving api on %s", address)

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- server.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case <-server.stop:
	case err := <-serveErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.shutdown()
			return fmt.Errorf("serving api : %w", err)
		}
	}
	return server.shutdown()
}

// Stop asks a running Start to shut down. Safe to call once.
func (server *Server) Stop() {
	close(server.stop)
}

// shutdown drains the API listener and stops the background machinery in
// reverse start order.
func (server *Server) shutdown() error {
	log.Printf("[*] shutting down")

	var failure error
	if server.httpSrv != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.httpSrv.Shutdown(drainCtx); err != nil {
			failure = fmt.Errorf("draining api : %w", err)
		}
	}

	if server.watcher != nil {
		server.watcher.Stop()
	}
	if server.runner != nil {
		server.runner.Stop()
	}
	if server.chatHub != nil {
		if err := server.chatHub.Close(); err != nil {
			log.Printf("warning: closing chat hub: %v", err)
		}
	}
	return failure
}

// GatewayRules merges the configured routing rules with the routes stored in
// the database. Stored routes win so operators can repoint a tenant without
// editing config.yaml.
func (server *Server) GatewayRules() ([]gateway.Rule, error) {
	var rules []gateway.Rule
	seen := make(map[string]bool)

	if server.Repo != nil {
		routes, err := server.Repo.GetRoutes()
		if err != nil {
			return nil, fmt.Errorf("loading stored routes : %w", err)
		}
		for _, route := range routes {
			rules = append(rules, gateway.Rule{Host: route.Hostname, Upstream: route.Upstream})
			seen[route.Hostname] = true
		}
	}
	for _, rule := range server.Config.Gateway.Rules {
		if seen[rule.Host] {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// BuildGateway assembles the tenant gateway from the merged routing rules
// and the provisioned TLS pairs.
func (server *Server) BuildGateway(options ...func(*gateway.Proxy) error) (*gateway.Proxy, error) {
	if server.Config == nil {
		return nil, errors.New("no configuration loaded")
	}

	rules, err := server.GatewayRules()
	if err != nil {
		return nil, err
	}
	table, err := gateway.NewTable(rules)
	if err != nil {
		return nil, fmt.Errorf("building routing table : %w", err)
	}

	if len(server.Config.Gateway.Certificates) > 0 {
		tlsConfig, err := gateway.NewTLSConfig(server.Config.Gateway.Certificates)
		if err != nil {
			return nil, fmt.Errorf("loading gateway certificates : %w", err)
		}
		options = append(options, gateway.WithTLSConfig(tlsConfig))
	}
	return gateway.New(table, options...)
}
