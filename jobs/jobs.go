package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/geocode"
)

// redisProbeTimeout bounds the startup ping so a dead Redis fails fast
// instead of hanging the whole server boot.
const redisProbeTimeout = 3 * time.Second

// workerConcurrency is the number of tasks processed in parallel.
const workerConcurrency = 10

// Schedules for the recurring upkeep tasks.
const (
	expireEvery    = "@every 1h"
	remindersEvery = "@every 15m"
	cleanupEvery   = "@every 24h"
	assignEvery    = "@every 10m"
	purgeEvery     = "@every 24h"
)

// Store is the slice of the database layer the task handlers touch.
type Store interface {
	ExpirePending(cutoff time.Time) (int, error)
	GetDueReminders(from, to time.Time) ([]*domain.Reservation, error)
	MarkReminderSent(id uuid.UUID) error
	DeleteExpiredTokens(cutoff time.Time) (int, error)
	GetAgencies() ([]*domain.Agency, error)
	GetProperty(id uuid.UUID) (*domain.Property, error)
	UpdateProperty(property *domain.Property) error
}

// Notifier creates notifications and prunes old ones.
type Notifier interface {
	Create(recipientID uuid.UUID, kind, title, message string, data map[string]any, channels []string) (*domain.Notification, error)
	Cleanup() (int, error)
}

// Assigner spreads open leads across an agency's agents.
type Assigner interface {
	AutoAssign(agencyID uuid.UUID) (int, error)
}

// Geocoder resolves a street address into coordinates.
type Geocoder interface {
	Search(ctx context.Context, address string) (*geocode.Result, error)
}

// Runner owns the queue worker, the periodic scheduler and the enqueue
// client.
type Runner struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler

	store    Store
	notifier Notifier
	assigner Assigner
	geocoder Geocoder
}

// New probes Redis and prepares the worker, scheduler and client. The probe
// runs up front so a dead Redis surfaces as one startup error instead of as
// silent queue failures later. The caller decides whether that is fatal.
func New(redisAddr string, store Store, notifier Notifier, assigner Assigner, geocoder Geocoder) (*Runner, error) {
	probeContext, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()

	probe := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer probe.Close()

	err := probe.Ping(probeContext).Err()
	if err != nil {
		return nil, fmt.Errorf("pinging redis at %s : %w", redisAddr, err)
	}

	connection := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(connection, asynq.Config{
		Concurrency: workerConcurrency,
		Queues:      QueueWeights,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("[*] task %s failed: %v", task.Type(), err)
		}),
	})

	return &Runner{
		client:    asynq.NewClient(connection),
		server:    server,
		scheduler: asynq.NewScheduler(connection, nil),
		store:     store,
		notifier:  notifier,
		assigner:  assigner,
		geocoder:  geocoder,
	}, nil
}

// Start launches the worker pool and registers the recurring tasks.
func (runner *Runner) Start() error {
	err := runner.server.Start(runner.mux())
	if err != nil {
		return fmt.Errorf("starting task server : %w", err)
	}

	schedules := []struct {
		spec  string
		task  *asynq.Task
		queue string
	}{
		{expireEvery, asynq.NewTask(TypeExpireReservations, nil), QueueCore},
		{remindersEvery, asynq.NewTask(TypeVisitReminders, nil), QueueCore},
		{cleanupEvery, asynq.NewTask(TypeCleanNotifications, nil), QueueDefault},
		{assignEvery, asynq.NewTask(TypeAutoAssignLeads, nil), QueueClients},
		{purgeEvery, asynq.NewTask(TypePurgeExpiredTokens, nil), QueueAuth},
	}
	for _, schedule := range schedules {
		_, err = runner.scheduler.Register(schedule.spec, schedule.task, asynq.Queue(schedule.queue))
		if err != nil {
			runner.server.Shutdown()
			return fmt.Errorf("registering %s schedule : %w", schedule.task.Type(), err)
		}
	}

	err = runner.scheduler.Start()
	if err != nil {
		runner.server.Shutdown()
		return fmt.Errorf("starting task scheduler : %w", err)
	}

	log.Printf("[*] background jobs running over %d queues", len(QueueWeights))

	return nil
}

// mux wires every task type to its handler.
func (runner *Runner) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExpireReservations, runner.handleExpireReservations)
	mux.HandleFunc(TypeVisitReminders, runner.handleVisitReminders)
	mux.HandleFunc(TypeCleanNotifications, runner.handleCleanNotifications)
	mux.HandleFunc(TypeAutoAssignLeads, runner.handleAutoAssignLeads)
	mux.HandleFunc(TypePurgeExpiredTokens, runner.handlePurgeExpiredTokens)
	mux.HandleFunc(TypeGeocodeProperty, runner.handleGeocodeProperty)
	mux.HandleFunc(TypeNotificationBatch, runner.handleNotificationBatch)

	return mux
}

// Stop halts the scheduler, drains the worker pool and closes the client.
func (runner *Runner) Stop() {
	runner.scheduler.Shutdown()
	runner.server.Shutdown()

	err := runner.client.Close()
	if err != nil {
		log.Printf("[*] closing task client: %v", err)
	}
}

// Enqueue hands an ad hoc task to the queue.
func (runner *Runner) Enqueue(task *asynq.Task, options ...asynq.Option) error {
	_, err := runner.client.Enqueue(task, options...)
	if err != nil {
		return fmt.Errorf("enqueueing %s : %w", task.Type(), err)
	}

	return nil
}

// GeocodeProperty queues a geocoding pass for the property.
func (runner *Runner) GeocodeProperty(propertyID uuid.UUID) error {
	task, err := NewGeocodeTask(propertyID)
	if err != nil {
		return err
	}

	return runner.Enqueue(task, asynq.Queue(QueueProperties), asynq.MaxRetry(3))
}

// NotifyBatch queues a notification fan-out.
func (runner *Runner) NotifyBatch(payload NotificationBatchPayload) error {
	task, err := NewNotificationBatchTask(payload)
	if err != nil {
		return err
	}

	return runner.Enqueue(task, asynq.Queue(QueueDefault))
}
