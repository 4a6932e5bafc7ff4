// Package bootstrap assembles the service graph shared by the binaries.
package bootstrap

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/events"
	"github.com/civic-kit/grievance-service/internal/keywords"
	"github.com/civic-kit/grievance-service/internal/llm"
	"github.com/civic-kit/grievance-service/internal/mailer"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/persistence"
	"github.com/civic-kit/grievance-service/internal/repository"
	"github.com/civic-kit/grievance-service/internal/schema"
	"github.com/civic-kit/grievance-service/internal/service"
)

// Options carries the already-opened backends. Nil or disabled backends
// fall back to in-process implementations.
type Options struct {
	Postgres  *persistence.Postgres
	Redis     *persistence.Redis
	Completer llm.Completer
	Scheduler service.DeadlineScheduler
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Services is the assembled graph.
type Services struct {
	Catalog       *catalog.Catalog
	Pipeline      *service.ComplaintPipeline
	Complaints    *service.ComplaintService
	Monitoring    *service.MonitoringService
	Auth          *service.AuthService
	Notifications *service.NotificationService
	Tokens        *auth.TokenManager
	Memory        *repository.MemoryStore
}

// Build wires every service from cfg.
func Build(cfg *config.Config, opts Options) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cat, err := loadCatalog(cfg.Pipeline.CatalogPath)
	if err != nil {
		return nil, err
	}
	matcher := keywords.NewMatcher(cat.KeywordGroups())

	completer := opts.Completer
	if completer == nil {
		completer = llm.New(cfg.LLM, logger)
	}
	caller := llm.NewCaller(completer, schema.NewCompiler(cfg.LLM.SchemaCacheSize, time.Hour), opts.Metrics)
	temp := cfg.LLM.Temperature

	out := &Services{Catalog: cat}
	var complaints repository.ComplaintRepository
	var escalations repository.EscalationRepository
	if opts.Postgres.Enabled() {
		pool := opts.Postgres.PoolHandle()
		complaints = repository.NewComplaintRepository(pool)
		escalations = repository.NewEscalationRepository(pool)
	} else {
		out.Memory = repository.NewMemoryStore(now)
		complaints = out.Memory.Complaints()
		escalations = out.Memory.Escalations()
	}

	dispatcher := events.NewInMemoryDispatcher()
	if opts.Redis.Enabled() && cfg.Notification.RedisChannel != "" {
		dispatcher = events.NewRedisDispatcher(dispatcher, opts.Redis.Client, cfg.Notification.RedisChannel)
	}
	notify := service.NotificationDependencies{
		Dispatcher: dispatcher,
		Messages:   service.NewCitizenMessageService(caller, cfg.Notification.UseLLMForMessages, temp),
		Config:     cfg.Notification,
		Metrics:    opts.Metrics,
		Logger:     logger,
	}
	smtpMailer, err := mailer.NewSMTPMailer(cfg.Notification)
	if err != nil {
		return nil, err
	}
	if smtpMailer != nil {
		notify.Mailer = smtpMailer
	}
	out.Notifications = service.NewNotificationService(notify)

	var scheduler service.DeadlineScheduler
	if cfg.Pipeline.ScheduleDeadlines {
		scheduler = opts.Scheduler
	}
	out.Pipeline = service.NewComplaintPipeline(service.PipelineDependencies{
		Classifier: service.NewClassificationService(service.ClassificationDependencies{
			Caller:      caller,
			Catalog:     cat,
			Matcher:     matcher,
			Temperature: temp,
		}),
		Sentiment:    service.NewSentimentService(caller, matcher, temp),
		SLA:          service.NewSLAService(caller, cat, matcher, now, temp),
		Policy:       service.NewPolicyService(caller, cat, temp),
		Complaints:   complaints,
		Notifier:     out.Notifications,
		Scheduler:    scheduler,
		Metrics:      opts.Metrics,
		Logger:       logger,
		StageTimeout: cfg.Pipeline.StageTimeout(),
	})

	out.Complaints = service.NewComplaintService(service.ComplaintDependencies{
		Complaints:  complaints,
		Escalations: escalations,
		Notifier:    out.Notifications,
		Community:   cfg.Community,
		Logger:      logger,
	})

	out.Monitoring = service.NewMonitoringService(service.MonitoringDependencies{
		Complaints:  complaints,
		Escalations: escalations,
		Escalator:   service.NewEscalationService(caller, cat, cfg.Monitoring.UseLLMForEscalation, temp),
		FollowUps:   service.NewFollowUpService(caller, cfg.Monitoring.UseLLMForFollowUp, temp, now),
		Notifier:    out.Notifications,
		Config:      cfg.Monitoring,
		Metrics:     opts.Metrics,
		Logger:      logger,
		Now:         now,
	})

	out.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	out.Auth = service.NewAuthService(cfg.Auth, out.Tokens, logger)
	return out, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}
