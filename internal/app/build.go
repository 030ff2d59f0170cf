package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiko-app/aiko/internal/attachment"
	"github.com/aiko-app/aiko/internal/chat"
	"github.com/aiko-app/aiko/internal/config"
	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/delivery"
	"github.com/aiko-app/aiko/internal/httpapi"
	"github.com/aiko-app/aiko/internal/llm"
	"github.com/aiko-app/aiko/internal/observability"
	"github.com/aiko-app/aiko/internal/persona"
	"github.com/aiko-app/aiko/internal/prompt"
	"github.com/aiko-app/aiko/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Pipeline *chat.Pipeline
	Registry *persona.Registry
	Metrics  *observability.Metrics

	// StoreMode and CompletionMode describe what Build actually wired,
	// for startup logging in cmd.
	StoreMode      string
	CompletionMode string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	log, err := convlog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation log init failed: %w", err)
	}
	storeMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		storeMode = "postgres"
	}

	attachments := attachment.NewStore(cfg.RedisAddr, cfg.AttachmentTTL)

	client, err := llm.NewClient(llm.Config{
		Mode:        cfg.CompletionMode,
		EndpointURL: cfg.CompletionURL,
	})
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}
	completionMode := strings.ToLower(strings.TrimSpace(cfg.CompletionMode))
	if completionMode == "" || completionMode == "auto" {
		completionMode = "mock"
		if strings.TrimSpace(cfg.CompletionURL) != "" {
			completionMode = "http"
		}
	}

	registry := persona.NewRegistry()
	assembler := prompt.NewAssembler(registry, attachments)
	scheduler := delivery.NewScheduler(log, cfg.SegmentBaseDelay)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	pipeline := chat.NewPipeline(registry, assembler, client, log, scheduler, sessions, metrics)

	api := httpapi.New(ctx, cfg, sessions, pipeline, log, metrics)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		api.PublishSystemEvent(s.ID, "session_expired", "session expired after inactivity")
	})

	cleanup := func() error {
		var errs []string
		if err := attachments.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := log.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:         cfg,
		API:            api,
		Sessions:       sessions,
		Pipeline:       pipeline,
		Registry:       registry,
		Metrics:        metrics,
		StoreMode:      storeMode,
		CompletionMode: completionMode,
		Cleanup:        cleanup,
	}, nil
}
