// Package app wires configuration into the extractor, pinning and storage
// components shared by every adapter.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"invoice_nft_receipt/config"
	"invoice_nft_receipt/extractor"
	"invoice_nft_receipt/pinning"
	"invoice_nft_receipt/receipt"
	"invoice_nft_receipt/store"
)

const cerebrasBaseURL = "https://api.cerebras.ai/v1"

// App holds the long-lived collaborators of the assistant.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	LLM     extractor.LLMClient
	Records store.RecordStore
	Pinner  *pinning.Client

	agent      *extractor.Agent
	classifier *extractor.Classifier
	finalizer  extractor.Finalizer
	closers    []io.Closer
}

// New builds an App from cfg. Without a Pinata JWT sessions still run but
// approved invoices are not pinned.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	llm, err := BuildLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.LLM = llm
	if c, ok := llm.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.agent, err = extractor.NewAgent(llm, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.classifier = extractor.NewClassifier(llm, logger)

	a.Records, err = OpenStore(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.Records)

	if cfg.Pinata.JWT == "" {
		logger.Warn("pinata jwt not set; approved invoices will not be pinned")
		return a, nil
	}

	a.Pinner, err = pinning.New(pinning.Config{
		JWT:        cfg.Pinata.JWT,
		UploadURL:  cfg.Pinata.UploadURL,
		GatewayURL: cfg.Pinata.GatewayURL,
		Network:    cfg.Pinata.Network,
	}, &http.Client{Timeout: cfg.PinataTimeout()}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	archives, err := a.openArchives(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	svc, err := receipt.NewService(a.Pinner, a.Records, archives, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.finalizer = svc
	return a, nil
}

// NewSession starts a conversation with the shared collaborators.
func (a *App) NewSession(id string) *extractor.Session {
	return extractor.NewSession(id, a.agent, a.classifier, a.finalizer, extractor.SessionOptions{
		CallTimeout: a.Config.LLMTimeout(),
		ImageURI:    a.Config.Invoice.ImageURI,
		Logger:      a.Logger,
	})
}

// Classifier exposes the intent classifier for one-off checks.
func (a *App) Classifier() *extractor.Classifier { return a.classifier }

// Close releases every opened client, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openArchives(ctx context.Context) ([]store.Archive, error) {
	cfg := a.Config.Archive
	var archives []store.Archive
	if cfg.GCSBucket != "" {
		gcs, err := store.NewGCSArchive(ctx, cfg.GCSBucket, cfg.Prefix, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.closers = append(a.closers, gcs)
		archives = append(archives, gcs)
	}
	if cfg.S3Bucket != "" {
		s3, err := store.NewS3Archive(cfg.S3Bucket, cfg.S3Region, cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("open s3 archive: %w", err)
		}
		archives = append(archives, s3)
	}
	return archives, nil
}

// BuildLLM returns the client for the configured provider.
func BuildLLM(ctx context.Context, cfg config.LLMConfig) (extractor.LLMClient, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key in config")
	}
	settings := &extractor.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Project:  cfg.Project,
		Region:   cfg.Region,
	}
	switch cfg.Provider {
	case "openai":
		return extractor.NewOpenAILLMFromConfig(settings)
	case "cerebras":
		if settings.BaseURL == "" {
			settings.BaseURL = cerebrasBaseURL
		}
		return extractor.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return extractor.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return extractor.NewGeminiLLM(ctx, settings)
	case "vertex":
		return extractor.NewVertexLLM(ctx, settings)
	case "mock":
		return extractor.DemoLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

// OpenStore opens the configured record store.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.RecordStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		if cfg.DSN == "" {
			return nil, errors.New("store driver sqlite requires store.dsn (database file path)")
		}
		return store.OpenSQLite(ctx, cfg.DSN)
	case "postgres":
		if cfg.DSN == "" {
			return nil, errors.New("store driver postgres requires store.dsn or DATABASE_URL")
		}
		return store.OpenPostgres(ctx, cfg.DSN)
	case "firestore":
		if cfg.Project == "" {
			return nil, errors.New("store driver firestore requires store.project or GOOGLE_CLOUD_PROJECT")
		}
		return store.OpenFirestore(ctx, cfg.Project, cfg.Collection)
	default:
		return nil, fmt.Errorf("store driver %s not supported", cfg.Driver)
	}
}
