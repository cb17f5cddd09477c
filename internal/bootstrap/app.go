package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/mrv"
	"carbon-scribe/credit-ledger/internal/payments"
	"carbon-scribe/credit-ledger/internal/projects"
	"carbon-scribe/credit-ledger/internal/retirement"
	"carbon-scribe/credit-ledger/internal/server"
	"carbon-scribe/credit-ledger/pkg/pdf"
)

// App holds the wired services and the storage they share
type App struct {
	Storage  *Storage
	Services server.Services
}

// NewApp wires every service from configuration
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	app, err := wire(ctx, cfg, st, logger)
	if err != nil {
		return nil, errors.Join(err, st.Close())
	}
	return app, nil
}

func wire(ctx context.Context, cfg *config.Config, st *Storage, logger *zap.Logger) (*App, error) {
	anc, err := NewAnchor(ctx, cfg.Anchor, logger)
	if err != nil {
		return nil, err
	}
	files, err := NewEvidenceStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	gateway, err := NewGateway(cfg.Payments)
	if err != nil {
		return nil, err
	}

	credits := ledger.NewService(st, anc, logger)
	return &App{
		Storage: st,
		Services: server.Services{
			Projects: projects.NewService(st, logger),
			Tracker: mrv.NewTracker(st, scorer, anc, files, mrv.TrackerOptions{
				EvidencePrefix:     cfg.Storage.Prefix,
				MaxUploadBytes:     cfg.Storage.MaxUploadBytes,
				MaxScoringAttempts: cfg.Worker.ScoringMaxAttempts,
			}, logger),
			Gate:   mrv.NewGate(st, credits, logger),
			Ledger: credits,
			Payments: payments.NewService(st, credits, gateway, payments.Options{
				Currency:      cfg.Payments.Currency,
				UnitPrice:     cfg.Payments.UnitPrice,
				WebhookSecret: cfg.Payments.WebhookSecret,
			}, logger),
			Retirement: retirement.NewService(st, credits, anc, pdf.NewGenerator(pdf.DefaultOptions()), logger),
		},
	}, nil
}

// Close releases the storage
func (a *App) Close() error {
	return a.Storage.Close()
}
