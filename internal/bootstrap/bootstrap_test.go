package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/evidence"
	"carbon-scribe/credit-ledger/internal/payments"
	"carbon-scribe/credit-ledger/internal/scoring"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestCollaboratorSelection(t *testing.T) {
	ctx := context.Background()

	st, err := OpenStore(ctx, config.DatabaseConfig{Driver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, st.Ping)
	assert.NoError(t, st.Close())

	_, err = OpenStore(ctx, config.DatabaseConfig{Driver: "sqlite"}, zap.NewNop())
	assert.Error(t, err)

	anc, err := NewAnchor(ctx, config.AnchorConfig{Provider: "hash"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, anchor.HashAnchor{}, anc)

	files, err := NewEvidenceStore(ctx, config.StorageConfig{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &evidence.MemoryStore{}, files)

	scorer, err := NewScorer(config.ScoringConfig{Provider: "remote", BaseURL: "http://scorer"})
	require.NoError(t, err)
	assert.IsType(t, &scoring.Remote{}, scorer)

	gw, err := NewGateway(config.PaymentsConfig{Provider: "razorpay", BaseURL: "https://api.razorpay.com/v1"})
	require.NoError(t, err)
	assert.Equal(t, "razorpay", gw.Name())
	assert.IsType(t, &payments.Razorpay{}, gw)
}

func TestNewAppWiresEveryService(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Payments: config.PaymentsConfig{Provider: "sandbox", Currency: "INR", UnitPrice: 150000, WebhookSecret: "whsec"},
		Storage:  config.StorageConfig{Provider: "memory", Prefix: "mrv-evidence"},
		Anchor:   config.AnchorConfig{Provider: "hash"},
		Scoring:  config.ScoringConfig{Provider: "fixed", FixedTonnage: 10, FixedQuality: 0.5},
	}
	app, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	svc := app.Services
	assert.NotNil(t, svc.Projects)
	assert.NotNil(t, svc.Tracker)
	assert.NotNil(t, svc.Gate)
	assert.NotNil(t, svc.Ledger)
	assert.NotNil(t, svc.Payments)
	assert.NotNil(t, svc.Retirement)

	cfg.Scoring.Provider = "oracle"
	_, err = NewApp(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
