// Package bootstrap builds the runtime collaborators selected by configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/evidence"
	"carbon-scribe/credit-ledger/internal/mrv"
	"carbon-scribe/credit-ledger/internal/payments"
	"carbon-scribe/credit-ledger/internal/scoring"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/internal/store/memory"
	"carbon-scribe/credit-ledger/internal/store/postgres"
	"carbon-scribe/credit-ledger/pkg/storage"
)

// NewLogger builds a production or development zap logger at the configured level
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// Storage is an opened store with its lifecycle hooks
type Storage struct {
	store.Store
	Ping  func(ctx context.Context) error
	Close func() error
}

// OpenStore opens the configured store and migrates it when asked to
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Storage, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return &Storage{Store: memory.New(), Close: func() error { return nil }}, nil
	case "postgres":
		pg, err := postgres.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		return &Storage{Store: pg, Ping: pg.Ping, Close: pg.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewAnchor returns the configured ledger anchor
func NewAnchor(ctx context.Context, cfg config.AnchorConfig, logger *zap.Logger) (anchor.Anchor, error) {
	switch cfg.Provider {
	case "hash", "":
		return anchor.HashAnchor{}, nil
	case "dynamodb":
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Region, "", "")
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
		logger.Info("anchoring to dynamodb", zap.String("table", cfg.Table))
		return anchor.NewDynamoAnchor(client, cfg.Table), nil
	default:
		return nil, fmt.Errorf("unsupported anchor provider %q", cfg.Provider)
	}
}

// NewEvidenceStore returns the configured evidence file store
func NewEvidenceStore(ctx context.Context, cfg config.StorageConfig) (evidence.Store, error) {
	switch cfg.Provider {
	case "memory", "":
		return evidence.NewMemoryStore(), nil
	case "s3":
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return evidence.NewObjectStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

// NewScorer returns the configured MRV scorer
func NewScorer(cfg config.ScoringConfig) (mrv.Scorer, error) {
	switch cfg.Provider {
	case "fixed", "":
		return scoring.Fixed{TonnageEstimate: cfg.FixedTonnage, QualityScore: cfg.FixedQuality}, nil
	case "remote":
		return scoring.NewRemote(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported scoring provider %q", cfg.Provider)
	}
}

// NewGateway returns the configured payment gateway
func NewGateway(cfg config.PaymentsConfig) (payments.Gateway, error) {
	switch cfg.Provider {
	case "sandbox", "":
		return payments.Sandbox{}, nil
	case "razorpay":
		return payments.NewRazorpay(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}
