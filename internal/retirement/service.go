package retirement

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/pkg/pdf"
)

const maxReasonLength = 500

// RetireRequest is the body of POST /credits/retire
type RetireRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Beneficiary string          `json:"beneficiary,omitempty"`
}

// ListResponse is the body of GET /credits/retirements
type ListResponse struct {
	Retirements []domain.Retirement `json:"retirements"`
	Count       int                 `json:"count"`
	Total       decimal.Decimal     `json:"total"`
}

// Service is the retirement processor
type Service struct {
	store        store.Store
	ledger       *ledger.Service
	anchor       anchor.Anchor
	certificates pdf.Generator
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(st store.Store, credits *ledger.Service, anc anchor.Anchor, certificates pdf.Generator, logger *zap.Logger) *Service {
	return &Service{
		store:        st,
		ledger:       credits,
		anchor:       anc,
		certificates: certificates,
		logger:       logger,
		now:          time.Now,
	}
}

// Retire permanently removes amount from the buyer's balance. The balance
// debit is conditional, so concurrent retirements can never overdraw it.
func (s *Service) Retire(ctx context.Context, p auth.Principal, req RetireRequest) (*domain.Retirement, error) {
	if !p.HasRole(auth.RoleBuyer) {
		return nil, apperr.Authorization("only buyers can retire credits")
	}

	fields := map[string]string{}
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be positive"
	} else if !req.Amount.Equal(domain.NormalizeQuantity(req.Amount)) {
		fields["amount"] = "supports at most 3 decimal places"
	}
	reason := strings.TrimSpace(req.Reason)
	switch {
	case reason == "":
		fields["reason"] = "is required"
	case utf8.RuneCountInString(reason) > maxReasonLength:
		fields["reason"] = "is too long"
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields("invalid retirement", fields)
	}

	now := s.now().UTC()
	id := uuid.New()
	retirement := &domain.Retirement{
		ID:                id,
		BuyerID:           p.UserID,
		Amount:            domain.NormalizeQuantity(req.Amount),
		Reason:            reason,
		Beneficiary:       strings.TrimSpace(req.Beneficiary),
		CertificateNumber: domain.CertificateNumberFor(id, now),
		RetiredAt:         now,
	}

	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		if err := s.ledger.DebitBalanceTx(ctx, tx, p.UserID, retirement.Amount); err != nil {
			return err
		}
		if err := tx.CreateRetirement(ctx, retirement); err != nil {
			return err
		}
		return tx.IncrementCounter(ctx, domain.CounterTotalRetired, retirement.Amount)
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to retire credits")
	}

	s.anchorRetirement(ctx, retirement)
	s.logger.Info("credits retired",
		zap.String("retirement_id", retirement.ID.String()),
		zap.String("buyer_id", p.UserID.String()),
		zap.String("amount", retirement.Amount.String()),
		zap.String("certificate_number", retirement.CertificateNumber),
	)
	return retirement, nil
}

func (s *Service) anchorRetirement(ctx context.Context, r *domain.Retirement) {
	if s.anchor == nil {
		return
	}
	receipt, err := s.anchor.Anchor(ctx, anchor.Record{
		Kind: anchor.KindRetirement,
		ID:   r.ID.String(),
		At:   r.RetiredAt,
		Payload: map[string]any{
			"buyer_id":           r.BuyerID,
			"amount":             r.Amount.String(),
			"reason":             r.Reason,
			"certificate_number": r.CertificateNumber,
		},
	})
	if err != nil {
		s.logger.Warn("failed to anchor retirement", zap.String("retirement_id", r.ID.String()), zap.Error(err))
		return
	}
	if err := s.store.SetRetirementAnchorReceipt(ctx, r.ID, receipt); err != nil {
		s.logger.Warn("failed to store retirement anchor receipt", zap.String("retirement_id", r.ID.String()), zap.Error(err))
		return
	}
	r.AnchorReceipt = receipt
}

// List returns the buyer's retirements, newest first
func (s *Service) List(ctx context.Context, p auth.Principal) ([]domain.Retirement, error) {
	retirements, err := s.store.ListRetirements(ctx, p.UserID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list retirements")
	}
	return retirements, nil
}

// Get returns one of the buyer's retirements
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*domain.Retirement, error) {
	retirement, err := s.store.GetRetirement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("retirement %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load retirement")
	}
	if retirement.BuyerID != p.UserID {
		return nil, apperr.NotFound("retirement %s not found", id)
	}
	return retirement, nil
}

// Certificate renders the PDF certificate of a retirement
func (s *Service) Certificate(ctx context.Context, p auth.Principal, id uuid.UUID) (*domain.Retirement, []byte, error) {
	retirement, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.certificates.Certificate(ctx, pdf.CertificateData{
		CertificateNumber: retirement.CertificateNumber,
		RetiredBy:         retirement.BuyerID.String(),
		Beneficiary:       retirement.Beneficiary,
		Amount:            retirement.Amount.StringFixed(domain.QuantityPlaces),
		Reason:            retirement.Reason,
		RetiredAt:         retirement.RetiredAt,
		AnchorReceipt:     retirement.AnchorReceipt,
	})
	if err != nil {
		return nil, nil, apperr.Wrap(err, "failed to render certificate")
	}
	return retirement, doc, nil
}

// Total sums retirement amounts
func Total(retirements []domain.Retirement) decimal.Decimal {
	total := decimal.Zero
	for _, r := range retirements {
		total = total.Add(r.Amount)
	}
	return total
}
