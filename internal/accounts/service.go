package accounts

import (
	"context"
	"strconv"
	"strings"

	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/logger"
	"github.com/prompt-request/go-services/pkg/ratelimit"
)

// Service issues API keys and authenticates callers.
type Service struct {
	repo    Repository
	pepper  string
	limiter ratelimit.Limiter
	newKey  func() (string, error)
}

// NewService builds the auth gate. limiter is the per-account limiter and may
// be nil to disable it.
func NewService(r Repository, pepper string, limiter ratelimit.Limiter) *Service {
	return &Service{repo: r, pepper: pepper, limiter: limiter, newKey: GenerateAPIKey}
}

// CreateAccount stores a new account and returns its key. The key is only
// ever returned here.
func (s *Service) CreateAccount(ctx context.Context) (string, error) {
	key, err := s.newKey()
	if err != nil {
		return "", &apierror.Error{Kind: apierror.KindInternal, Err: err}
	}
	if _, err := s.repo.Create(ctx, HashAPIKey(key, s.pepper)); err != nil {
		return "", apierror.Database(err)
	}
	return key, nil
}

// Authenticate resolves a raw key to its account id and applies the
// per-account limiter.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (int64, error) {
	if strings.TrimSpace(rawKey) == "" {
		return 0, apierror.Unauthorized()
	}
	acct, err := s.repo.FindByHash(ctx, HashAPIKey(rawKey, s.pepper))
	if err != nil {
		return 0, apierror.Database(err)
	}
	if acct == nil {
		return 0, apierror.Unauthorized()
	}
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, strconv.FormatInt(acct.ID, 10)); err != nil {
			return 0, err
		}
	}
	if err := s.repo.TouchLastUsed(ctx, acct.ID); err != nil {
		logger.Warnf("touch last_used_at for account %d: %v", acct.ID, err)
	}
	return acct.ID, nil
}
