package accounts

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	accounts  map[string]int64
	createErr error
	findErr   error
	touchErr  error
	lastHash  string
	touched   []int64
}

func (f *fakeRepo) Create(_ context.Context, keyHash string) (int64, error) {
	f.lastHash = keyHash
	if f.createErr != nil {
		return 0, f.createErr
	}
	if f.accounts == nil {
		f.accounts = map[string]int64{}
	}
	id := int64(len(f.accounts) + 1)
	f.accounts[keyHash] = id
	return id, nil
}

func (f *fakeRepo) FindByHash(_ context.Context, keyHash string) (*Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	id, ok := f.accounts[keyHash]
	if !ok {
		return nil, nil
	}
	return &Account{ID: id, KeyHash: keyHash}, nil
}

func (f *fakeRepo) TouchLastUsed(_ context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return f.touchErr
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.True(t, strings.HasPrefix(a, "prq_"))
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(a, "prq_"))
	require.NoError(t, err)
	require.Len(t, raw, 32)
	require.NotContains(t, a, "=")
}

func TestHashAPIKey(t *testing.T) {
	// sha256("abc")
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashAPIKey("abc", ""))
	// the pepper is prepended
	require.Equal(t, HashAPIKey("bc", "a"), HashAPIKey("abc", ""))
	require.NotEqual(t, HashAPIKey("abc", "pepper"), HashAPIKey("abc", ""))
}

func TestCreateAccountStoresOnlyHash(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, "pepper", nil)

	key, err := svc.CreateAccount(context.Background())
	require.NoError(t, err)
	require.Equal(t, HashAPIKey(key, "pepper"), repo.lastHash)
	require.NotContains(t, repo.lastHash, key)
}

func TestCreateAccountDatabaseError(t *testing.T) {
	svc := NewService(&fakeRepo{createErr: errors.New("conn reset")}, "", nil)
	_, err := svc.CreateAccount(context.Background())
	require.True(t, apierror.Is(err, apierror.KindDatabase))
}

func TestAuthenticate(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, "p", nil)
	ctx := context.Background()

	key, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Equal(t, []int64{1}, repo.touched)

	_, err = svc.Authenticate(ctx, "prq_unknown")
	require.True(t, apierror.Is(err, apierror.KindUnauthorized))

	_, err = svc.Authenticate(ctx, "   ")
	require.True(t, apierror.Is(err, apierror.KindUnauthorized))
}

func TestAuthenticateLookupFailureIsDatabaseError(t *testing.T) {
	svc := NewService(&fakeRepo{findErr: errors.New("timeout")}, "", nil)
	_, err := svc.Authenticate(context.Background(), "prq_x")
	require.True(t, apierror.Is(err, apierror.KindDatabase))
}

func TestAuthenticateTouchFailureIsIgnored(t *testing.T) {
	repo := &fakeRepo{touchErr: errors.New("read only")}
	svc := NewService(repo, "", nil)
	key, err := svc.CreateAccount(context.Background())
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), key)
	require.NoError(t, err)
}

func TestAuthenticateAppliesAccountLimiter(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, "", ratelimit.NewFixedWindow(time.Hour))
	ctx := context.Background()

	first, err := svc.CreateAccount(ctx)
	require.NoError(t, err)
	second, err := svc.CreateAccount(ctx)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, first)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, first)
	require.True(t, apierror.Is(err, apierror.KindRateLimited))
	require.Len(t, repo.touched, 1)

	// limiter is keyed per account
	_, err = svc.Authenticate(ctx, second)
	require.NoError(t, err)
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	id, err := repo.Create(ctx, "h1")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "h1")
	require.Error(t, err)

	a, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Nil(t, a.LastUsedAt)

	require.NoError(t, repo.TouchLastUsed(ctx, id))
	a, err = repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, a.LastUsedAt)

	a, err = repo.FindByHash(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, a)
}
