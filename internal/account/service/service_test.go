package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/account/repository"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/lock"
	notificationdomain "github.com/smallbiznis/subkit/internal/notification/domain"
	"github.com/smallbiznis/subkit/internal/notification/notificationtest"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/internal/processor/processortest"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	svc      domain.Service
	clock    *clock.FakeClock
	proc     *processortest.Fake
	notifier *notificationtest.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := dbtest.Open(t, &domain.Account{}, &domain.Session{})
	repo, sessionRepo := repository.New(conn)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := fixture{
		clock:    clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		proc:     processortest.NewFake(),
		notifier: &notificationtest.Recorder{},
	}
	f.svc = New(Params{
		Log:         zaptest.NewLogger(t),
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       f.clock,
		Locker:      lock.NewLocalLocker(),
		Processor:   f.proc,
		Notifier:    f.notifier,
		Cfg: config.Config{Processor: config.ProcessorConfig{
			LockTTL:  time.Minute,
			LockWait: 5 * time.Second,
			Timeout:  time.Second,
		}},
	})
	return f
}

func register(t *testing.T, svc domain.Service, email string) *domain.Account {
	t.Helper()
	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		Email:    email,
		Password: "correct-password",
		FullName: "Ada Lovelace",
	})
	require.NoError(t, err)
	return account
}

func TestRegisterNormalizesAndWelcomes(t *testing.T) {
	f := newFixture(t)

	account := register(t, f.svc, "  Ada@Example.COM ")
	assert.Equal(t, "ada@example.com", account.Email)
	assert.NotEqual(t, "correct-password", account.PasswordHash)
	assert.False(t, account.HasExternalCustomer())

	sent := f.notifier.OfKind(notificationdomain.KindWelcome)
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].Recipient)
	assert.Equal(t, "Ada Lovelace", sent[0].Args["full_name"])
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, domain.RegisterRequest{Email: "not-an-email", Password: "correct-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.svc.Register(ctx, domain.RegisterRequest{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrPasswordTooShort)

	register(t, f.svc, "a@example.com")
	_, err = f.svc.Register(ctx, domain.RegisterRequest{Email: "A@example.com", Password: "another-password"})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestRegisterSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = assert.AnError

	account := register(t, f.svc, "a@example.com")
	assert.NotZero(t, account.ID)
}

func TestLoginAuthenticateLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f.svc, "a@example.com")

	_, err := f.svc.Login(ctx, domain.LoginRequest{Email: "a@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "correct-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	result, err := f.svc.Login(ctx, domain.LoginRequest{Email: "A@example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)
	assert.Equal(t, f.clock.Now().Add(sessionTTL), result.ExpiresAt)

	session, err := f.svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, result.Account.ID, session.AccountID)

	require.NoError(t, f.svc.Logout(ctx, result.RawToken))
	_, err = f.svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestSessionExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f.svc, "a@example.com")

	result, err := f.svc.Login(ctx, domain.LoginRequest{Email: "a@example.com", Password: "correct-password"})
	require.NoError(t, err)

	f.clock.Advance(sessionTTL)
	_, err = f.svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := register(t, f.svc, "a@example.com")

	updated, err := f.svc.UpdateProfile(ctx, account.ID, domain.UpdateProfileRequest{FullName: "  Grace Hopper "})
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", updated.FullName)

	_, err = f.svc.UpdateProfile(ctx, account.ID, domain.UpdateProfileRequest{FullName: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidFullName)

	first, err := f.svc.Login(ctx, domain.LoginRequest{Email: "a@example.com", Password: "correct-password"})
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, domain.LoginRequest{Email: "a@example.com", Password: "correct-password"})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, account.ID, domain.ChangePasswordRequest{CurrentPassword: "nope-nope", NewPassword: "brand-new-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, account.ID, domain.ChangePasswordRequest{
		CurrentPassword: "correct-password",
		NewPassword:     "brand-new-password",
		KeepSessionID:   second.SessionID,
	}))

	_, err = f.svc.Authenticate(ctx, first.RawToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)
	_, err = f.svc.Authenticate(ctx, second.RawToken)
	assert.NoError(t, err)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "a@example.com", Password: "brand-new-password"})
	assert.NoError(t, err)
}

func TestEnsureExternalCustomerIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := register(t, f.svc, "a@example.com")

	first, err := f.svc.EnsureExternalCustomer(ctx, account.ID)
	require.NoError(t, err)
	second, err := f.svc.EnsureExternalCustomer(ctx, account.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.proc.Calls("create_customer"))

	found, err := f.svc.FindByExternalCustomerID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = f.svc.FindByExternalCustomerID(ctx, "cus_unknown")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestEnsureExternalCustomerConcurrent(t *testing.T) {
	f := newFixture(t)
	account := register(t, f.svc, "a@example.com")

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.svc.EnsureExternalCustomer(context.Background(), account.ID)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.proc.Calls("create_customer"))
}

func TestEnsureExternalCustomerProcessorFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := register(t, f.svc, "a@example.com")
	f.proc.FailNext = true

	_, err := f.svc.EnsureExternalCustomer(ctx, account.ID)
	assert.ErrorIs(t, err, processor.ErrUnavailable)

	reloaded, err := f.svc.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.HasExternalCustomer(), "link must only be written after processor confirmation")
}
