package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/account/domain"
	"github.com/smallbiznis/subkit/internal/account/password"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/lock"
	notificationdomain "github.com/smallbiznis/subkit/internal/notification/domain"
	obslogger "github.com/smallbiznis/subkit/internal/observability/logger"
	"github.com/smallbiznis/subkit/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour

	minPasswordLength = 8
	maxFullNameLength = 200
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Locker      lock.Locker
	Processor   processor.Client
	Notifier    notificationdomain.Dispatcher
	Cfg         config.Config
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock
	locker      lock.Locker
	processor   processor.Client
	notifier    notificationdomain.Dispatcher
	lockTTL     time.Duration
	lockWait    time.Duration
	callTimeout time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("account.service"),
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		genID:       p.GenID,
		clock:       p.Clock,
		locker:      p.Locker,
		processor:   p.Processor,
		notifier:    p.Notifier,
		lockTTL:     p.Cfg.Processor.LockTTL,
		lockWait:    p.Cfg.Processor.LockWait,
		callTimeout: p.Cfg.Processor.Timeout,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}
	fullName := strings.TrimSpace(req.FullName)
	if len(fullName) > maxFullNameLength {
		return nil, domain.ErrInvalidFullName
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrAccountExists
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	account := &domain.Account{
		ID:           s.genID.Generate(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, notificationdomain.KindWelcome, account.Email, map[string]any{
		"full_name": displayName(account),
	}); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("welcome notification not queued",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
	}

	return account, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, account.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:         s.genID.Generate(),
		AccountID:  account.ID,
		TokenHash:  hashToken(rawToken),
		UserAgent:  strings.TrimSpace(req.UserAgent),
		IPAddress:  strings.TrimSpace(req.IPAddress),
		ExpiresAt:  now.Add(sessionTTL),
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		Account:   account,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return err
	}
	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if now.Sub(session.LastSeenAt) > time.Minute {
		if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
			s.log.Warn("session last_seen update failed", zap.Error(err))
		}
	}
	return session, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (*domain.Account, error) {
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" || len(fullName) > maxFullNameLength {
		return nil, domain.ErrInvalidFullName
	}

	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"full_name":  fullName,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, id snowflake.ID, req domain.ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return domain.ErrPasswordTooShort
	}

	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !password.Verify(req.CurrentPassword, account.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hashed, err := password.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"password_hash": hashed,
		"updated_at":    now,
	}); err != nil {
		return err
	}
	return s.sessionRepo.RevokeAccountSessions(ctx, id, req.KeepSessionID, now)
}

func (s *Service) FindByExternalCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrAccountNotFound
	}
	return s.repo.FindByExternalCustomerID(ctx, customerID)
}

func (s *Service) EnsureExternalCustomer(ctx context.Context, id snowflake.ID) (string, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if account.HasExternalCustomer() {
		return *account.ExternalCustomerID, nil
	}

	release, err := lock.Acquire(ctx, s.locker, customerLockKey(id), s.lockTTL, s.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return "", domain.ErrCustomerBusy
		}
		return "", err
	}
	defer release()

	// Another holder may have finished while we waited.
	account, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if account.HasExternalCustomer() {
		return *account.ExternalCustomerID, nil
	}

	callCtx, cancel := s.processorContext(ctx)
	customerID, err := s.processor.CreateCustomer(callCtx, processor.CustomerParams{
		AccountID:      account.ID.String(),
		Email:          account.Email,
		Name:           account.FullName,
		IdempotencyKey: "customer-" + account.ID.String(),
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("create processor customer: %w", err)
	}

	written, err := s.repo.SetExternalCustomerID(ctx, id, customerID, s.clock.Now())
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("processor customer created but link not persisted",
			zap.String("account_id", id.String()),
			zap.String("external_customer_id", customerID),
			zap.Error(err),
		)
		return "", err
	}
	if written {
		return customerID, nil
	}

	account, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !account.HasExternalCustomer() {
		return "", fmt.Errorf("external customer link for account %s vanished", id)
	}
	return *account.ExternalCustomerID, nil
}

func (s *Service) processorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func customerLockKey(id snowflake.ID) string {
	return "account:customer:" + id.String()
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func displayName(a *domain.Account) string {
	if a.FullName != "" {
		return a.FullName
	}
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
