package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/tillpoint/tillpoint/internal/ratelimit"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	limiter ratelimit.Limiter
	logger  *slog.Logger
	cost    int
	now     func() time.Time
}

// NewService constructs a new Service. A nil limiter never blocks.
func NewService(repo Repository, limiter ratelimit.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, limiter: limiter, logger: logger, cost: bcrypt.DefaultCost, now: time.Now}
}

// SetHashCost overrides the bcrypt cost.
func (s *Service) SetHashCost(cost int) { s.cost = cost }

// NormalizeUsername folds case and trims surrounding space.
func NormalizeUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// Authenticate validates username/password credentials. Legacy hashes are
// rewritten with bcrypt after a successful login.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	const op = "auth: authenticate"
	key := NormalizeUsername(username)
	if key == "" || password == "" {
		return User{}, shared.Errorf(shared.ErrInvalidCredentials, op, "username and password are required")
	}
	if s.limiter != nil {
		blocked, wait, err := s.limiter.Blocked(ctx, key)
		if err != nil {
			s.logger.Warn("rate limiter unavailable", slog.Any("error", err))
		} else if blocked {
			return User{}, &LockoutError{Username: key, Wait: wait}
		}
	}

	user, err := s.repo.FindByUsername(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return User{}, err
	}
	if err != nil || !user.Active || !user.Password.Verify(password) {
		s.recordFailure(ctx, key)
		return User{}, shared.Errorf(shared.ErrInvalidCredentials, op, "invalid username or password")
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			s.logger.Warn("rate limiter reset failed", slog.Any("error", err))
		}
	}
	if user.Password.NeedsUpgrade() {
		s.upgrade(ctx, &user, password)
	}
	return user, nil
}

func (s *Service) recordFailure(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	n, err := s.limiter.Fail(ctx, key)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", slog.Any("error", err))
		return
	}
	s.logger.Info("login failed", slog.String("username", key), slog.Int("attempts", n))
}

func (s *Service) upgrade(ctx context.Context, user *User, password string) {
	from := user.Password.Scheme
	hash, err := HashPassword(password, s.cost)
	if err == nil {
		err = s.repo.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("password upgrade failed", slog.String("user", user.Username), slog.Any("error", err))
		return
	}
	user.Password = hash
	s.logger.Info("password upgraded",
		slog.String("user", user.Username),
		slog.String("from", from.String()),
		slog.String("to", hash.Scheme.String()))
}

// CreateUser adds an account with a bcrypt password.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	const op = "auth: create user"
	if err := shared.ValidateStruct(op, input); err != nil {
		return User{}, err
	}
	username := NormalizeUsername(input.Username)
	if username == "" {
		return User{}, shared.Validation(op, "username is required")
	}
	hash, err := HashPassword(input.Password, s.cost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:       shared.ShortID(),
		Name:     strings.TrimSpace(input.Name),
		Username: username,
		Role:     input.Role,
		Phone:    strings.TrimSpace(input.Phone),
		Active:   true,
		Created:  shared.Timestamp(s.now()),
		Password: hash,
	}
	if user.Name == "" {
		user.Name = username
	}
	if user.Role == "" {
		user.Role = shared.RoleStaff
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	s.logger.Info("user created", slog.String("user", user.Username), slog.String("role", user.Role))
	return user, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}
