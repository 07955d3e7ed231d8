package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	loginKeyName      = "login"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type AuthService struct {
	userRepo UserRepository
	keyRepo  APIKeyRepository
	uuidGen  UUIDGenerator
	cost     int
}

func NewAuthService(userRepo UserRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		keyRepo:  keyRepo,
		uuidGen:  uuidGen,
		cost:     bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the hashing cost (tests use bcrypt.MinCost).
func (s *AuthService) WithBcryptCost(cost int) *AuthService {
	s.cost = cost
	return s
}

func (s *AuthService) CreateUser(ctx context.Context, username, password string, role domain.UserRole) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "username is required")
	}
	if len(password) < minPasswordLength {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "password must be at least 8 characters")
	}
	if !domain.IsValidUserRole(role) {
		return nil, domain.ErrInvalidUserRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to hash password", err)
	}

	user := domain.NewUser(s.uuidGen.NewString(), username, role, string(hash), time.Now().UTC())
	if err := domain.ValidateUser(user); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser creates the user unless the username is already taken.
func (s *AuthService) EnsureUser(ctx context.Context, username, password string, role domain.UserRole) (*domain.User, bool, error) {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, err
	}
	user, err := s.CreateUser(ctx, username, password, role)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// VerifyPassword reports whether password matches the user's stored hash.
func (s *AuthService) VerifyPassword(user *domain.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// Login checks credentials and issues a fresh API token for the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !s.VerifyPassword(user, password) {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.CreateAPIKey(ctx, user.ID, loginKeyName)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) CreateAPIKey(ctx context.Context, userID, name string) (string, error) {
	token, err := domain.GenerateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	if err := s.CreateAPIKeyWithToken(ctx, userID, name, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, userID, name, token string) error {
	if userID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "user ID is required")
	}
	if name == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}
	if !domain.IsAPITokenFormat(token) {
		return domain.NewDomainError(domain.ErrCodeValidation, "invalid API key format (expected ctu_<64 hex chars>)")
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), userID, name, domain.HashAPIToken(token), time.Now().UTC(), nil)
	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}
	return s.keyRepo.Create(ctx, key)
}

// Authenticate resolves a bearer token to the calling principal.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if !domain.IsAPITokenFormat(token) {
		return domain.Principal{}, domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, domain.HashAPIToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return domain.Principal{}, domain.ErrInvalidAPIKey
		}
		return domain.Principal{}, err
	}
	if key.IsRevoked() {
		return domain.Principal{}, domain.ErrAPIKeyRevoked
	}

	user, err := s.userRepo.GetByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Principal{}, domain.ErrInvalidAPIKey
		}
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: user.ID, Role: user.Role}, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}
	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	if userID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "user ID is required")
	}
	return s.keyRepo.GetByUserID(ctx, userID)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.userRepo.List(ctx)
}
