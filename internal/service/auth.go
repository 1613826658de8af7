package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const apiKeyPrefix = "dqa_"

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

// KeyValidator resolves an API token to the user id it belongs to.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// AuthService issues and validates API keys stored as SHA-256 hashes.
type AuthService struct {
	keyRepo APIKeyRepository
	uuidGen UUIDGenerator
}

func NewAuthService(keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		keyRepo: keyRepo,
		uuidGen: uuidGen,
	}
}

// CreateAPIKey issues a new key for userID and returns the plaintext token.
// The token is not stored and cannot be recovered.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID, name string) (string, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return "", err
	}
	if name == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}

	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   hashToken(token),
		CreatedAt: time.Now().UTC(),
	}

	if err := domain.ValidateAPIKey(key); err != nil {
		return "", err
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return "", err
	}

	return token, nil
}

func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}

	if key.IsRevoked() {
		return "", domain.ErrAPIKeyRevoked
	}

	return key.UserID, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	return s.keyRepo.ListByUser(ctx, userID)
}

// StaticKeys maps configured tokens to user ids. It serves deployments
// without a database.
type StaticKeys map[string]string

func (k StaticKeys) ValidateAPIKey(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidAPIKey
	}
	var userID string
	for candidate, id := range k {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			userID = id
		}
	}
	if userID == "" {
		return "", domain.ErrInvalidAPIKey
	}
	return userID, nil
}

// KeyChain tries each validator in order. A validator rejecting the token as
// unknown passes it on; any other error stops the chain.
type KeyChain []KeyValidator

func (c KeyChain) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	for _, v := range c {
		userID, err := v.ValidateAPIKey(ctx, token)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, domain.ErrInvalidAPIKey) {
			return "", err
		}
	}
	return "", domain.ErrInvalidAPIKey
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
