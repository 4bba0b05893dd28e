package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const apiKeySecretBytes = 32

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, userID snowflake.ID) (*apikeydomain.SecretResponse, error) {
	if userID == 0 {
		return nil, apikeydomain.ErrInvalidUser
	}

	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		UserID:    userID,
		KeyID:     keyID,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key issued", zap.String("user_id", userID.String()), zap.String("key_id", keyID))
	return &apikeydomain.SecretResponse{KeyID: keyID, SecretKey: plain}, nil
}

// Authenticate resolves a raw key to its owner. Unknown, malformed and revoked keys are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (snowflake.ID, error) {
	raw := strings.TrimSpace(rawKey)
	if !strings.HasPrefix(raw, apikeydomain.KeyPrefix) {
		return 0, apikeydomain.ErrInvalidKey
	}

	hash := apikeydomain.HashAPIKey(raw)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return 0, err
	}
	if key == nil || !key.IsActive {
		return 0, apikeydomain.ErrInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return 0, apikeydomain.ErrInvalidKey
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, time.Now().UTC()); err != nil {
		s.log.Warn("failed to update api key last_used_at", zap.String("key_id", key.KeyID), zap.Error(err))
	}
	return key.UserID, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID) ([]apikeydomain.Response, error) {
	if userID == 0 {
		return nil, apikeydomain.ErrInvalidUser
	}

	items, err := s.repo.List(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, apikeydomain.Response{
			KeyID:      items[i].KeyID,
			IsActive:   items[i].IsActive,
			CreatedAt:  items[i].CreatedAt,
			LastUsedAt: items[i].LastUsedAt,
		})
	}
	return resp, nil
}

func (s *Service) Revoke(ctx context.Context, userID snowflake.ID, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, userID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}
	if !key.IsActive {
		return nil
	}
	if err := s.repo.Deactivate(ctx, s.db, userID, trimmed); err != nil {
		return err
	}

	s.log.Info("api key revoked", zap.String("user_id", userID.String()), zap.String("key_id", trimmed))
	return nil
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	plain := apikeydomain.KeyPrefix + strings.ToLower(strings.TrimPrefix(keyID, "key_")) + "_" + hex.EncodeToString(secret)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}
