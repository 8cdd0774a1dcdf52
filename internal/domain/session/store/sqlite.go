package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/errors"
	"medialink-client-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	key string
}

// NewSQLite builds a sqlite-backed credential store, the durable default.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db, key: cfg.key()}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (model.Snapshot, error) {
	var record storage.CredentialSnapshot
	err := s.db.WithContext(ctx).Where("key = ?", s.key).First(&record).Error
	if err != nil {
		if errorsIsNotFound(err) {
			return model.Snapshot{}, nil
		}
		return model.Snapshot{}, errors.Wrap(errors.KindStorage, "store.load", "read snapshot", err)
	}

	var snap model.Snapshot
	if record.BaseURL != "" {
		snap.Server = &model.ServerConfig{
			BaseURL:   record.BaseURL,
			APIBase:   record.APIBase,
			Validated: true,
		}
	}
	if record.AccessToken != "" {
		snap.Credentials = &model.Credentials{
			AccessToken:  record.AccessToken,
			RefreshToken: record.RefreshToken,
		}
	}
	if len(record.Profile) > 0 {
		var profile model.UserProfile
		if err := json.Unmarshal(record.Profile, &profile); err == nil {
			snap.Profile = &profile
		}
	}
	return snap, nil
}

func (s *sqliteStore) SaveServer(ctx context.Context, server model.ServerConfig) error {
	record := storage.CredentialSnapshot{
		Key:     s.key,
		BaseURL: server.BaseURL,
		APIBase: server.APIBase,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ?", s.key).Delete(&storage.CredentialSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.save_server", "write server config", err)
	}
	return nil
}

func (s *sqliteStore) SaveCredentials(
	ctx context.Context,
	creds model.Credentials,
	profile *model.UserProfile,
) error {
	profileJSON := []byte(nil)
	if profile != nil {
		profileJSON, _ = json.Marshal(profile)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record storage.CredentialSnapshot
		if err := tx.Where("key = ?", s.key).First(&record).Error; err != nil {
			if errorsIsNotFound(err) {
				return errors.New(errors.KindStorage, "store.save_credentials", "no server config present")
			}
			return err
		}
		updates := map[string]any{
			"access_token":  creds.AccessToken,
			"refresh_token": creds.RefreshToken,
			"profile":       profileJSON,
		}
		return tx.Model(&record).Updates(updates).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.save_credentials", "write credentials", err)
	}
	return nil
}

func (s *sqliteStore) ClearCredentials(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Model(&storage.CredentialSnapshot{}).
		Where("key = ?", s.key).
		Updates(map[string]any{
			"access_token":  "",
			"refresh_token": "",
			"profile":       []byte(nil),
		}).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.clear_credentials", "clear credentials", err)
	}
	return nil
}

func (s *sqliteStore) Reset(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("key = ?", s.key).
		Delete(&storage.CredentialSnapshot{}).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "store.reset", "delete snapshot", err)
	}
	return nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func errorsIsNotFound(err error) bool {
	return err != nil && stderrors.Is(err, gorm.ErrRecordNotFound)
}
