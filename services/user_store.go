package services

import (
	"context"
	"errors"

	"relay-hub/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserStore is the persistence contract the user directory needs:
// lookup by either key, upsert, and an atomic append to the task list.
// Find methods return (nil, nil) when no record exists.
type UserStore interface {
	FindByWallet(ctx context.Context, wallet string) (*models.UserRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.UserRecord, error)
	Upsert(ctx context.Context, wallet string) (*models.UserRecord, error)
	SetExternalID(ctx context.Context, wallet, externalID string) error
	AppendTask(ctx context.Context, wallet, text string) (models.Task, error)
	ToggleTask(ctx context.Context, wallet string, taskID int64) (bool, error)
	ListTasks(ctx context.Context, wallet string) ([]models.Task, error)
}

// GormUserStore keeps users and tasks in two tables.
type GormUserStore struct {
	DB *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{DB: db}
}

// AutoMigrate creates the relay tables.
func (s *GormUserStore) AutoMigrate() error {
	return s.DB.AutoMigrate(&models.UserRecord{}, &models.Task{})
}

func (s *GormUserStore) FindByWallet(ctx context.Context, wallet string) (*models.UserRecord, error) {
	return s.findOne(ctx, "wallet_address = ?", wallet)
}

func (s *GormUserStore) FindByExternalID(ctx context.Context, externalID string) (*models.UserRecord, error) {
	return s.findOne(ctx, "external_id = ?", externalID)
}

func (s *GormUserStore) findOne(ctx context.Context, query string, arg string) (*models.UserRecord, error) {
	var user models.UserRecord
	err := s.DB.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where(query, arg).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormUserStore) Upsert(ctx context.Context, wallet string) (*models.UserRecord, error) {
	if err := createIfMissing(s.DB.WithContext(ctx), wallet); err != nil {
		return nil, err
	}
	return s.FindByWallet(ctx, wallet)
}

// SetExternalID links wallet to externalID, unlinking any other wallet that
// held the same id, and creates the wallet's record when missing.
func (s *GormUserStore) SetExternalID(ctx context.Context, wallet, externalID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.UserRecord{}).
			Where("external_id = ? AND wallet_address <> ?", externalID, wallet).
			Update("external_id", gorm.Expr("NULL")).Error; err != nil {
			return err
		}
		user := models.UserRecord{WalletAddress: wallet, ExternalID: &externalID, NextTaskID: 1}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"external_id", "updated_at"}),
		}).Create(&user).Error
	})
}

// AppendTask assigns the owner's next task id under a row lock so concurrent
// appends for one wallet never share an id or lose a write.
func (s *GormUserStore) AppendTask(ctx context.Context, wallet, text string) (models.Task, error) {
	var task models.Task
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createIfMissing(tx, wallet); err != nil {
			return err
		}
		var user models.UserRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("wallet_address = ?", wallet).
			First(&user).Error; err != nil {
			return err
		}

		task = models.Task{WalletAddress: wallet, ID: user.NextTaskID, Text: text}
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		return tx.Model(&models.UserRecord{}).
			Where("wallet_address = ?", wallet).
			Update("next_task_id", gorm.Expr("next_task_id + 1")).Error
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ToggleTask flips done in a single statement; found is false when no row matched.
func (s *GormUserStore) ToggleTask(ctx context.Context, wallet string, taskID int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Task{}).
		Where("wallet_address = ? AND id = ?", wallet, taskID).
		Update("done", gorm.Expr("NOT done"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormUserStore) ListTasks(ctx context.Context, wallet string) ([]models.Task, error) {
	tasks := []models.Task{}
	if err := s.DB.WithContext(ctx).
		Where("wallet_address = ?", wallet).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func createIfMissing(db *gorm.DB, wallet string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserRecord{WalletAddress: wallet, NextTaskID: 1}).Error
}
