package ledger

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stakeaware/accessgate/app/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by GORM (MySQL in production, sqlite in
// tests).
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(email string) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	err := s.db.Where("email = ?", email).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) Put(rec *models.SubscriptionRecord) error {
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan",
			"payment_reference",
			"expires_at",
			"active",
			"chat_id",
			"last_reminder_sent_at",
			"updated_at",
		}),
	}).Create(rec).Error; err != nil {
		return err
	}

	// Refresh timestamps after upsert.
	return s.db.Where("email = ?", rec.Email).First(rec).Error
}

func (s *gormStore) ApplyGrant(rec *models.SubscriptionRecord, reference string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan",
				"payment_reference",
				"expires_at",
				"active",
				"chat_id",
				"last_reminder_sent_at",
				"updated_at",
			}),
		}).Create(rec).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).Create(&models.AppliedReference{Reference: reference, Email: rec.Email}).Error; err != nil {
			return err
		}
		if err := tx.Where("email = ?", rec.Email).Delete(&models.PendingLink{}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "created_at"}),
		}).Create(&models.PendingLink{Reference: reference, Email: rec.Email}).Error; err != nil {
			return err
		}
		return tx.Where("email = ?", rec.Email).First(rec).Error
	})
}

func (s *gormStore) Snapshot() ([]models.SubscriptionRecord, error) {
	var recs []models.SubscriptionRecord
	err := s.db.Order("email asc").Find(&recs).Error
	return recs, err
}

func (s *gormStore) FindByChatID(chatID int64) (*models.SubscriptionRecord, error) {
	var rec models.SubscriptionRecord
	err := s.db.Where("chat_id = ?", chatID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) HasReference(reference string) (bool, error) {
	var count int64
	err := s.db.Model(&models.AppliedReference{}).
		Where("reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) ConsumePendingLink(reference string) (string, error) {
	email := ""
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var link models.PendingLink
		if err := tx.Where("reference = ?", reference).First(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		email = link.Email
		return tx.Delete(&link).Error
	})
	if err != nil {
		return "", err
	}
	return email, nil
}
