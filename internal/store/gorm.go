package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"stealthpay/internal/model"
)

// DB is the GORM-backed Store.
type DB struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the pipeline tables.
func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Link{}, &model.Payment{}, &model.Withdrawal{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &DB{db: db}, nil
}

// NewDB wraps an existing GORM handle. Used by tests and by callers that
// manage the connection themselves.
func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

func (s *DB) UpsertPayment(ctx context.Context, p *model.Payment) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert payment %s: %w", p.TxHash, err)
	}
	return nil
}

func (s *DB) UpsertWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(w).Error
	if err != nil {
		return fmt.Errorf("failed to upsert withdrawal %s/%s: %w", w.TxHash, w.StealthOwner, err)
	}
	return nil
}

func (s *DB) FindUnprocessedPayments(ctx context.Context, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("is_processed = ?", false).
		Order("created_at asc").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed payments: %w", err)
	}
	return payments, nil
}

func (s *DB) FindUsersWithKeyMaterial(ctx context.Context, walletChain string) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("wallet_chain = ? AND meta_view_priv <> '' AND meta_spend_pub <> ''", walletChain).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users with key material: %w", err)
	}
	return users, nil
}

func (s *DB) FindLinkByOwnerAndTag(ctx context.Context, ownerID, tag string) (*model.Link, error) {
	var link model.Link
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND tag = ?", ownerID, tag).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find link for owner %s tag %q: %w", ownerID, tag, err)
	}
	return &link, nil
}

func (s *DB) FindLinkByID(ctx context.Context, id string) (*model.Link, error) {
	var link model.Link
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find link %s: %w", id, err)
	}
	return &link, nil
}

func (s *DB) MarkPaymentProcessed(ctx context.Context, txHash, linkID string) error {
	updates := map[string]any{"is_processed": true}
	if linkID != "" {
		updates["link_id"] = linkID
	}
	err := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("tx_hash = ?", txHash).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to mark payment %s processed: %w", txHash, err)
	}
	return nil
}

func (s *DB) MarkWithdrawalProcessed(ctx context.Context, txHash, stealthOwner string) error {
	err := s.db.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("tx_hash = ? AND stealth_owner = ?", txHash, stealthOwner).
		Update("is_processed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal %s processed: %w", txHash, err)
	}
	return nil
}

func (s *DB) LatestCursor(ctx context.Context, chain string) (string, error) {
	var payment model.Payment
	payErr := s.db.WithContext(ctx).
		Where("chain = ?", chain).
		Order("slot desc").
		First(&payment).Error
	if payErr != nil && !errors.Is(payErr, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load payment cursor: %w", payErr)
	}

	var withdrawal model.Withdrawal
	wdErr := s.db.WithContext(ctx).
		Where("chain = ?", chain).
		Order("slot desc").
		First(&withdrawal).Error
	if wdErr != nil && !errors.Is(wdErr, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load withdrawal cursor: %w", wdErr)
	}

	switch {
	case payErr == nil && wdErr == nil:
		if withdrawal.Slot > payment.Slot {
			return withdrawal.TxHash, nil
		}
		return payment.TxHash, nil
	case payErr == nil:
		return payment.TxHash, nil
	case wdErr == nil:
		return withdrawal.TxHash, nil
	default:
		return "", nil
	}
}
