package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type AssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, assets []*types.Asset) ([]*types.Asset, error)
	GetByID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) (*types.Asset, error)
	Find(ctx context.Context, tx *gorm.DB, filter types.AssetFilter, page types.Pagination) ([]*types.Asset, error)
	ListIDs(ctx context.Context, tx *gorm.DB, organisationID string) ([]uuid.UUID, error)
	UpdateTags(ctx context.Context, tx *gorm.DB, assetID uuid.UUID, tags []string) error
	Delete(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (ar *assetRepo) Create(ctx context.Context, tx *gorm.DB, assets []*types.Asset) ([]*types.Asset, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if len(assets) == 0 {
		return []*types.Asset{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (ar *assetRepo) GetByID(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) (*types.Asset, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	var result types.Asset
	if err := transaction.WithContext(ctx).
		Where("id = ?", assetID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %s: %w", assetID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &result, nil
}

func (ar *assetRepo) Find(ctx context.Context, tx *gorm.DB, filter types.AssetFilter, page types.Pagination) ([]*types.Asset, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	q := transaction.WithContext(ctx).Model(&types.Asset{})
	if filter.OrganisationID != "" {
		q = q.Where("organisation_id = ?", filter.OrganisationID)
	}
	if filter.AssetType != "" {
		q = q.Where("asset_type = ?", filter.AssetType)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}

	var results []*types.Asset
	// Stable paging order; id is the only column guaranteed unique.
	if err := q.Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ar *assetRepo) ListIDs(ctx context.Context, tx *gorm.DB, organisationID string) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	q := transaction.WithContext(ctx).Model(&types.Asset{})
	if organisationID != "" {
		q = q.Where("organisation_id = ?", organisationID)
	}

	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (ar *assetRepo) UpdateTags(ctx context.Context, tx *gorm.DB, assetID uuid.UUID, tags []string) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	res := transaction.WithContext(ctx).
		Model(&types.Asset{}).
		Where("id = ?", assetID).
		Update("tags", datatypes.JSON(raw))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("asset %s: %w", assetID, apperrors.ErrNotFound)
	}
	return nil
}

func (ar *assetRepo) Delete(ctx context.Context, tx *gorm.DB, assetID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", assetID).
		Delete(&types.Asset{}).Error
}
