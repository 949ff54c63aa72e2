package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type HierarchyViewRepo interface {
	Create(ctx context.Context, tx *gorm.DB, view *types.HierarchyView) (*types.HierarchyView, error)
	GetByID(ctx context.Context, tx *gorm.DB, viewID uuid.UUID) (*types.HierarchyView, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.HierarchyView, error)
	Update(ctx context.Context, tx *gorm.DB, view *types.HierarchyView) error
}

type hierarchyViewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHierarchyViewRepo(db *gorm.DB, baseLog *logger.Logger) HierarchyViewRepo {
	return &hierarchyViewRepo{db: db, log: baseLog.With("repo", "HierarchyViewRepo")}
}

func (vr *hierarchyViewRepo) Create(ctx context.Context, tx *gorm.DB, view *types.HierarchyView) (*types.HierarchyView, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}

	if err := transaction.WithContext(ctx).Create(view).Error; err != nil {
		return nil, err
	}
	return view, nil
}

func (vr *hierarchyViewRepo) GetByID(ctx context.Context, tx *gorm.DB, viewID uuid.UUID) (*types.HierarchyView, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}

	var result types.HierarchyView
	if err := transaction.WithContext(ctx).
		Where("id = ?", viewID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("hierarchy view %s: %w", viewID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &result, nil
}

func (vr *hierarchyViewRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.HierarchyView, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}

	var results []*types.HierarchyView
	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (vr *hierarchyViewRepo) Update(ctx context.Context, tx *gorm.DB, view *types.HierarchyView) error {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	return transaction.WithContext(ctx).Save(view).Error
}
