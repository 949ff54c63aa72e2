package repos_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/repos"
	"github.com/civicworks/assetgraph-backend/internal/repos/testutil"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

func seedAssets(t *testing.T, n int, orgID string) []*types.Asset {
	t.Helper()
	assets := make([]*types.Asset, 0, n)
	for i := 0; i < n; i++ {
		assets = append(assets, &types.Asset{
			ID:             uuid.New(),
			Name:           fmt.Sprintf("Road %d", i),
			AssetType:      "ROAD",
			OrganisationID: orgID,
			CurrentValue:   float64(100 * (i + 1)),
			Criticality:    3,
		})
	}
	return assets
}

func TestAssetRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewAssetRepo(db, testutil.Logger(t))

	created, err := repo.Create(ctx, tx, seedAssets(t, 1, "org-create"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, created[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != created[0].Name || got.AssetType != "ROAD" {
		t.Fatalf("unexpected asset: %+v", got)
	}

	if _, err := repo.GetByID(ctx, tx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssetRepo_FindPagesInStableOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewAssetRepo(db, testutil.Logger(t))

	if _, err := repo.Create(ctx, tx, seedAssets(t, 5, "org-paging")); err != nil {
		t.Fatalf("create: %v", err)
	}

	filter := types.AssetFilter{OrganisationID: "org-paging"}
	var all []*types.Asset
	for offset := 0; ; offset += 2 {
		page, err := repo.Find(ctx, tx, filter, types.Pagination{Offset: offset, Limit: 2})
		if err != nil {
			t.Fatalf("find offset %d: %v", offset, err)
		}
		all = append(all, page...)
		if len(page) < 2 {
			break
		}
	}

	if len(all) != 5 {
		t.Fatalf("expected all 5 assets across pages, got %d", len(all))
	}
	seen := map[uuid.UUID]bool{}
	for i, a := range all {
		if seen[a.ID] {
			t.Fatalf("asset %s appeared in two pages", a.ID)
		}
		seen[a.ID] = true
		if i > 0 && all[i-1].ID.String() >= a.ID.String() {
			t.Fatalf("pages out of id order at %d", i)
		}
	}
}

func TestAssetRepo_UpdateTags(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewAssetRepo(db, testutil.Logger(t))

	created, err := repo.Create(ctx, tx, seedAssets(t, 1, "org-tags"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateTags(ctx, tx, created[0].ID, []string{"org:Works", "funding:maintenance"}); err != nil {
		t.Fatalf("update tags: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, created[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if types.TagValue(got.TagList(), "org") != "Works" {
		t.Fatalf("tags not persisted: %s", got.Tags)
	}

	if err := repo.UpdateTags(ctx, tx, uuid.New(), []string{"org:Works"}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown asset, got %v", err)
	}
}

func TestAssetRepo_DeleteIsSoft(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := repos.NewAssetRepo(db, testutil.Logger(t))

	created, err := repo.Create(ctx, tx, seedAssets(t, 1, "org-delete"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, tx, created[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := repo.GetByID(ctx, tx, created[0].ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("deleted asset should read as not found, got %v", err)
	}
	ids, err := repo.ListIDs(ctx, tx, "org-delete")
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("deleted asset still listed: %v", ids)
	}
}
