package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/crewflow/types"
)

// newTestRepository opens an in-memory database with the pure-Go sqlite
// driver, so the tests run without cgo.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	repo, err := NewRepository(db, zap.NewNop())
	require.NoError(t, err)
	return repo
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	w := &Workflow{Name: "research_flow", Kind: "flow", Document: "flow:\n  name: research_flow\n"}
	require.NoError(t, repo.Save(ctx, w))

	got, err := repo.Get(ctx, "research_flow")
	require.NoError(t, err)
	assert.Equal(t, "flow", got.Kind)
	assert.Contains(t, got.Document, "research_flow")
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRepository_SaveReplacesByName(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Workflow{Name: "wf", Kind: "crew", Document: "v1"}))
	require.NoError(t, repo.Save(ctx, &Workflow{Name: "wf", Kind: "crew", Document: "v2"}))

	got, err := repo.Get(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Document)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRepository_ListOrdersByName(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Workflow{Name: "zeta", Kind: "crew", Document: "z"}))
	require.NoError(t, repo.Save(ctx, &Workflow{Name: "alpha", Kind: "flow", Document: "a"}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[1].Name)
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Workflow{Name: "wf", Kind: "crew", Document: "d"}))
	require.NoError(t, repo.Delete(ctx, "wf"))

	_, err := repo.Get(ctx, "wf")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	// Unknown names delete quietly.
	require.NoError(t, repo.Delete(ctx, "ghost"))
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "whatever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
