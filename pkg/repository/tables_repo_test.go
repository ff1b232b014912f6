package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qr-table-ordering/pkg/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTableKey(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t, "table-7", tableKey("table-7"))
	assert.Equal(t, bson.M{"$in": bson.A{oid, oid.Hex()}}, tableKey(oid.Hex()))
}

func TestTablesRepository_ObjectID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewTablesRepository(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	oid := primitive.NewObjectID()
	_, err := db.Collection(TablesCollection).InsertOne(ctx, bson.M{
		"_id":         oid,
		"tableNumber": 4,
		"status":      domain.TableAvailable,
	})
	require.NoError(t, err)

	table, err := repo.GetByNumber(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), table.ID)

	require.NoError(t, repo.AssignSession(ctx, table.ID, "s1", now))
	table, err = repo.GetByNumber(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "s1", table.CurrentSessionID)
	assert.Equal(t, domain.TableOccupied, table.Status)

	require.NoError(t, repo.ReleaseSession(ctx, table.ID, "s1", now))
	table, err = repo.GetByNumber(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, table.CurrentSessionID)
	assert.Equal(t, domain.TableAvailable, table.Status)
}

func TestTablesRepository_ReleaseOnlyCurrentSession(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewTablesRepository(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Create(ctx, &domain.Table{ID: "table-7", TableNumber: 7, Status: domain.TableAvailable}))
	require.NoError(t, repo.AssignSession(ctx, "table-7", "newer", now))

	require.NoError(t, repo.ReleaseSession(ctx, "table-7", "older", now))

	table, err := repo.GetByNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "newer", table.CurrentSessionID)
	assert.Equal(t, domain.TableOccupied, table.Status)
}
