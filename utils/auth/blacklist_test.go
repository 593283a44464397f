package auth

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupBlacklistDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test. Set TEST_DATABASE_URL to run")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.User{}, &model.JWTTokenBlacklist{}))
	return db
}

func newBlacklistUser(t *testing.T, db *gorm.DB) model.User {
	t.Helper()
	tag := uuid.New().String()[:8]

	user := model.User{
		Email:        fmt.Sprintf("user-%s@test.local", tag),
		PasswordHash: "x",
		Name:         "Test User",
		Role:         model.RoleStudent,
	}
	require.NoError(t, db.Create(&user).Error)

	t.Cleanup(func() {
		db.Unscoped().Where("user_id = ?", user.ID).Delete(&model.JWTTokenBlacklist{})
		db.Unscoped().Delete(&user)
	})
	return user
}

func TestCleanupExpiredTokensRemovesOnlyExpired(t *testing.T) {
	db := setupBlacklistDB(t)
	svc := NewBlacklistService(db)
	user := newBlacklistUser(t, db)
	ctx := context.Background()

	expiredJTI := uuid.New().String()
	liveJTI := uuid.New().String()
	require.NoError(t, svc.RevokeToken(ctx, expiredJTI, user.ID, time.Now().Add(-time.Hour), "logout"))
	require.NoError(t, svc.RevokeToken(ctx, liveJTI, user.ID, time.Now().Add(time.Hour), "logout"))

	removed, err := svc.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(1))

	// The live entry still blocks its token, the expired one is gone for good.
	revoked, err := svc.IsTokenRevoked(ctx, liveJTI)
	require.NoError(t, err)
	assert.True(t, revoked)

	var count int64
	require.NoError(t, db.Unscoped().Model(&model.JWTTokenBlacklist{}).
		Where("token = ?", expiredJTI).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRevokeAllUserTokensBumpsVersion(t *testing.T) {
	db := setupBlacklistDB(t)
	svc := NewBlacklistService(db)
	user := newBlacklistUser(t, db)
	ctx := context.Background()

	require.NoError(t, svc.RevokeAllUserTokens(ctx, user.ID))

	var reloaded model.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, user.TokenVersion+1, reloaded.TokenVersion)
}
