package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/cellclash/insight/internal/storage"
)

type SnapshotStoreTestSuite struct {
	suite.Suite
	store *storage.SnapshotStore
}

func (suite *SnapshotStoreTestSuite) SetupSuite() {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/9"
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := storage.NewSnapshotStore(url, time.Hour, logger)
	if err != nil {
		suite.T().Skip("Redis not available for storage tests")
		return
	}
	suite.store = store
}

func (suite *SnapshotStoreTestSuite) TearDownSuite() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *SnapshotStoreTestSuite) TestSaveAndLoadRoundTrip() {
	ctx := context.Background()
	sessionID := uuid.New()
	blob := []byte(`{"schema_version":1}`)

	suite.Require().NoError(suite.store.Save(ctx, sessionID, blob))

	got, err := suite.store.Load(ctx, sessionID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), blob, got)
}

func (suite *SnapshotStoreTestSuite) TestLoadMissingReturnsNil() {
	got, err := suite.store.Load(context.Background(), uuid.New())
	suite.Require().NoError(err)
	assert.Nil(suite.T(), got)
}

func (suite *SnapshotStoreTestSuite) TestDeleteRemovesSnapshot() {
	ctx := context.Background()
	sessionID := uuid.New()

	suite.Require().NoError(suite.store.Save(ctx, sessionID, []byte(`{}`)))
	suite.Require().NoError(suite.store.Delete(ctx, sessionID))

	got, err := suite.store.Load(ctx, sessionID)
	suite.Require().NoError(err)
	assert.Nil(suite.T(), got)
}

func (suite *SnapshotStoreTestSuite) TestPing() {
	assert.NoError(suite.T(), suite.store.Ping(context.Background()))
}

func TestSnapshotStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SnapshotStoreTestSuite))
}
