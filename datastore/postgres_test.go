package datastore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vidstream/feedrelay/common"
)

func TestPostgresStoreQueries(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	connectURI, ok := os.LookupEnv("POSTGRES_TEST_URI")
	if !ok {
		t.SkipNow()
	}

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	// Single pool connection keeps the temporary tables visible for the
	// whole test
	db, err := GetPostgresClient(common.DatastoreConfig{
		ConnectURI: connectURI, MaxOpenConns: 1, CallTimeout: 15,
	})
	assert.Nil(err)
	defer func() {
		assert.Nil(db.Close())
	}()

	_, err = db.ExecContext(utCtxt, `CREATE TEMPORARY TABLE users (id TEXT PRIMARY KEY)`)
	assert.Nil(err)
	_, err = db.ExecContext(utCtxt, `CREATE TEMPORARY TABLE followers (
		follower_id TEXT, followee_id TEXT
	)`)
	assert.Nil(err)
	_, err = db.ExecContext(utCtxt, `CREATE TEMPORARY TABLE videos (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		title TEXT,
		file_path TEXT,
		likes BIGINT,
		uploaded_at TIMESTAMPTZ
	)`)
	assert.Nil(err)

	uut, err := GetPostgresStore(db, time.Second*15)
	assert.Nil(err)

	owner := uuid.New().String()
	follower1 := uuid.New().String()
	follower2 := uuid.New().String()
	for _, userID := range []string{owner, follower1, follower2} {
		_, err = db.ExecContext(utCtxt, `INSERT INTO users (id) VALUES ($1)`, userID)
		assert.Nil(err)
	}
	for _, followerID := range []string{follower1, follower2} {
		_, err = db.ExecContext(
			utCtxt,
			`INSERT INTO followers (follower_id, followee_id) VALUES ($1, $2)`,
			followerID, owner,
		)
		assert.Nil(err)
	}

	// Case 0: owner resolution
	{
		exists, err := uut.OwnerExists(utCtxt, owner)
		assert.Nil(err)
		assert.True(exists)
		exists, err = uut.OwnerExists(utCtxt, uuid.New().String())
		assert.Nil(err)
		assert.False(exists)
	}

	// Case 1: follower resolution
	{
		followerIDs, err := uut.FollowersOf(utCtxt, owner)
		assert.Nil(err)
		assert.Len(followerIDs, 2)
		followerIDs, err = uut.FollowersOf(utCtxt, follower1)
		assert.Nil(err)
		assert.Empty(followerIDs)
	}

	// Case 2: top engaged content respects threshold, order, and cap
	{
		likes := []int64{80, 60, 40, 90, 55}
		for _, count := range likes {
			_, err = db.ExecContext(
				utCtxt,
				`INSERT INTO videos (id, owner_id, title, file_path, likes, uploaded_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.New().String(), owner, "unit test", "/media/ut.mp4",
				count, time.Now().UTC(),
			)
			assert.Nil(err)
		}

		records, err := uut.TopEngaged(utCtxt, 50, 10)
		assert.Nil(err)
		assert.Len(records, 4)
		assert.Equal(int64(90), records[0].Likes)
		assert.Equal(int64(80), records[1].Likes)
		assert.Equal(int64(60), records[2].Likes)
		assert.Equal(int64(55), records[3].Likes)

		records, err = uut.TopEngaged(utCtxt, 50, 2)
		assert.Nil(err)
		assert.Len(records, 2)
		assert.Equal(int64(90), records[0].Likes)

		records, err = uut.TopEngaged(utCtxt, 1000, 10)
		assert.Nil(err)
		assert.Empty(records)
	}
}
