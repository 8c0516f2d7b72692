package datastore

import (
	"context"
	"database/sql"
	"time"

	"github.com/apex/log"
	// Postgres driver for database/sql
	_ "github.com/lib/pq"
	"github.com/vidstream/feedrelay/common"
)

// FollowerStore read-only queries against the platform's user data
type FollowerStore interface {
	// OwnerExists check whether a user record resolves
	OwnerExists(ctxt context.Context, userID string) (bool, error)
	// FollowersOf fetch the follower ID set of a user
	FollowersOf(ctxt context.Context, userID string) ([]string, error)
}

// ContentStore read-only queries against the platform's content data
type ContentStore interface {
	// TopEngaged fetch content with engagement >= threshold, ordered by
	// engagement descending, capped at limit
	TopEngaged(ctxt context.Context, threshold int64, limit int) ([]common.ContentRecord, error)
}

// GetPostgresClient open a connection pool against the platform data store
func GetPostgresClient(config common.DatastoreConfig) (*sql.DB, error) {
	logTags := log.Fields{
		"module": "datastore", "component": "postgres-client",
	}
	db, err := sql.Open("postgres", config.ConnectURI)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Postgres client define failed")
		return nil, err
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	log.WithFields(logTags).Info("Created Postgres client")
	return db, nil
}

// Store combined read-only view used by the feed layer
type Store interface {
	FollowerStore
	ContentStore
}

// postgresStoreImpl implements Store
type postgresStoreImpl struct {
	common.Component
	db          *sql.DB
	callTimeout time.Duration
}

// GetPostgresStore define a read-only store view over the platform data store
func GetPostgresStore(db *sql.DB, callTimeout time.Duration) (Store, error) {
	logTags := log.Fields{
		"module": "datastore", "component": "postgres-store",
	}
	return &postgresStoreImpl{
		Component:   common.Component{LogTags: logTags},
		db:          db,
		callTimeout: callTimeout,
	}, nil
}

// OwnerExists check whether a user record resolves
func (s *postgresStoreImpl) OwnerExists(ctxt context.Context, userID string) (bool, error) {
	useContext, cancel := context.WithTimeout(ctxt, s.callTimeout)
	defer cancel()
	var exists bool
	err := s.db.QueryRowContext(
		useContext, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID,
	).Scan(&exists)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("User lookup failed for %s", userID)
		return false, err
	}
	return exists, nil
}

// FollowersOf fetch the follower ID set of a user
func (s *postgresStoreImpl) FollowersOf(ctxt context.Context, userID string) ([]string, error) {
	useContext, cancel := context.WithTimeout(ctxt, s.callTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(
		useContext, "SELECT follower_id FROM followers WHERE followee_id = $1", userID,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Follower query failed for %s", userID,
		)
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Follower row close failed")
		}
	}()
	followers := []string{}
	for rows.Next() {
		var followerID string
		if err := rows.Scan(&followerID); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Follower row scan failed")
			return nil, err
		}
		followers = append(followers, followerID)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Follower query read failed for %s", userID,
		)
		return nil, err
	}
	return followers, nil
}

// TopEngaged fetch content with engagement >= threshold, ordered descending
func (s *postgresStoreImpl) TopEngaged(
	ctxt context.Context, threshold int64, limit int,
) ([]common.ContentRecord, error) {
	useContext, cancel := context.WithTimeout(ctxt, s.callTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(
		useContext,
		`SELECT id, owner_id, title, file_path, likes, uploaded_at
		   FROM videos WHERE likes >= $1 ORDER BY likes DESC LIMIT $2`,
		threshold, limit,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Top engaged query failed")
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Content row close failed")
		}
	}()
	records := []common.ContentRecord{}
	for rows.Next() {
		var record common.ContentRecord
		if err := rows.Scan(
			&record.ID,
			&record.OwnerID,
			&record.Title,
			&record.FilePath,
			&record.Likes,
			&record.UploadedAt,
		); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Content row scan failed")
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Top engaged query read failed")
		return nil, err
	}
	return records, nil
}
