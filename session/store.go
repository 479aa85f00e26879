package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps every Redis transport or server failure.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrSessionNotFound is returned when no live session matches a token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned by validation when the record had passed
	// its expiry. It matches ErrSessionNotFound under errors.Is.
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrSessionNotFound)
	// ErrSessionCorrupt is returned when a stored record cannot be decoded.
	// It matches ErrSessionNotFound under errors.Is.
	ErrSessionCorrupt = fmt.Errorf("%w: corrupt record", ErrSessionNotFound)
)

const (
	// DefaultKeyPrefix namespaces session records.
	DefaultKeyPrefix = "u_s"
	// DefaultIndexPrefix namespaces the per-user session id sets.
	DefaultIndexPrefix = "s_u"
)

// Store is a typed adapter over Redis for session records and the per-user
// session index. Every multi-key write runs inside MULTI/EXEC.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	indexPrefix string
}

// NewStore creates a [Store]. Empty prefixes fall back to
// [DefaultKeyPrefix] and [DefaultIndexPrefix].
func NewStore(rdb redis.UniversalClient, prefix, indexPrefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if indexPrefix == "" {
		indexPrefix = DefaultIndexPrefix
	}
	return &Store{
		redis:       rdb,
		prefix:      prefix,
		indexPrefix: indexPrefix,
	}
}

// Key returns the Redis key holding the record for sessionID.
func (s *Store) Key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// IndexKey returns the Redis key of the set listing userID's sessions.
func (s *Store) IndexKey(userID string) string {
	return s.indexPrefix + ":" + userID
}

// Get loads one session. A missing key yields [ErrSessionNotFound]; an
// undecodable record is removed and yields [ErrSessionCorrupt].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.Key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return sess, nil
}

// Create writes a new record with its expiry and adds it to the user index
// in a single transaction.
//
//	Performance: 1 round trip (MULTI SET PEXPIREAT SADD EXEC).
func (s *Store) Create(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	key := s.Key(sess.ID)
	expireAt := time.UnixMilli(sess.ExpiresAt)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.PExpireAt(ctx, key, expireAt)
		pipe.SAdd(ctx, s.IndexKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Put overwrites an existing record and re-pins its expiry to ExpiresAt.
// The user index is left untouched. A record deleted since it was read is
// not recreated; Put returns [ErrSessionNotFound] instead.
//
//	Performance: 1 round trip (SET XX PXAT).
func (s *Store) Put(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	err = s.redis.Do(ctx, "SET", s.Key(sess.ID), data, "XX", "PXAT", sess.ExpiresAt).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes one record and its index entry together. Deleting an
// absent session succeeds.
func (s *Store) Delete(ctx context.Context, sessionID, userID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.Key(sessionID))
		pipe.SRem(ctx, s.IndexKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Members returns the session IDs indexed for userID, including entries
// whose records have already expired.
func (s *Store) Members(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.IndexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// DeleteAll removes the given records and the user's index in one DEL.
// Missing records are ignored by Redis.
func (s *Store) DeleteAll(ctx context.Context, userID string, sessionIDs []string) error {
	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, s.Key(id))
	}
	keys = append(keys, s.IndexKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetMany loads several records in one pipeline. Records that are missing
// or undecodable are reported in dead instead of failing the call.
func (s *Store) GetMany(ctx context.Context, sessionIDs []string) (live []*Session, dead []string, err error) {
	if len(sessionIDs) == 0 {
		return nil, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, id := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.Key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	live = make([]*Session, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				dead = append(dead, sessionIDs[i])
				continue
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			dead = append(dead, sessionIDs[i])
			continue
		}
		live = append(live, sess)
	}
	return live, dead, nil
}

// Unindex drops session IDs from the user index without touching records.
func (s *Store) Unindex(ctx context.Context, userID string, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(sessionIDs))
	for i, id := range sessionIDs {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, s.IndexKey(userID), members...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks connectivity to the backing Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
