// Package store provides the key-value persistence backing keyword
// configuration and statistics. The sync bucket models the replicated
// browser storage area holding keyword lists; the local bucket holds
// per-instance state (stats, selectedType).
package store

import "context"

const (
	BucketSync  = "sync"
	BucketLocal = "local"
)

// Sync-bucket keys. Keyword values are newline-delimited blobs; the
// engine re-reads them at the start of every filter pass and never
// caches beyond one pass.
const (
	KeyBlockingEnabled  = "blockingEnabled"
	KeyAuthorKeywords   = "authorKeywords"
	KeyQuestionKeywords = "questionKeywords"
	KeyAnswerKeywords   = "answerKeywords"
	KeyCommentKeywords  = "commentKeywords"
)

// Local-bucket keys.
const (
	KeyStats        = "stats"
	KeySelectedType = "selectedType"
)

// Store is a bucketed key-value store.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, bucket, key string) (string, bool, error)
	Set(ctx context.Context, bucket, key, value string) error
	Delete(ctx context.Context, bucket, key string) error
}

// GetDefault returns the stored value or fallback when the key is
// absent.
func GetDefault(ctx context.Context, s Store, bucket, key, fallback string) (string, error) {
	value, ok, err := s.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}
