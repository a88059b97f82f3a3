package sources

import (
	"context"

	"github.com/azure/danmaku-digest-bot/internal/models"
)

// SegmentSec is the span of one platform danmaku segment
const SegmentSec = 360

// MessageSource fetches the reaction messages of a video
type MessageSource interface {
	// FetchMessages returns messages whose timestamps fall in r. Implementations
	// may return messages slightly outside r when the platform pages coarsely.
	FetchMessages(ctx context.Context, contentID string, r models.TimeRange) ([]models.ReactionMessage, error)
}

// CommentSource fetches the highest-ranked comments of a video
type CommentSource interface {
	// FetchTopComments returns up to n comments sorted by like count descending
	FetchTopComments(ctx context.Context, contentID string, n int) ([]models.Comment, error)
}

// MetadataSource resolves video metadata
type MetadataSource interface {
	FetchDuration(ctx context.Context, contentID string) (int, error)
}

// Source bundles all three capabilities under one name
type Source interface {
	MessageSource
	CommentSource
	MetadataSource
	GetName() string
}

// SegmentRange converts a time range into the inclusive 1-based platform
// segment indexes covering it.
func SegmentRange(r models.TimeRange) (first, last int) {
	from := max(0, r.FromSec)
	to := max(from+1, r.ToSec)
	return from/SegmentSec + 1, (to-1)/SegmentSec + 1
}
