package cache

import (
	"context"
	"fmt"
	"time"

	"inkwell/internal/observability"
)

const (
	UserKeyPrefix      = "user:%d"
	PostKeyPrefix      = "post:%d"
	PostsPageKeyPrefix = "posts:page:%d"
)

const (
	UserTTL      = 5 * time.Minute
	PostTTL      = 30 * time.Minute
	PostsPageTTL = 1 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func PostsPageKey(page int) string {
	return fmt.Sprintf(PostsPageKeyPrefix, page)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}

// InvalidatePostPages drops all cached post list pages. The page keys share a
// prefix so a SCAN+DEL sweep keeps the listing consistent after any write.
func InvalidatePostPages(ctx context.Context) {
	if client == nil {
		return
	}
	ctx, span := observability.TraceRedisOperation(ctx, "invalidate_post_pages")
	defer span.End()

	iter := client.Scan(ctx, 0, "posts:page:*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
