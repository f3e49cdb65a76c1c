// Package service contains the business rules of the application.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"inkwell/internal/cache"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/repository"
)

// PageSize is the fixed number of posts per listing page.
const PageSize = 4

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	images   *ImageService
}

type CreatePostInput struct {
	AuthorID uint
	Title    string
	Content  string
	Image    *SaveImageInput
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Title   string
	Content string
	Image   *SaveImageInput
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// PostPage is one page of the post listing plus its paginator state.
type PostPage struct {
	Posts      []models.Post
	Page       int
	TotalPages int
	Total      int64
}

func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository, images *ImageService) *PostService {
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		images:   images,
	}
}

func validatePostFields(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLen {
		return models.NewValidationError("Title too long (max 100 characters)")
	}
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	return nil
}

// CreatePost validates and stores a new post owned by in.AuthorID. The author
// and posting time always come from the session, never from the payload.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "service.CreatePost")
	defer span.End()

	if in.AuthorID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}

	imageName := DefaultImageName
	if in.Image != nil {
		name, err := s.storeImage(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		imageName = name
	}

	post := &models.Post{
		Title:    in.Title,
		Content:  in.Content,
		PostedAt: time.Now().UTC(),
		AuthorID: in.AuthorID,
		Image:    imageName,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		if imageName != DefaultImageName {
			s.images.Remove(imageName)
		}
		span.SetError(err)
		return nil, err
	}

	return s.postRepo.GetByID(ctx, post.ID)
}

// storeImage saves an upload and regenerates its thumbnail. A failed
// thumbnail never fails the write: the original image is already stored and
// servable, so the error is logged and counted instead.
func (s *PostService) storeImage(ctx context.Context, in SaveImageInput) (string, error) {
	name, err := s.images.Save(in)
	if err != nil {
		if name == "" {
			return "", err
		}
		middleware.ThumbnailFailures.Inc()
		observability.RecordErrorInContext(ctx, err)
		middleware.Logger.WarnContext(ctx, "thumbnail generation failed, keeping original image",
			slog.String("image", name),
			slog.String("error", err.Error()),
		)
	}
	return name, nil
}

// GetPost returns a single post or a not-found error.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, id)
}

// ListPosts returns one page of all posts, newest first. Pages are numbered
// from 1; a page beyond the last is a not-found error, matching how the rest
// of the API treats missing resources. Pages are cached briefly; every post
// write sweeps the page keys so listings never serve stale pages for long.
func (s *PostService) ListPosts(ctx context.Context, page int) (*PostPage, error) {
	var result PostPage
	err := cache.Aside(ctx, cache.PostsPageKey(page), &result, cache.PostsPageTTL, func() error {
		total, err := s.postRepo.Count(ctx)
		if err != nil {
			return err
		}

		totalPages := pageCount(total)
		if page < 1 || page > totalPages {
			return models.NewNotFoundError("Page", page)
		}

		posts, err := s.postRepo.List(ctx, PageSize, (page-1)*PageSize)
		if err != nil {
			return err
		}
		result = PostPage{Posts: posts, Page: page, TotalPages: totalPages, Total: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByAuthor returns one page of the named user's posts, newest first.
// An unknown username is a not-found error.
func (s *PostService) ListByAuthor(ctx context.Context, username string, page int) (*models.User, *PostPage, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, models.NewNotFoundError("User", username)
	}

	total, err := s.postRepo.CountByAuthor(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	totalPages := pageCount(total)
	if page < 1 || page > totalPages {
		return nil, nil, models.NewNotFoundError("Page", page)
	}

	posts, err := s.postRepo.GetByAuthorID(ctx, user.ID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, nil, err
	}
	return user, &PostPage{Posts: posts, Page: page, TotalPages: totalPages, Total: total}, nil
}

// SearchPosts returns every post whose title or content contains the query,
// case-insensitively. An empty query returns the whole collection. Results
// are not paginated.
func (s *PostService) SearchPosts(ctx context.Context, query string) ([]models.Post, error) {
	return s.postRepo.Search(ctx, query)
}

// UpdatePost applies new title, content and optionally a new image to an
// existing post. Only the owner may update; the author and original posting
// time never change.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	if post.AuthorID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own posts")
	}

	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}

	oldImage := post.Image
	if in.Image != nil {
		name, err := s.storeImage(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = name
	}

	post.Title = in.Title
	post.Content = in.Content

	if err := s.postRepo.Update(ctx, post); err != nil {
		if in.Image != nil && post.Image != oldImage {
			s.images.Remove(post.Image)
		}
		return nil, err
	}

	if in.Image != nil && oldImage != post.Image {
		s.images.Remove(oldImage)
	}
	return s.postRepo.GetByID(ctx, post.ID)
}

// DeletePost removes a post and its stored image. Only the owner may delete.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}

	if post.AuthorID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.postRepo.Delete(ctx, in.PostID); err != nil {
		return err
	}
	s.images.Remove(post.Image)
	return nil
}

// pageCount mirrors the classic paginator: an empty collection still has one
// (empty) first page.
func pageCount(total int64) int {
	if total <= 0 {
		return 1
	}
	pages := int((total + PageSize - 1) / PageSize)
	return pages
}
