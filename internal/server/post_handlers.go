package server

import (
	"io"
	"mime/multipart"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts?page=N
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePage(c)

	result, err := s.postService.ListPosts(c.UserContext(), page)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(postPagePayload(result.Posts, result.Page, result.TotalPages, result.Total))
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(post)
}

// GetUserPosts handles GET /api/users/:username/posts?page=N
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	username := c.Params("username")
	page := parsePage(c)

	user, result, err := s.postService.ListByAuthor(c.UserContext(), username, page)
	if err != nil {
		return respondError(c, err)
	}

	payload := postPagePayload(result.Posts, result.Page, result.TotalPages, result.Total)
	payload["user"] = fiber.Map{
		"id":       user.ID,
		"username": user.Username,
	}
	return c.JSON(payload)
}

// SearchPosts handles GET /api/posts/search?q=term
// An empty query returns the whole collection, unpaginated.
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	query := c.Query("q")

	posts, err := s.postService.SearchPosts(c.UserContext(), query)
	if err != nil {
		return respondError(c, err)
	}
	if posts == nil {
		posts = []models.Post{}
	}

	return c.JSON(fiber.Map{
		"posts": posts,
		"count": len(posts),
	})
}

// CreatePost handles POST /api/posts (multipart form: title, content, image)
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	imageInput, err := s.formImage(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID: userID,
		Title:    c.FormValue("title"),
		Content:  c.FormValue("content"),
		Image:    imageInput,
	})
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Location", post.CanonicalURL())
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id (multipart form: title, content, image)
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	imageInput, err := s.formImage(c)
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:  userID,
		PostID:  id,
		Title:   c.FormValue("title"),
		Content: c.FormValue("content"),
		Image:   imageInput,
	})
	if err != nil {
		return respondError(c, err)
	}

	c.Set("Location", post.CanonicalURL())
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: userID,
		PostID: id,
	}); err != nil {
		return respondError(c, err)
	}

	// Clients land back on the post listing after a delete.
	return c.JSON(fiber.Map{
		"message":  "Post deleted",
		"redirect": "/",
	})
}

// formImage extracts the optional "image" multipart file from the request.
// A missing file is not an error; an unreadable one is.
func (s *Server) formImage(c *fiber.Ctx) (*service.SaveImageInput, error) {
	fh, err := c.FormFile("image")
	if err != nil || fh == nil {
		return nil, nil
	}

	content, err := readMultipartFile(fh)
	if err != nil {
		return nil, models.NewValidationError("Could not read uploaded image")
	}

	return &service.SaveImageInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
