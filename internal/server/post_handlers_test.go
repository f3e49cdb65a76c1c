package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/service"
	"inkwell/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*Server, *fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}))

	cfg := &config.Config{
		JWTSecret: "test-secret-for-handler-tests-1234",
		MediaDir:  t.TempDir(),
		Env:       "test",
	}

	imageService, err := service.NewImageService(cfg)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)

	s := &Server{
		config:       cfg,
		db:           db,
		userRepo:     userRepo,
		postRepo:     postRepo,
		imageService: imageService,
		postService:  service.NewPostService(postRepo, userRepo, imageService),
	}

	app := fiber.New()
	s.SetupRoutes(app)
	return s, app, db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedPost(t *testing.T, db *gorm.DB, author *models.User, title string, postedAt time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:    title,
		Content:  "content of " + title,
		PostedAt: postedAt,
		AuthorID: author.ID,
		Image:    "default.jpg",
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func authHeader(t *testing.T, s *Server, user *models.User) string {
	t.Helper()
	token, err := s.generateToken(user.ID, user.Username)
	require.NoError(t, err)
	return "Bearer " + token
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), "body: %s", raw)
	return body
}

// multipartBody builds a multipart form with the given fields and an optional
// image file.
func multipartBody(t *testing.T, fields map[string]string, imageName string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		fw, err := w.CreateFormFile("image", imageName)
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestGetPosts_Pagination(t *testing.T) {
	_, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		seedPost(t, db, alice, fmt.Sprintf("Post %d", i), base.Add(time.Duration(i)*time.Hour))
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	posts := body["posts"].([]any)
	require.Len(t, posts, 4)
	assert.Equal(t, "Post 5", posts[0].(map[string]any)["title"])
	assert.EqualValues(t, 2, body["total_pages"])
	assert.EqualValues(t, 6, body["total"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts?page=2", nil))
	require.NoError(t, err)
	body = decodeBody(t, resp)
	require.Len(t, body["posts"].([]any), 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts?page=5", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetPost_Detail(t *testing.T) {
	_, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")
	post := seedPost(t, db, alice, "Hello", time.Now().UTC())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/posts/%d", post.ID), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Hello", body["title"])
	author := body["author"].(map[string]any)
	assert.Equal(t, "alice", author["username"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/9999", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetUserPosts(t *testing.T) {
	_, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	now := time.Now().UTC()
	seedPost(t, db, alice, "A1", now.Add(-time.Hour))
	seedPost(t, db, alice, "A2", now)
	seedPost(t, db, bob, "B1", now)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/users/alice/posts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	posts := body["posts"].([]any)
	require.Len(t, posts, 2)
	assert.Equal(t, "A2", posts[0].(map[string]any)["title"])

	// Unknown author is a 404, not an empty list
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/users/ghost/posts", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchPosts(t *testing.T) {
	_, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")

	now := time.Now().UTC()
	seedPost(t, db, alice, "Gopher tricks", now.Add(-time.Hour))
	post := &models.Post{
		Title: "Unrelated", Content: "all about GOPHERS",
		PostedAt: now, AuthorID: alice.ID, Image: "default.jpg",
	}
	require.NoError(t, db.Create(post).Error)
	seedPost(t, db, alice, "Snakes", now.Add(time.Hour))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/search?q=gopher", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 2, body["count"])

	// Empty query returns the whole collection
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/search?q=", nil))
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.EqualValues(t, 3, body["count"])
}

func TestCreatePost(t *testing.T) {
	s, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")

	buf, contentType := multipartBody(t, map[string]string{
		"title":   "Fresh post",
		"content": "Body text",
	}, "pic.png", testutil.TinyPNG(t, 300, 200))

	req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t, s, alice))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Fresh post", body["title"])
	assert.EqualValues(t, alice.ID, body["author_id"])
	assert.NotEqual(t, "default.jpg", body["image"])

	id := uint(body["id"].(float64))
	assert.Equal(t, fmt.Sprintf("/api/posts/%d", id), resp.Header.Get("Location"))
}

func TestCreatePost_NoImageUsesDefault(t *testing.T) {
	s, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")

	buf, contentType := multipartBody(t, map[string]string{
		"title":   "Plain",
		"content": "No image here",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t, s, alice))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "default.jpg", body["image"])
}

func TestCreatePost_Validation(t *testing.T) {
	s, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing title", map[string]string{"content": "text"}},
		{"missing content", map[string]string{"title": "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, contentType := multipartBody(t, tt.fields, "", nil)
			req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", authHeader(t, s, alice))

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreatePost_Unauthenticated(t *testing.T) {
	_, app, _ := newTestServer(t)

	buf, contentType := multipartBody(t, map[string]string{
		"title":   "Nope",
		"content": "No session",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", buf)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	// Anonymous writers are pointed at the login page
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestUpdatePost_OwnerOnly(t *testing.T) {
	s, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	post := seedPost(t, db, alice, "Original", time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))

	buf, contentType := multipartBody(t, map[string]string{
		"title":   "Hijacked",
		"content": "by bob",
	}, "", nil)
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t, s, bob))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Owner succeeds, author and posting time survive
	buf, contentType = multipartBody(t, map[string]string{
		"title":   "Edited",
		"content": "by alice",
	}, "", nil)
	req = httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/posts/%d", post.ID), buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t, s, alice))

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Edited", body["title"])
	assert.EqualValues(t, alice.ID, body["author_id"])

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, "Edited", stored.Title)
	assert.True(t, stored.PostedAt.Equal(post.PostedAt))
}

func TestDeletePost(t *testing.T) {
	s, app, db := newTestServer(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	post := seedPost(t, db, alice, "Doomed", time.Now().UTC())

	// Non-owner is rejected
	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/posts/%d", post.ID), nil)
	req.Header.Set("Authorization", authHeader(t, s, bob))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Owner succeeds and is sent back to the listing
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/posts/%d", post.ID), nil)
	req.Header.Set("Authorization", authHeader(t, s, alice))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "/", body["redirect"])

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAbout(t *testing.T) {
	_, app, _ := newTestServer(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/about", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "About", body["title"])
}
