package service

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/models"

	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultImageName is the placeholder used for posts without an upload.
	DefaultImageName = "default.jpg"

	// ThumbnailMaxSize is the bounding box every stored post image is scaled
	// into. Images already inside the box are left untouched.
	ThumbnailMaxSize = 150

	DefaultImageMaxUploadSizeMB = 10
	JPEGQuality                 = 82
)

// SaveImageInput is a raw upload destined for a post.
type SaveImageInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ImageService stores post images in the media directory and scales them
// into the thumbnail bounding box after every write.
type ImageService struct {
	mediaDir           string
	maxUploadSizeBytes int64
}

// NewImageService creates the media directory (and a placeholder default.jpg
// if none exists) and returns the service.
func NewImageService(cfg *config.Config) (*ImageService, error) {
	mediaDir := "media"
	if cfg != nil && cfg.MediaDir != "" {
		mediaDir = cfg.MediaDir
	}

	s := &ImageService{
		mediaDir:           mediaDir,
		maxUploadSizeBytes: DefaultImageMaxUploadSizeMB * 1024 * 1024,
	}
	if err := s.ensureMediaDir(); err != nil {
		return nil, err
	}
	return s, nil
}

// MediaDir returns the directory post images are served from.
func (s *ImageService) MediaDir() string {
	return s.mediaDir
}

func (s *ImageService) ensureMediaDir() error {
	if err := os.MkdirAll(s.mediaDir, 0o750); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	placeholder := filepath.Join(s.mediaDir, DefaultImageName)
	if _, err := os.Stat(placeholder); err == nil {
		return nil
	}

	// Write a plain gray placeholder so fresh deployments always have
	// something to serve for posts without an upload.
	img := image.NewRGBA(image.Rect(0, 0, ThumbnailMaxSize, ThumbnailMaxSize))
	for i := range img.Pix {
		img.Pix[i] = 0xcc
	}
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return err
	}
	return os.WriteFile(placeholder, buf.Bytes(), 0o600)
}

// Save validates and stores an upload under a fresh random filename, then
// regenerates its thumbnail. The returned name is what gets stored on the
// post record. A thumbnail failure is returned alongside the valid name so
// the caller can log it without discarding the stored image.
func (s *ImageService) Save(in SaveImageInput) (string, error) {
	if len(in.Content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return "", models.NewValidationError("Invalid image type")
	}

	_, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}
	ext := formatExtension(format)
	if ext == "" {
		return "", models.NewValidationError("Unsupported image format")
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.mediaDir, name)
	if err := os.WriteFile(path, in.Content, 0o600); err != nil {
		return "", models.NewInternalError(err)
	}

	if err := s.Thumbnail(name); err != nil {
		// The original image is stored and servable; the caller decides
		// whether the failed downscale is worth surfacing.
		return name, err
	}
	return name, nil
}

// Thumbnail scales the named image into the 150x150 bounding box in place,
// preserving aspect ratio and the original encoding. Images already inside
// the box are left as-is. The placeholder is never rewritten.
func (s *ImageService) Thumbnail(name string) error {
	if name == "" || name == DefaultImageName {
		return nil
	}

	path := filepath.Join(s.mediaDir, filepath.Base(name))
	raw, err := os.ReadFile(path) // #nosec G304: base name only, rooted in mediaDir
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", name, err)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode image %s: %w", name, err)
	}

	b := src.Bounds()
	if b.Dx() <= ThumbnailMaxSize && b.Dy() <= ThumbnailMaxSize {
		return nil
	}

	resized := resizeToFit(src, ThumbnailMaxSize, ThumbnailMaxSize)

	buf := bytes.NewBuffer(nil)
	switch format {
	case "jpeg":
		err = jpeg.Encode(buf, resized, &jpeg.Options{Quality: JPEGQuality})
	case "png":
		err = png.Encode(buf, resized)
	case "gif":
		err = gif.Encode(buf, resized, nil)
	default:
		return fmt.Errorf("unsupported image format %q for %s", format, name)
	}
	if err != nil {
		return fmt.Errorf("failed to encode thumbnail for %s: %w", name, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write thumbnail for %s: %w", name, err)
	}
	return nil
}

// Remove deletes a stored image. The shared placeholder is never removed.
func (s *ImageService) Remove(name string) {
	if name == "" || name == DefaultImageName {
		return
	}
	_ = os.Remove(filepath.Join(s.mediaDir, filepath.Base(name)))
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func formatExtension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return ".jpg"
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	default:
		return ""
	}
}
