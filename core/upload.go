package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MaxUploadImages = 3
	MaxImageBytes   = 5 * 1024 * 1024
	MaxUploadBytes  = 15 * 1024 * 1024
)

// AllowedImageTypes are the mime types accepted from the shortcut.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var dataURLMime = regexp.MustCompile(`^data:([^;,]+)`)

// UploadRejection is a validation failure shown verbatim to the shortcut user.
type UploadRejection struct {
	Message string
}

func (r *UploadRejection) Error() string { return r.Message }

func reject(format string, args ...any) error {
	return &UploadRejection{Message: fmt.Sprintf(format, args...)}
}

// DecodedImage is one base64 payload turned into bytes.
type DecodedImage struct {
	Index     int
	Data      []byte
	MimeType  string
	Extension string
}

// DecodeBase64Image accepts raw base64 or a data URL. Without a data-URL header the
// type is sniffed from the bytes, defaulting to jpeg.
func DecodeBase64Image(raw string, index int) (DecodedImage, error) {
	payload := raw
	mime := ""
	if strings.HasPrefix(raw, "data:") {
		header, data, found := strings.Cut(raw, ",")
		if !found {
			return DecodedImage{}, fmt.Errorf("data url without payload")
		}
		payload = data
		if m := dataURLMime.FindStringSubmatch(header); m != nil {
			mime = strings.ToLower(m[1])
		}
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return DecodedImage{}, fmt.Errorf("decode base64: %w", err)
		}
	}
	if len(data) == 0 {
		return DecodedImage{}, fmt.Errorf("empty image")
	}

	if mime == "" {
		mime = "image/jpeg"
		if detected := mimetype.Detect(data).String(); strings.HasPrefix(detected, "image/") {
			mime = detected
		}
	}

	return DecodedImage{Index: index, Data: data, MimeType: mime, Extension: extensionFor(mime)}, nil
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "png"):
		return ".png"
	case strings.Contains(mime, "gif"):
		return ".gif"
	case strings.Contains(mime, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

// UploadedImage describes one hosted image in the shortcut response.
type UploadedImage struct {
	PublicID         string `json:"public_id"`
	SecureURL        string `json:"secure_url"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int    `json:"file_size"`
}

// UploadTracker records which images an email uploaded.
type UploadTracker interface {
	Track(ctx context.Context, publicIDs []string, email string) error
}

// UploadService validates shortcut images and pushes them to the image store.
type UploadService struct {
	store   ImageStore
	tracker UploadTracker
	folder  string
	now     Clock
	log     *zap.Logger
}

func NewUploadService(store ImageStore, tracker UploadTracker, folder string, now Clock, log *zap.Logger) *UploadService {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadService{store: store, tracker: tracker, folder: folder, now: now, log: log}
}

// CheckCount rejects an empty or oversized selection before any auth work is done.
func CheckCount(n int) error {
	if n == 0 {
		return reject("Please select at least one image")
	}
	if n > MaxUploadImages {
		return reject("Maximum %d images allowed. You selected %d.", MaxUploadImages, n)
	}
	return nil
}

// Prepare decodes and validates every image; the first problem is returned as an UploadRejection.
func (s *UploadService) Prepare(raw []string) ([]DecodedImage, error) {
	if err := CheckCount(len(raw)); err != nil {
		return nil, err
	}
	images := make([]DecodedImage, 0, len(raw))
	total := 0
	for i, r := range raw {
		img, err := DecodeBase64Image(r, i)
		if err != nil {
			return nil, reject("Failed to process image %d. Please ensure it's a valid image.", i+1)
		}
		if len(img.Data) > MaxImageBytes {
			return nil, reject("Image %d is too large. Maximum size is 5MB per image.", i+1)
		}
		if !slices.Contains(AllowedImageTypes, img.MimeType) {
			return nil, reject("Image %d format not supported. Please use JPG, PNG, or WebP images.", i+1)
		}
		total += len(img.Data)
		images = append(images, img)
	}
	if total > MaxUploadBytes {
		return nil, reject("Total file size too large. Maximum is 15MB for all images combined.")
	}
	return images, nil
}

// Upload stores all images in parallel; any failure fails the whole batch.
func (s *UploadService) Upload(ctx context.Context, email string, images []DecodedImage) ([]UploadedImage, error) {
	results := make([]UploadedImage, len(images))
	g, gctx := errgroup.WithContext(ctx)
	at := s.now()
	batch := uuid.NewString()
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			publicID := path.Join(s.folder, uploadObjectName(at, batch, img.Index, img.Extension))
			u, err := s.store.Put(gctx, publicID, img.MimeType, img.Data)
			if err != nil {
				return err
			}
			s.log.Info("upload successful", zap.String("public_id", publicID))
			results[i] = UploadedImage{
				PublicID:         publicID,
				SecureURL:        u,
				OriginalFilename: fmt.Sprintf("image-%d%s", img.Index, img.Extension),
				FileSize:         len(img.Data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.PublicID
	}
	// Best-effort: the images are hosted; a missing tracking row must not fail the upload.
	bestEffort(s.log, "store tracking data", s.tracker.Track(ctx, ids, email), zap.String("email", email))
	return results, nil
}

// UploadedMessage is the success text shown by the shortcut.
func UploadedMessage(n int) string {
	plural := ""
	if n > 1 {
		plural = "s"
	}
	return fmt.Sprintf("Successfully uploaded %d image%s! Your images are ready to use.", n, plural)
}
