package workers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"landscout/httputil"
	"landscout/models"
	"landscout/services"
)

const maxMediaBytes = 50 * 1024 * 1024

// Uploader stores bytes in S3-compatible storage
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// existenceChecker is implemented by uploaders that can tell whether a key is stored.
type existenceChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// MediaWorker downloads listing images, hashes them, and uploads them to object storage
type MediaWorker struct {
	media      *services.MediaService
	httpClient *http.Client
	uploader   Uploader
	limiter    *rate.Limiter
	triggerCh  chan struct{}
	logFunc    LogFunc
}

// NewMediaWorker creates a media worker downloading at most perSecond images per second.
func NewMediaWorker(media *services.MediaService, uploader Uploader, httpClient *http.Client, perSecond float64) *MediaWorker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if uploader == nil {
		uploader = NewNoOpUploader()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &MediaWorker{
		media:      media,
		httpClient: httpClient,
		uploader:   uploader,
		limiter:    rate.NewLimiter(limit, 1),
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *MediaWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *MediaWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// MediaProcessResult contains the outcome of processing a media item
type MediaProcessResult struct {
	MediaID     uuid.UUID
	S3Key       string
	ContentHash string
	Size        int64
	Skipped     bool // already stored under the same key
	Error       error
}

// Process downloads a media file, computes its hash, and uploads it
func (w *MediaWorker) Process(ctx context.Context, media *models.Media) MediaProcessResult {
	result := MediaProcessResult{MediaID: media.ID}

	if err := w.limiter.Wait(ctx); err != nil {
		result.Error = err
		return result
	}

	req, err := http.NewRequestWithContext(ctx, "GET", media.OriginalURL, nil)
	if err != nil {
		result.Error = fmt.Errorf("create request: %w", err)
		return result
	}
	httputil.SetMobileHeaders(req, "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("download: %w", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("download status: %d", resp.StatusCode)
		return result
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		result.Error = fmt.Errorf("read body: %w", err)
		return result
	}
	if len(data) == 0 {
		result.Error = fmt.Errorf("empty body")
		return result
	}
	result.Size = int64(len(data))

	hash := sha256.Sum256(data)
	result.ContentHash = hex.EncodeToString(hash[:])

	contentType := resp.Header.Get("Content-Type")
	ext := guessExtension(media.OriginalURL, contentType)
	result.S3Key = ObjectKey(media.ListingID, result.ContentHash, ext)

	if checker, ok := w.uploader.(existenceChecker); ok {
		exists, err := checker.Exists(ctx, result.S3Key)
		if err != nil {
			log.Printf("Media worker: exists check for %s: %v", result.S3Key, err)
		} else if exists {
			result.Skipped = true
			return result
		}
	}

	if contentType == "" {
		contentType = "image/jpeg"
	}
	if err := w.uploader.Upload(ctx, result.S3Key, bytes.NewReader(data), contentType); err != nil {
		result.Error = fmt.Errorf("upload: %w", err)
		return result
	}

	return result
}

// ObjectKey is the storage key of an image: listings/{listing}/{hash prefix}{ext}.
func ObjectKey(listingID, contentHash, ext string) string {
	if len(contentHash) > 16 {
		contentHash = contentHash[:16]
	}
	return fmt.Sprintf("listings/%s/%s%s", listingID, contentHash, ext)
}

// guessExtension determines file extension from URL or content-type
func guessExtension(rawURL, contentType string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext != "" && isImageExt(ext) {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}

	switch strings.TrimSpace(strings.Split(contentType, ";")[0]) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}

// Run starts the media worker loop
func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Media worker triggered manually")
			w.ProcessBatch(ctx, batchSize)
		}
	}
}

// ProcessBatch mirrors up to batchSize pending images and returns how many succeeded
// and how many failed.
func (w *MediaWorker) ProcessBatch(ctx context.Context, batchSize int) (processed, failed int) {
	media, err := w.media.GetPending(batchSize)
	if err != nil {
		log.Printf("Media worker: query error: %v", err)
		return 0, 0
	}

	if len(media) == 0 {
		return 0, 0
	}

	log.Printf("Media worker: processing %d items", len(media))

	for i := range media {
		if ctx.Err() != nil {
			break
		}
		m := &media[i]

		result := w.Process(ctx, m)
		if result.Error != nil {
			log.Printf("Media worker: failed %s: %v", m.OriginalURL, result.Error)
			failed++
			if err := w.media.MarkFailed(m); err != nil {
				log.Printf("Media worker: failed to record attempt for %s: %v", m.ID, err)
			}
			continue
		}

		if err := w.media.MarkUploaded(m, result.S3Key, result.ContentHash); err != nil {
			log.Printf("Media worker: failed to update %s: %v", m.ID, err)
			failed++
			continue
		}

		processed++
		if result.Skipped {
			log.Printf("Media worker: %s already stored as %s", m.ID, result.S3Key)
		} else {
			log.Printf("Media worker: uploaded %s -> %s (%d bytes)", m.ID, result.S3Key, result.Size)
		}
	}

	if processed > 0 || failed > 0 {
		msg := fmt.Sprintf("processed %d, failed %d", processed, failed)
		log.Printf("Media worker: %s", msg)
		w.logFunc(models.LogLevelInfo, "media", msg)
	}
	return processed, failed
}

// NoOpUploader is a placeholder that skips actual S3 upload
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	io.Copy(io.Discard, data)
	return nil
}

// NewNoOpUploader creates an uploader that does nothing (for testing)
func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
