package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

var (
	// ErrUnsupportedScheme means the source URL is not plain http(s) and
	// cannot be fetched.
	ErrUnsupportedScheme = errors.New("unsupported source URL scheme")
)

// extByContentType maps the media types vendors actually serve. Anything
// else falls back to the URL path extension, then ".bin".
var extByContentType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// Ingestor downloads vendor media and re-hosts it on durable storage. Each
// ingested URL is recorded in a dedup index so repeated results for the same
// vendor URL reuse the stored object.
type Ingestor struct {
	store   store.Store
	objects ObjectStore
	client  *http.Client
	cfg     config.StorageConfig
	logger  *slog.Logger
}

func NewIngestor(st store.Store, objects ObjectStore, cfg config.StorageConfig, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:   st,
		objects: objects,
		client:  &http.Client{Timeout: 5 * time.Minute},
		cfg:     cfg,
		logger:  logger,
	}
}

// Ingest re-hosts one asset and returns it with the durable URL swapped in.
// The thumbnail is re-hosted best effort: a thumbnail failure keeps the
// original thumbnail URL and does not fail the asset.
func (i *Ingestor) Ingest(ctx context.Context, tenantID uuid.UUID, asset models.Asset) (models.Asset, error) {
	durable, err := i.ingestURL(ctx, tenantID, asset.Type, asset.URL)
	if err != nil {
		return asset, err
	}
	asset.URL = durable

	if asset.ThumbnailURL != "" {
		thumb, err := i.ingestURL(ctx, tenantID, models.AssetTypeImage, asset.ThumbnailURL)
		if err != nil {
			i.logger.Warn("thumbnail ingestion failed, keeping vendor URL",
				"tenant_id", tenantID, "url", asset.ThumbnailURL, "error", err)
		} else {
			asset.ThumbnailURL = thumb
		}
	}

	return asset, nil
}

func (i *Ingestor) ingestURL(ctx context.Context, tenantID uuid.UUID, assetType models.AssetType, sourceURL string) (string, error) {
	src, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing source URL: %w", err)
	}
	if src.Scheme != "http" && src.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, src.Scheme)
	}

	// Already durable, nothing to do.
	if strings.HasPrefix(sourceURL, i.publicBase()) {
		return sourceURL, nil
	}

	// Dedup hit: reuse the stored object unless the recorded URL predates
	// the current public base (storage was moved).
	if rec, err := i.store.GetAssetBySourceURL(ctx, sourceURL); err == nil {
		if strings.HasPrefix(rec.DurableURL, i.publicBase()) {
			return rec.DurableURL, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("checking dedup index: %w", err)
	}

	resp, err := i.fetch(ctx, src)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("downloading %s: unexpected status %d", src.Host, resp.StatusCode)
	}

	key := i.objectKey(tenantID, assetType, resp.Header.Get("Content-Type"), src)
	contentType := responseContentType(resp)

	size, err := i.upload(ctx, key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return "", err
	}

	durableURL := i.publicBase() + "/" + key
	rec := &models.AssetRecord{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SourceURL:  sourceURL,
		StorageKey: key,
		DurableURL: durableURL,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.store.UpsertAsset(ctx, rec); err != nil {
		// The object is stored and usable; a missing index row only costs
		// a duplicate upload next time.
		i.logger.Warn("recording asset in dedup index failed",
			"tenant_id", tenantID, "key", key, "error", err)
	}

	i.logger.Info("asset ingested",
		"tenant_id", tenantID, "key", key, "size_bytes", size, "source_host", src.Host)

	return durableURL, nil
}

// fetch downloads the source, routing through a configured proxy host when
// the source host is geo-restricted from this network.
func (i *Ingestor) fetch(ctx context.Context, src *url.URL) (*http.Response, error) {
	target := *src
	if proxy, ok := i.cfg.ProxyHosts[src.Host]; ok {
		target.Host = proxy
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", target.Host, err)
	}
	return resp, nil
}

// upload writes the body to storage. Known-length bodies go up in one
// request; unknown-length bodies are streamed in part-sized chunks through a
// multipart session so the whole payload never sits in memory.
func (i *Ingestor) upload(ctx context.Context, key, contentType string, body io.Reader, length int64) (int64, error) {
	if length >= 0 {
		if err := i.objects.PutObject(ctx, key, body, length, contentType); err != nil {
			return 0, err
		}
		return length, nil
	}
	return i.uploadMultipart(ctx, key, contentType, body)
}

func (i *Ingestor) uploadMultipart(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	buf := make([]byte, i.cfg.PartSize)

	// If the whole body fits in one part (including an empty body), skip
	// the multipart session entirely.
	n, err := io.ReadFull(body, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if putErr := i.objects.PutObject(ctx, key, bytes.NewReader(buf[:n]), int64(n), contentType); putErr != nil {
			return 0, putErr
		}
		return int64(n), nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading download body: %w", err)
	}

	upload, err := i.objects.NewMultipart(ctx, key, contentType)
	if err != nil {
		return 0, err
	}

	total, uploadErr := streamParts(ctx, upload, buf, n, body)
	if uploadErr != nil {
		if abortErr := upload.Abort(ctx); abortErr != nil {
			i.logger.Warn("aborting multipart upload failed", "key", key, "error", abortErr)
		}
		return 0, uploadErr
	}

	if err := upload.Complete(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// streamParts uploads the already-filled first part, then drains the body a
// part at a time.
func streamParts(ctx context.Context, upload MultipartUpload, buf []byte, firstLen int, body io.Reader) (int64, error) {
	if err := upload.PutPart(ctx, 1, bytes.NewReader(buf[:firstLen]), int64(firstLen)); err != nil {
		return 0, err
	}
	total := int64(firstLen)

	for partNumber := 2; ; partNumber++ {
		n, err := io.ReadFull(body, buf)
		if n > 0 {
			if putErr := upload.PutPart(ctx, partNumber, bytes.NewReader(buf[:n]), int64(n)); putErr != nil {
				return 0, putErr
			}
			total += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading download body: %w", err)
		}
	}
}

// objectKey builds {type}s/{tenant}/{yyyymmdd}/{uuid}{ext}. The date segment
// keeps listings browsable and retention policies trivial.
func (i *Ingestor) objectKey(tenantID uuid.UUID, assetType models.AssetType, contentType string, src *url.URL) string {
	return fmt.Sprintf("%ss/%s/%s/%s%s",
		assetType,
		tenantID,
		time.Now().UTC().Format("20060102"),
		uuid.NewString(),
		extensionFor(contentType, src),
	)
}

func extensionFor(contentType string, src *url.URL) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extByContentType[mt]; ok {
			return ext
		}
	}
	if ext := path.Ext(src.Path); ext != "" {
		return ext
	}
	return ".bin"
}

func responseContentType(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (i *Ingestor) publicBase() string {
	return strings.TrimRight(i.cfg.PublicBaseURL, "/")
}
