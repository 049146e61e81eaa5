package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge/genbridge/internal/config"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

// fakeStore implements only the dedup index lookups the ingestor touches.
type fakeStore struct {
	store.Store

	mu      sync.Mutex
	records map[string]*models.AssetRecord
	upserts []*models.AssetRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.AssetRecord)}
}

func (f *fakeStore) GetAssetBySourceURL(_ context.Context, sourceURL string) (*models.AssetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[sourceURL]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertAsset(_ context.Context, rec *models.AssetRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.SourceURL] = rec
	f.upserts = append(f.upserts, rec)
	return nil
}

// fakeObjects records every storage interaction in memory.
type fakeObjects struct {
	mu        sync.Mutex
	puts      map[string][]byte
	partSizes []int64
	completed bool
	aborted   bool
	partErr   error // returned from PutPart for parts past the first
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: make(map[string][]byte)}
}

func (f *fakeObjects) PutObject(_ context.Context, key string, body io.Reader, size int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.puts[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) NewMultipart(_ context.Context, key, _ string) (MultipartUpload, error) {
	return &fakeMultipart{objects: f, key: key}, nil
}

type fakeMultipart struct {
	objects *fakeObjects
	key     string
	data    bytes.Buffer
}

func (u *fakeMultipart) PutPart(_ context.Context, partNumber int, body io.Reader, size int64) error {
	if partNumber > 1 && u.objects.partErr != nil {
		return u.objects.partErr
	}
	n, err := io.Copy(&u.data, body)
	if err != nil {
		return err
	}
	u.objects.mu.Lock()
	u.objects.partSizes = append(u.objects.partSizes, n)
	u.objects.mu.Unlock()
	_ = size
	return nil
}

func (u *fakeMultipart) Complete(_ context.Context) error {
	u.objects.mu.Lock()
	defer u.objects.mu.Unlock()
	u.objects.completed = true
	u.objects.puts[u.key] = u.data.Bytes()
	return nil
}

func (u *fakeMultipart) Abort(_ context.Context) error {
	u.objects.mu.Lock()
	defer u.objects.mu.Unlock()
	u.objects.aborted = true
	return nil
}

func testIngestor(t *testing.T, st *fakeStore, objects *fakeObjects, mutate func(*config.StorageConfig)) *Ingestor {
	t.Helper()
	cfg := config.StorageConfig{
		PublicBaseURL: "https://media.genbridge.example",
		PartSize:      8,
		ProxyHosts:    map[string]string{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestor(st, objects, cfg, logger)
}

func TestIngest_KnownLengthSinglePut(t *testing.T) {
	payload := []byte("png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)
	tenant := uuid.New()

	asset, err := ing.Ingest(context.Background(), tenant, models.Asset{Type: models.AssetTypeImage, URL: srv.URL + "/a"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(asset.URL, "https://media.genbridge.example/images/"+tenant.String()+"/"))
	assert.True(t, strings.HasSuffix(asset.URL, ".png"))

	require.Len(t, objects.puts, 1)
	for _, data := range objects.puts {
		assert.Equal(t, payload, data)
	}

	require.Len(t, st.upserts, 1)
	assert.Equal(t, srv.URL+"/a", st.upserts[0].SourceURL)
	assert.Equal(t, int64(len(payload)), st.upserts[0].SizeBytes)
	assert.Equal(t, asset.URL, st.upserts[0].DurableURL)
	// The index row's timestamp is set here; the insert overrides the
	// column default.
	assert.WithinDuration(t, time.Now(), st.upserts[0].CreatedAt, time.Minute)
}

func TestIngest_UnknownLengthStreamsMultipart(t *testing.T) {
	// 12 bytes against an 8-byte part size: two parts of 8 and 4.
	payload := []byte("abcdefghijkl")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.(http.Flusher).Flush() // force chunked encoding, no Content-Length
		w.Write(payload)
	}))
	defer srv.Close()

	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeVideo, URL: srv.URL + "/v"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(asset.URL, ".mp4"))

	assert.Equal(t, []int64{8, 4}, objects.partSizes)
	assert.True(t, objects.completed)
	assert.False(t, objects.aborted)

	require.Len(t, st.upserts, 1)
	assert.Equal(t, int64(len(payload)), st.upserts[0].SizeBytes)
}

func TestIngest_UnknownLengthSmallBodySkipsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	_, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: srv.URL + "/t.png"})
	require.NoError(t, err)

	assert.Empty(t, objects.partSizes, "small body must not open a multipart session")
	require.Len(t, objects.puts, 1)
}

func TestIngest_EmptyBodyStoresZeroByteObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	_, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: srv.URL + "/empty"})
	require.NoError(t, err)

	require.Len(t, objects.puts, 1)
	for _, data := range objects.puts {
		assert.Empty(t, data)
	}
	require.Len(t, st.upserts, 1)
	assert.Zero(t, st.upserts[0].SizeBytes)
}

func TestIngest_MultipartAbortedOnPartFailure(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write(payload)
	}))
	defer srv.Close()

	st := newFakeStore()
	objects := newFakeObjects()
	objects.partErr = errors.New("backend unavailable")
	ing := testIngestor(t, st, objects, nil)

	_, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: srv.URL + "/big.png"})
	require.Error(t, err)
	assert.True(t, objects.aborted, "failed multipart upload must be aborted")
	assert.False(t, objects.completed)
	assert.Empty(t, st.upserts)
}

func TestIngest_RejectsNonHTTPScheme(t *testing.T) {
	ing := testIngestor(t, newFakeStore(), newFakeObjects(), nil)

	_, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: "ftp://host/file.png"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestIngest_AlreadyDurableIsShortCircuited(t *testing.T) {
	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	durable := "https://media.genbridge.example/images/x/20260901/abc.png"
	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: durable})
	require.NoError(t, err)
	assert.Equal(t, durable, asset.URL)
	assert.Empty(t, objects.puts)
	assert.Empty(t, st.upserts)
}

func TestIngest_DedupReusesStoredObject(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	src := srv.URL + "/same.png"
	st := newFakeStore()
	st.records[src] = &models.AssetRecord{
		SourceURL:  src,
		DurableURL: "https://media.genbridge.example/images/old.png",
	}
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: src})
	require.NoError(t, err)
	assert.Equal(t, "https://media.genbridge.example/images/old.png", asset.URL)
	assert.Zero(t, hits, "dedup hit must not download again")
}

func TestIngest_StaleDedupRecordTriggersReingest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	src := srv.URL + "/moved.png"
	st := newFakeStore()
	st.records[src] = &models.AssetRecord{
		SourceURL:  src,
		DurableURL: "https://old-cdn.example/images/gone.png",
	}
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, nil)

	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: src})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.URL, "https://media.genbridge.example/"))
	require.Len(t, objects.puts, 1)
}

func TestIngest_ProxyHostRewrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("proxied"))
	}))
	defer srv.Close()

	srvURL, err := url.Parse(srv.URL)
	require.NoError(t, err)

	st := newFakeStore()
	objects := newFakeObjects()
	ing := testIngestor(t, st, objects, func(cfg *config.StorageConfig) {
		cfg.ProxyHosts = map[string]string{"restricted.example": srvURL.Host}
	})

	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: "http://restricted.example/geo.png"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.URL, "https://media.genbridge.example/"))

	// Dedup index keys on the original URL, not the proxy target.
	require.Len(t, st.upserts, 1)
	assert.Equal(t, "http://restricted.example/geo.png", st.upserts[0].SourceURL)
}

func TestIngest_DownloadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ing := testIngestor(t, newFakeStore(), newFakeObjects(), nil)

	_, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{Type: models.AssetTypeImage, URL: srv.URL + "/x.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestIngest_ThumbnailFailureIsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "thumb") {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("video"))
	}))
	defer srv.Close()

	ing := testIngestor(t, newFakeStore(), newFakeObjects(), nil)

	asset, err := ing.Ingest(context.Background(), uuid.New(), models.Asset{
		Type:         models.AssetTypeVideo,
		URL:          srv.URL + "/v.mp4",
		ThumbnailURL: srv.URL + "/thumb.jpg",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.URL, "https://media.genbridge.example/"))
	assert.Equal(t, srv.URL+"/thumb.jpg", asset.ThumbnailURL, "failed thumbnail keeps the vendor URL")
}

func TestExtensionFor(t *testing.T) {
	mustParse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	assert.Equal(t, ".png", extensionFor("image/png", mustParse("https://h/x")))
	assert.Equal(t, ".jpg", extensionFor("image/jpeg; charset=binary", mustParse("https://h/x")))
	assert.Equal(t, ".mp4", extensionFor("video/mp4", mustParse("https://h/x")))
	assert.Equal(t, ".webp", extensionFor("", mustParse("https://h/pic.webp")))
	assert.Equal(t, ".bin", extensionFor("application/x-mystery", mustParse("https://h/noext")))
}
