package imagestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/forum-crawler/pkg/metrics"
)

var fixedNow = time.Date(2025, 9, 4, 8, 7, 6, 123456789, time.UTC)

func newTestMaterializer(t *testing.T) (*Materializer, string) {
	t.Helper()
	base := t.TempDir()
	m := New(Options{BasePath: base, TokenPrefix: "images/boniu", Timeout: 2 * time.Second}, metrics.NewNop(), zaptest.NewLogger(t))
	m.now = func() time.Time { return fixedNow }
	return m, base
}

func imageServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadOnceThenReuse(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, base := newTestMaterializer(t)
	ctx := context.Background()

	first, ok := m.Download(ctx, srv.URL+"/data/attachment/a.png", "")
	require.True(t, ok)
	second, ok := m.Download(ctx, srv.URL+"/data/attachment/a.png", "")
	require.True(t, ok)

	require.Equal(t, "images/boniu/2025/9/4/a.png", first)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), calls.Load())

	data, err := os.ReadFile(filepath.Join(base, "2025", "9", "4", "a.png"))
	require.NoError(t, err)
	require.Equal(t, "PNGDATA", string(data))
	require.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ImagesTotal.WithLabelValues("cached")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ImagesTotal.WithLabelValues("downloaded")))
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, base := newTestMaterializer(t)

	_, ok := m.Download(context.Background(), srv.URL+"/missing.png", "")
	require.False(t, ok)
	_, err := os.Stat(filepath.Join(base, "2025", "9", "4", "missing.png"))
	require.True(t, os.IsNotExist(err))
}

func TestDownloadSynthesizesName(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, _ := newTestMaterializer(t)

	token, ok := m.Download(context.Background(), srv.URL+"/attachment/9?size=large", "")
	require.True(t, ok)
	require.Equal(t, "images/boniu/2025/9/4/image_080706_123456.jpg", token)
}

func TestDownloadExplicitSavePath(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, base := newTestMaterializer(t)
	ctx := context.Background()

	inside := filepath.Join(base, "manual")
	token, ok := m.Download(ctx, srv.URL+"/x.gif", inside)
	require.True(t, ok)
	require.Equal(t, "images/boniu/manual/x.gif", token)

	outside := t.TempDir()
	token, ok = m.Download(ctx, srv.URL+"/y.gif", outside)
	require.True(t, ok)
	require.Equal(t, "images/boniu/2025/9/4/y.gif", token)
	require.FileExists(t, filepath.Join(outside, "y.gif"))
}

func TestDownloadAllKeepsOrderAndDropsFailures(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, _ := newTestMaterializer(t)

	tokens := m.DownloadAll(context.Background(), []string{
		srv.URL + "/b.jpg",
		srv.URL + "/missing.png",
		srv.URL + "/a.jpg",
	}, "")
	require.Equal(t, []string{"images/boniu/2025/9/4/b.jpg", "images/boniu/2025/9/4/a.jpg"}, tokens)
}

func TestDownloadScriptAttachmentsGetDistinctNames(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, _ := newTestMaterializer(t)
	ctx := context.Background()

	first, ok := m.Download(ctx, srv.URL+"/forum.php?mod=attachment&aid=1", "")
	require.True(t, ok)
	second, ok := m.Download(ctx, srv.URL+"/forum.php?mod=attachment&aid=2", "")
	require.True(t, ok)
	again, ok := m.Download(ctx, srv.URL+"/forum.php?mod=attachment&aid=1", "")
	require.True(t, ok)

	require.NotEqual(t, first, second)
	require.Equal(t, first, again)
	require.Regexp(t, `^images/boniu/2025/9/4/forum_[0-9a-f]{12}\.jpg$`, first)
	require.Equal(t, int32(2), calls.Load())
}

func TestDownloadNeverReturnsDirectoryAsImage(t *testing.T) {
	var calls atomic.Int32
	srv := imageServer(t, &calls)
	m, base := newTestMaterializer(t)
	ctx := context.Background()

	token, ok := m.Download(ctx, srv.URL+"/data/attachment/..", "")
	require.True(t, ok)
	require.Equal(t, "images/boniu/2025/9/4/image_080706_123456.jpg", token)
	require.FileExists(t, filepath.Join(base, "2025", "9", "4", "image_080706_123456.jpg"))

	require.NoError(t, os.MkdirAll(filepath.Join(base, "2025", "9", "4", "c.png"), 0o755))
	_, ok = m.Download(ctx, srv.URL+"/c.png", "")
	require.False(t, ok)
	require.Zero(t, testutil.ToFloat64(m.metrics.ImagesTotal.WithLabelValues("cached")))
}

func TestFileName(t *testing.T) {
	require.Equal(t, "a.png", fileName("https://x.test/data/a.png?v=1", fixedNow))
	require.Equal(t, "image_080706_123456.jpg", fileName("https://x.test/data/..", fixedNow))
	require.Equal(t, "image_080706_123456.jpg", fileName("https://x.test/", fixedNow))
	require.Equal(t, "image_080706_123456.jpg", fileName("https://x.test/.hidden", fixedNow))
	require.NotEqual(t,
		fileName("https://x.test/forum.php?aid=1", fixedNow),
		fileName("https://x.test/forum.php?aid=2", fixedNow))
}
