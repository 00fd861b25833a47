package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/errors"
)

func locatorOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestParseLocator(t *testing.T) {
	good := locatorOf([]byte("x"))
	h, err := ParseLocator(good)
	require.NoError(t, err)
	require.Len(t, h, 64)

	for _, bad := range []string{
		"",
		"sha256:",
		"sha256:../../etc/passwd",
		"md5:" + strings.Repeat("a", 64),
		"sha256:" + strings.Repeat("A", 64),
		"sha256:" + strings.Repeat("a", 63),
	} {
		_, err := ParseLocator(bad)
		require.True(t, errors.Is(err, errors.ErrInvalidRequest), "locator %q", bad)
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	data := []byte("pixels")
	loc := locatorOf(data)

	_, err := s.Resolve(ctx, loc)
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, s.Put(ctx, loc, ContentTypePNG, data))
	require.NoError(t, s.Put(ctx, loc, ContentTypePNG, data), "put is idempotent")

	rc, err := s.Resolve(ctx, loc)
	require.NoError(t, err)
	require.Equal(t, data, readAll(t, rc))

	err = s.Put(ctx, "sha256:nope", ContentTypePNG, data)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	require.Equal(t, 1, m.Len())
}

func TestMemory_CopiesInput(t *testing.T) {
	m := NewMemory()
	data := []byte("abc")
	loc := locatorOf(data)
	require.NoError(t, m.Put(context.Background(), loc, ContentTypePNG, data))
	data[0] = 'z'

	rc, err := m.Resolve(context.Background(), loc)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), readAll(t, rc))
}

func TestFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "assets")
	fs, err := NewFilesystem(root)
	require.NoError(t, err)
	exerciseStore(t, fs)

	loc := locatorOf([]byte("pixels"))
	h, _ := ParseLocator(loc)
	_, err = os.Stat(filepath.Join(root, "sha256", h+".png"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "sha256"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestFilesystem_Cancelled(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = fs.Put(ctx, locatorOf([]byte("a")), ContentTypePNG, []byte("a"))
	require.True(t, errors.Is(err, errors.ErrCancelled))
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = b
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	s := NewS3(fake, "bucket", "decks")
	exerciseStore(t, s)

	h, _ := ParseLocator(locatorOf([]byte("pixels")))
	key := "decks/sha256/" + h + ".png"
	require.Contains(t, fake.objects, "bucket/"+key)
	require.Equal(t, ContentTypePNG, fake.types[key])
}

func TestS3_BackendFailure(t *testing.T) {
	s := NewS3(&fakeS3{fail: io.ErrUnexpectedEOF}, "bucket", "")
	_, err := s.Resolve(context.Background(), locatorOf([]byte("a")))
	require.True(t, errors.Is(err, errors.ErrAssetUnavailable))
	err = s.Put(context.Background(), locatorOf([]byte("a")), ContentTypePNG, []byte("a"))
	require.True(t, errors.Is(err, errors.ErrAssetUnavailable))
}

func TestOpen(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, &config.Config{AssetBackend: config.BackendMemory}, base)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	s, err = Open(ctx, &config.Config{}, base)
	require.NoError(t, err)
	fs, ok := s.(*Filesystem)
	require.True(t, ok)
	require.Equal(t, filepath.Join(base, "assets"), fs.Root())

	_, err = Open(ctx, &config.Config{AssetBackend: config.BackendS3}, base)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Open(ctx, &config.Config{AssetBackend: "ftp"}, base)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEncodePNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	data, err := EncodePNG(img)
	require.NoError(t, err)
	back, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), back.Bounds())
	require.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 128}, color.NRGBAModel.Convert(back.At(1, 1)))
}
