package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key, err := ObjectKey("/shipping/o-1/", "image/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "shipping/o-1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	other, err := ObjectKey("shipping/o-1", "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = ObjectKey("x", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	s := LocalStore{Dir: dir, BaseURL: "http://localhost:8080/media/"}
	url, err := s.Put(context.Background(), "shipping/o-1/a.jpg", "image/jpeg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/shipping/o-1/a.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "shipping", "o-1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestLocalStoreRejects(t *testing.T) {
	s := LocalStore{Dir: t.TempDir(), BaseURL: "http://x"}
	ctx := context.Background()
	for _, key := range []string{"", "/abs.png", "../up.png", "a/../../b.png", `a\b.png`} {
		_, err := s.Put(ctx, key, "image/png", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	_, err := s.Put(ctx, "a.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	big := io.LimitReader(zeros{}, MaxUploadBytes+1)
	_, err = s.Put(ctx, "big.png", "image/png", big)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, statErr := os.Stat(filepath.Join(s.Dir, "big.png"))
	assert.True(t, os.IsNotExist(statErr))
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePut(t *testing.T) {
	fake := &fakeS3{}
	s := &S3Store{client: fake, bucket: "proofs", publicURL: "https://cdn.example.com"}
	url, err := s.Put(context.Background(), "designs/q-1/x.webp", "image/webp", bytes.NewReader([]byte("img")))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/designs/q-1/x.webp", url)
	assert.Equal(t, "proofs", *fake.in.Bucket)
	assert.Equal(t, "image/webp", *fake.in.ContentType)
	assert.Equal(t, "img", string(fake.body))
}

func TestS3StorePutError(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1", Bucket: "b", Endpoint: "http://127.0.0.1:9000", AccessKeyID: "a", SecretAccessKey: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/b", s.publicURL)

	s.client = &fakeS3{err: errors.New("boom")}
	_, err = s.Put(context.Background(), "k.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "boom")
}
