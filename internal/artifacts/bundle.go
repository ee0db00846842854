package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// bundleReader opens files of a remote or local bundle by their path
// relative to the bundle root. size is -1 when unknown.
type bundleReader interface {
	Open(ctx context.Context, name string) (rc io.ReadCloser, size int64, err error)
}

type dirBundle struct {
	dir string
}

func (b dirBundle) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	file, err := os.Open(filepath.Join(b.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, 0, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}

	return file, info.Size(), nil
}

type httpBundle struct {
	base   string
	client *http.Client
}

func (b httpBundle) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	target, err := url.JoinPath(b.base, name)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download of %s failed with status %d", name, resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

// objectGetter is the subset of the s3 client used to read bundles.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Bundle struct {
	client objectGetter
	bucket string
	prefix string
}

func (b s3Bundle) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	key := strings.TrimPrefix(path.Join(b.prefix, name), "/")

	object, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get s3://%s/%s: %w", b.bucket, key, err)
	}

	size := int64(-1)
	if object.ContentLength != nil {
		size = *object.ContentLength
	}

	return object.Body, size, nil
}
