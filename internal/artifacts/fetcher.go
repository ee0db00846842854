// Package artifacts stages model bundles into the local models directory
// from the hub, an s3 bucket, a plain http server or another directory.
package artifacts

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/model"
	"github.com/cozy-creator/cattleid/internal/utils/hashutil"
	"github.com/cozy-creator/hf-hub/hub"
	"github.com/gammazero/workerpool"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
	"lukechampine.com/blake3"
)

var (
	ErrNoSource     = errors.New("model has no source configured")
	ErrUnknownModel = errors.New("unknown model")
)

type Fetcher struct {
	cfg    *config.Config
	logger *zap.Logger

	httpClient *http.Client
	output     io.Writer

	hubOnce   sync.Once
	hubClient *hub.Client

	s3Once   sync.Once
	s3Client objectGetter
	s3Err    error
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithProgress draws download progress bars on w.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) { f.output = w }
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = client }
}

func withS3Client(client objectGetter) Option {
	return func(f *Fetcher) {
		f.s3Once.Do(func() { f.s3Client = client })
	}
}

func NewFetcher(cfg *config.Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:        cfg,
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 0},
		output:     io.Discard,
	}

	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("artifacts")

	return f
}

// FetchAll stages every listed model concurrently. An empty ids list
// means every configured model that has a source.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		for id, m := range f.cfg.Models {
			if m.Source != "" {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
	}

	if len(ids) == 0 {
		f.logger.Warn("no model sources configured, nothing to fetch")
		return nil
	}

	progress := mpb.NewWithContext(ctx,
		mpb.WithOutput(f.output),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	var (
		mu   sync.Mutex
		errs []error
	)

	pool := workerpool.New(len(ids))
	for _, id := range ids {
		id := id
		pool.Submit(func() {
			if _, err := f.fetch(ctx, id, progress); err != nil {
				f.logger.Error("failed to fetch model", zap.String("model", id), zap.Error(err))

				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				mu.Unlock()
			}
		})
	}

	pool.StopWait()
	progress.Wait()

	return errors.Join(errs...)
}

// Fetch stages a single model and returns its bundle directory.
func (f *Fetcher) Fetch(ctx context.Context, id string) (string, error) {
	progress := mpb.NewWithContext(ctx, mpb.WithOutput(f.output), mpb.WithWidth(60))
	defer progress.Wait()

	return f.fetch(ctx, id, progress)
}

func (f *Fetcher) fetch(ctx context.Context, id string, progress *mpb.Progress) (string, error) {
	id = config.NormalizeModelID(id)

	modelCfg, ok := f.cfg.Models[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	if modelCfg.Source == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSource, id)
	}

	source, err := ParseSource(modelCfg.Source)
	if err != nil {
		return "", err
	}

	f.logger.Info("fetching model",
		zap.String("model", id),
		zap.String("source_type", string(source.Type)),
		zap.String("location", source.Location),
	)

	bundle, err := f.open(ctx, source)
	if err != nil {
		return "", err
	}

	dest := f.cfg.ModelDir(id)
	if err := f.stage(ctx, bundle, dest, progress); err != nil {
		return "", err
	}

	f.logger.Info("model staged", zap.String("model", id), zap.String("dir", dest))
	return dest, nil
}

func (f *Fetcher) open(ctx context.Context, source *Source) (bundleReader, error) {
	switch source.Type {
	case SourceTypeFile:
		dir, err := filepath.Abs(source.Location)
		if err != nil {
			return nil, err
		}
		return dirBundle{dir: dir}, nil

	case SourceTypeDirect:
		return httpBundle{base: source.Location, client: f.httpClient}, nil

	case SourceTypeS3:
		client, err := f.s3()
		if err != nil {
			return nil, err
		}
		return s3Bundle{client: client, bucket: source.Bucket, prefix: source.Prefix}, nil

	case SourceTypeHuggingface:
		dir, err := f.downloadHuggingFace(source)
		if err != nil {
			return nil, err
		}
		return dirBundle{dir: dir}, nil

	default:
		return nil, fmt.Errorf("unsupported source type: %s", source.Type)
	}
}

func (f *Fetcher) downloadHuggingFace(source *Source) (string, error) {
	f.hubOnce.Do(func() { f.hubClient = hub.DefaultClient() })

	params := hub.DownloadParams{
		Repo:      hub.NewRepo(source.Repo),
		SubFolder: source.SubFolder,
	}
	if _, err := f.hubClient.Download(&params); err != nil {
		return "", fmt.Errorf("failed to download model from HuggingFace: %w", err)
	}

	storageFolder := filepath.Join(f.hubClient.CacheDir, repoFolderName(source.Repo))
	commitHash, err := os.ReadFile(filepath.Join(storageFolder, "refs", "main"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve snapshot for %s: %w", source.Repo, err)
	}

	return filepath.Join(storageFolder, "snapshots", strings.TrimSpace(string(commitHash)), source.SubFolder), nil
}

func (f *Fetcher) s3() (objectGetter, error) {
	f.s3Once.Do(func() {
		cfg := f.cfg.S3
		if cfg == nil {
			f.s3Err = fmt.Errorf("s3 config is not set")
			return
		}

		region := cfg.Region
		if region == "" {
			region = "auto"
		}

		loadOpts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(region)}
		if cfg.AccessKey != "" {
			provider := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
			loadOpts = append(loadOpts, awsConfig.WithCredentialsProvider(provider))
		}

		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			f.s3Err = err
			return
		}

		f.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.EndpointUrl != "" {
				o.BaseEndpoint = &cfg.EndpointUrl
				o.UsePathStyle = true
			}
		})
	})

	return f.s3Client, f.s3Err
}

// stage copies a bundle into dest. Files land under a .tmp name and are
// renamed once complete and verified; the manifest is written last so a
// partial bundle never looks loadable.
func (f *Fetcher) stage(ctx context.Context, bundle bundleReader, dest string, progress *mpb.Progress) error {
	raw, err := readManifest(ctx, bundle)
	if err != nil {
		return err
	}

	manifest, err := model.DecodeManifest(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	if staged(dest, raw, manifest) {
		f.logger.Info("bundle already staged", zap.String("dir", dest))
		return nil
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	for _, shard := range manifest.Files() {
		if err := f.download(ctx, bundle, shard, dest, progress); err != nil {
			return err
		}
	}

	return writeFile(filepath.Join(dest, model.ManifestFile), raw)
}

func (f *Fetcher) download(ctx context.Context, bundle bundleReader, shard model.Shard, dest string, progress *mpb.Progress) error {
	rc, size, err := bundle.Open(ctx, shard.Path)
	if err != nil {
		return err
	}
	defer rc.Close()

	destPath := filepath.Join(dest, filepath.FromSlash(shard.Path))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	total := size
	if total < 0 {
		total = 0
	}

	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(shard.Path, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	hasher := blake3.New(32, nil)
	written, err := io.Copy(io.MultiWriter(file, hasher), bar.ProxyReader(rc))
	closeErr := file.Close()

	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("download size mismatch: expected %d, got %d", size, written)
	}
	if err == nil && shard.Blake3 != "" && !hashutil.EqualHex(hex.EncodeToString(hasher.Sum(nil)), shard.Blake3) {
		err = fmt.Errorf("%w: %s", model.ErrShardMismatch, shard.Path)
	}

	if err != nil {
		bar.Abort(false)
		os.Remove(tmpPath)
		return fmt.Errorf("failed to download %s: %w", shard.Path, err)
	}

	bar.SetTotal(written, true)

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	return nil
}

func readManifest(ctx context.Context, bundle bundleReader) ([]byte, error) {
	rc, _, err := bundle.Open(ctx, model.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, 1<<20))
}

// staged reports whether dest already holds this exact manifest with every
// file present and verified.
func staged(dest string, raw []byte, manifest *model.Manifest) bool {
	existing, err := os.ReadFile(filepath.Join(dest, model.ManifestFile))
	if err != nil || !bytes.Equal(existing, raw) {
		return false
	}

	return manifest.Verify(dest) == nil
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
