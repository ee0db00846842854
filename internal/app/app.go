package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cozy-creator/cattleid/internal/capture"
	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/encoding"
	"github.com/cozy-creator/cattleid/internal/labels"
	"github.com/cozy-creator/cattleid/internal/model"
	"github.com/cozy-creator/cattleid/internal/session"
	"github.com/cozy-creator/cattleid/pkg/logger"
	"go.uber.org/zap"
)

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	session  *session.Session
	captures *capture.Registry
	runtime  bool

	// Resolved after every option has run.
	newSession func(app *App) (*session.Session, error)
	camera     capture.Device

	closeOnce sync.Once

	Logger *zap.Logger
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

// WithSession installs a prebuilt session instead of the ONNX-backed one.
func WithSession(s *session.Session) OptionFunc {
	return func(app *App) error {
		app.session = s
		return nil
	}
}

func WithCameraDevice(device capture.Device) OptionFunc {
	return func(app *App) error {
		app.camera = device
		return nil
	}
}

// WithRuntime initializes ONNX Runtime and builds a session that loads the
// configured bundles with it.
func WithRuntime() OptionFunc {
	return withSessionFactory(func(app *App) (*session.Session, error) {
		if err := model.InitRuntime(app.config.OnnxRuntimeLib); err != nil {
			return nil, err
		}
		app.runtime = true

		return NewSession(app.config, app.Logger, loadOnnx(app.config))
	})
}

func withSessionFactory(factory func(app *App) (*session.Session, error)) OptionFunc {
	return func(app *App) error {
		app.newSession = factory
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			app.Logger.Error("failed to apply option", zap.Error(err))
			app.Close()
			return nil, err
		}
	}

	if app.session == nil && app.newSession != nil {
		s, err := app.newSession(app)
		if err != nil {
			app.Logger.Error("failed to create session", zap.Error(err))
			app.Close()
			return nil, err
		}
		app.session = s
	}

	if app.session == nil {
		app.Close()
		return nil, errors.New("app needs a session: use WithRuntime or WithSession")
	}

	device := app.camera
	if device == nil && cfg.Camera != nil && cfg.Camera.URL != "" {
		device = capture.NewMJPEGCamera(cfg.Camera.URL, cfg.CameraTimeout())
	}
	app.captures = capture.NewRegistry(device, app.Logger)

	return app, nil
}

// Start begins loading models and labels in the background.
func (app *App) Start() {
	app.Logger.Info("loading models", zap.Int("models", len(app.config.Models)))
	app.session.Start(app.ctx)
}

// Close releases every open camera, closes the models and tears down the
// runtime. It is safe to call more than once.
func (app *App) Close() {
	app.closeOnce.Do(func() {
		app.cancelFunc()

		if app.captures != nil {
			app.captures.CloseAll()
		}

		if app.session != nil {
			if err := app.session.Close(); err != nil {
				app.Logger.Error("failed to close session", zap.Error(err))
			}
		}

		if app.runtime {
			if err := model.DestroyRuntime(); err != nil {
				app.Logger.Error("failed to destroy runtime", zap.Error(err))
			}
		}

		app.Logger.Sync()
	})
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Session() *session.Session {
	return app.session
}

func (app *App) Captures() *capture.Registry {
	return app.captures
}

// NewSession maps the configured models to their encodings and wires the
// label table source.
func NewSession(cfg *config.Config, logger *zap.Logger, load session.LoadModelFunc) (*session.Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	specs := make(map[string]session.ModelSpec, len(cfg.Models))
	for id, m := range cfg.Models {
		variant, err := encoding.Parse(m.Encoding)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", id, err)
		}
		specs[id] = session.ModelSpec{Name: m.Name, Variant: variant}
	}

	source, timeout := "", cfg.LabelsTimeout()
	if cfg.Labels != nil {
		source = cfg.Labels.Source
	}

	return session.New(session.Options{
		Models:    specs,
		LoadModel: load,
		LoadLabels: func(ctx context.Context) labels.Table {
			return labels.Load(ctx, source, timeout, logger)
		},
		InferenceWorkers: cfg.InferenceWorkers,
		Logger:           logger,
	})
}

func loadOnnx(cfg *config.Config) session.LoadModelFunc {
	return func(ctx context.Context, id string) (model.Model, error) {
		m, err := model.LoadOnnx(cfg.ModelDir(id))
		if err != nil {
			return nil, err
		}

		if shape := m.Manifest().InputShape(); !shape.Equal(encoding.InputShape()) {
			m.Close()
			return nil, fmt.Errorf("%w: bundle expects input %s, encoder produces %s", model.ErrLoad, shape, encoding.InputShape())
		}

		return m, nil
	}
}
