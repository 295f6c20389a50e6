package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// PackZip asks the uploader to archive the bundle directory as a zip.
	PackZip = "zip"

	appConfigName = "app-config.json"
	heatmapSubdir = "heatmap"
)

// Uploader stores a staged bundle directory and returns the handle that
// report links point at.
type Uploader interface {
	Upload(ctx context.Context, dir, pack string) (string, error)
}

// Bundle describes a staged and uploaded dashboard bundle.
type Bundle struct {
	ID     string
	Dir    string
	Handle string
	Files  int
	Bytes  int64
}

// Assembler stages dashboard bundles under a scratch directory and uploads them.
type Assembler struct {
	scratchDir   string
	dashboardDir string
	heatmapDir   string
	uploader     Uploader
	retain       bool
	metrics      *Metrics
	logger       zerolog.Logger
	newID        func() string
}

// AssemblerConfig configures NewAssembler.
type AssemblerConfig struct {
	ScratchDir   string
	DashboardDir string
	HeatmapDir   string
	Uploader     Uploader
	// Retain keeps staged directories after upload.
	Retain  bool
	Metrics *Metrics
	Logger  zerolog.Logger
}

// NewAssembler validates cfg and returns an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.ScratchDir == "" {
		return nil, errors.New("scratch dir is required")
	}
	if cfg.DashboardDir == "" || cfg.HeatmapDir == "" {
		return nil, errors.New("template dirs are required")
	}
	if cfg.Uploader == nil {
		return nil, errors.New("uploader is required")
	}

	return &Assembler{
		scratchDir:   cfg.ScratchDir,
		dashboardDir: cfg.DashboardDir,
		heatmapDir:   cfg.HeatmapDir,
		uploader:     cfg.Uploader,
		retain:       cfg.Retain,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		newID:        uuid.NewString,
	}, nil
}

// Assemble stages a fresh bundle for inputRef, uploads it and returns the
// upload handle. The staging directory is removed on return unless the
// assembler retains bundles.
func (a *Assembler) Assemble(ctx context.Context, inputRef string) (bundle Bundle, err error) {
	ctx, span := tracer.Start(ctx, "dashboard.assemble")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	bundle.ID = a.newID()
	bundle.Dir = filepath.Join(a.scratchDir, bundle.ID)
	span.SetAttributes(attribute.String("bundle.id", bundle.ID), attribute.String("input_ref", inputRef))

	log := a.logger.With().Str("bundle", bundle.ID).Logger()

	if err := os.Mkdir(bundle.Dir, 0o755); err != nil {
		return bundle, newError(KindAssetCopy, err, "create bundle dir %s", bundle.Dir)
	}
	if !a.retain {
		defer func() {
			if rmErr := os.RemoveAll(bundle.Dir); rmErr != nil {
				log.Warn().Err(rmErr).Msg("remove bundle dir")
			}
		}()
	}

	if err := a.stage(bundle.Dir, inputRef); err != nil {
		return bundle, err
	}

	bundle.Files, bundle.Bytes, err = measure(bundle.Dir)
	if err != nil {
		log.Warn().Err(err).Msg("could not determine bundle size")
		err = nil
	} else {
		log.Info().Int("files", bundle.Files).Int64("bytes", bundle.Bytes).Msg("bundle staged")
	}

	handle, err := a.upload(ctx, bundle.Dir)
	if err != nil {
		return bundle, err
	}
	bundle.Handle = handle
	log.Info().Str("handle", handle).Msg("bundle uploaded")

	return bundle, nil
}

func (a *Assembler) stage(dir, inputRef string) error {
	if err := copyTree(a.dashboardDir, dir); err != nil {
		return err
	}
	heatmap := filepath.Join(dir, heatmapSubdir)
	if err := copyTree(a.heatmapDir, heatmap); err != nil {
		return err
	}

	for _, target := range []string{dir, heatmap} {
		if err := writeAppConfig(target, inputRef); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) upload(ctx context.Context, dir string) (string, error) {
	ctx, span := tracer.Start(ctx, "dashboard.upload")
	defer span.End()

	start := time.Now()
	handle, err := a.uploader.Upload(ctx, dir, PackZip)
	a.metrics.observeUpload(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", newError(KindUpload, err, "upload bundle %s", filepath.Base(dir))
	}
	if handle == "" {
		err := newError(KindUpload, nil, "upload bundle %s: empty handle returned", filepath.Base(dir))
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return handle, nil
}

// copyTree copies the directory src into dst, creating dst if needed.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return newError(KindAssetCopy, err, "stat template dir %s", src)
	}
	if !info.IsDir() {
		return newError(KindAssetCopy, nil, "template %s is not a directory", src)
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return newError(KindAssetCopy, err, "copy %s to %s", src, dst)
	}
	return nil
}

func writeAppConfig(dir, inputRef string) error {
	data, err := json.MarshalIndent(map[string]string{"upa": inputRef}, "", "    ")
	if err != nil {
		return newError(KindAssetCopy, err, "encode %s", appConfigName)
	}
	path := filepath.Join(dir, appConfigName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newError(KindAssetCopy, err, "write %s", path)
	}
	return nil
}

func measure(dir string) (files int, size int64, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}
