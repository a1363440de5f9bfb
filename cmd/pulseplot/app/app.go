package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/canstralian/rf-test-harness/internal/storage"
)

// Run renders the pulse-timing diagram of one recorded run.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.New(config.DBPath)
	defer store.Close()

	signals, err := store.Signals(ctx, config.RunID)
	if err != nil {
		return fmt.Errorf("reading signals: %w", err)
	}

	// Only pulse-timed captures can be drawn as lanes.
	var plottable []*storage.StoredSignal
	for _, sig := range signals {
		if len(sig.Pulses) > 0 {
			plottable = append(plottable, sig)
		}
	}

	logger.Info("loaded captures",
		slog.Int64("run", config.RunID),
		slog.Int("signals", len(signals)),
		slog.Int("plottable", len(plottable)))

	renderer, err := NewPulseRenderer(RenderConfig{
		FontPath:   config.FontPath,
		UsPerPixel: config.UsPerPixel,
		Annotate:   !config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating pulse renderer: %w", err)
	}

	img, err := renderer.Render(plottable)
	if err != nil {
		return fmt.Errorf("rendering pulses: %w", err)
	}

	logger.Info("rendering pulse diagram",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", img.Bounds().Dx()),
			slog.Int("height", img.Bounds().Dy()),
		))

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
