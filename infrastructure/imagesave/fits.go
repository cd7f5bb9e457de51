// Package imagesave writes captured frames to disk as FITS files.
package imagesave

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"

	"squid-go/domain/experiment"
)

// FITSWriter is an experiment.CaptureSink that stores each capture as a
// 16-bit FITS image under Dir/<experiment id>/<time point>/.
type FITSWriter struct {
	dir    string
	logger *slog.Logger
}

var _ experiment.CaptureSink = (*FITSWriter)(nil)

// NewFITSWriter creates a writer rooted at dir.
func NewFITSWriter(dir string, logger *slog.Logger) *FITSWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FITSWriter{dir: dir, logger: logger}
}

// Dir returns the output root.
func (w *FITSWriter) Dir() string { return w.dir }

// Path returns where a capture is stored.
func (w *FITSWriter) Path(c experiment.Capture) string {
	return filepath.Join(w.dir, c.ExperimentID, fmt.Sprintf("%d", c.TimePoint), c.FileStem()+".fits")
}

// Save implements experiment.CaptureSink.
func (w *FITSWriter) Save(ctx context.Context, rec *experiment.CaptureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := w.Path(rec.Capture)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := WriteFITS(f, Cards(rec.Capture), rec.Frame.Pixels, rec.Frame.Width, rec.Frame.Height); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write fits: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	rec.File = path
	w.logger.Debug("Capture saved", "file", path)
	return nil
}

// Cards returns the header metadata for a capture.
func Cards(c experiment.Capture) []fitsio.Card {
	return []fitsio.Card{
		{Name: "EXPID", Value: c.ExperimentID, Comment: "experiment id"},
		{Name: "TPOINT", Value: c.TimePoint, Comment: "time point index"},
		{Name: "REGION", Value: c.RegionID},
		{Name: "FOV", Value: c.FOVIndex, Comment: "fov index within region"},
		{Name: "ZINDEX", Value: c.ZIndex},
		{Name: "CHANNEL", Value: c.Channel},
		{Name: "STAGEX", Value: c.X, Comment: "mm"},
		{Name: "STAGEY", Value: c.Y, Comment: "mm"},
		{Name: "STAGEZ", Value: c.Z, Comment: "mm"},
		{Name: "FRAMEID", Value: int(c.FrameID)},
		{Name: "PIXFMT", Value: c.PixelFormat},
		{Name: "DATE-OBS", Value: c.CapturedAt.UTC().Format("2006-01-02T15:04:05.000")},
	}
}

// WriteFITS streams a single 16-bit image to w.
func WriteFITS(w io.Writer, metadata []fitsio.Card, pixels []uint16, width, height int) error {
	if len(pixels) != width*height {
		return fmt.Errorf("pixel count %d does not match %dx%d", len(pixels), width, height)
	}
	metadata = append(metadata, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	if err := im.Header().Append(metadata...); err != nil {
		return err
	}

	// FITS has no unsigned 16-bit type; uint16 underflow gives the BZERO offset.
	buf := make([]int16, len(pixels))
	for idx := range pixels {
		buf[idx] = int16(pixels[idx] - 32768)
	}
	if err := im.Write(buf); err != nil {
		return err
	}
	return fits.Write(im)
}
