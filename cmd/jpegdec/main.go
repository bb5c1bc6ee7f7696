// Package main is the jpegdec command: it decodes a baseline JPEG and writes,
// previews or describes the result.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gen2brain/jpegdec"
	"github.com/gen2brain/jpegdec/internal/preview"
	"github.com/gen2brain/jpegdec/internal/writer"
)

const (
	// Flags.
	flagOut          = "out"
	flagFormat       = "format"
	flagPreview      = "preview"
	flagPreviewWidth = "width"
	flagIDCT         = "idct"
	flagLogLevel     = "log-level"
	flagMaxBytes     = "max-bytes"

	stdinName = "-"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jpegdec:", err)
		os.Exit(1)
	}
}

// newApp builds the command line application reading from stdin and writing to stdout and stderr.
func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	logger := zap.NewNop()

	formats := make([]string, 0)
	for _, f := range writer.Formats() {
		formats = append(formats, string(f))
	}

	return &cli.App{
		Name:      "jpegdec",
		Usage:     "decode baseline JPEG images",
		ArgsUsage: "INPUT",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagOut,
				Aliases: []string{"o"},
				Usage:   "write the decoded image to `FILE`",
			},
			&cli.StringFlag{
				Name:    flagFormat,
				Aliases: []string{"f"},
				Usage:   "output format (" + strings.Join(formats, ", ") + "); defaults to the --out extension",
			},
			&cli.BoolFlag{
				Name:    flagPreview,
				Aliases: []string{"p"},
				Usage:   "draw the decoded image on the terminal",
			},
			&cli.IntFlag{
				Name:  flagPreviewWidth,
				Usage: "preview width in columns; defaults to the terminal width",
			},
			&cli.StringFlag{
				Name:    flagIDCT,
				Value:   jpegdec.FastIDCT.String(),
				Usage:   "inverse DCT implementation: fast or reference",
				EnvVars: []string{"JPEGDEC_IDCT"},
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Value:   "warn",
				Usage:   "log level: debug, info, warn or error",
				EnvVars: []string{"JPEGDEC_LOG_LEVEL"},
			},
			&cli.IntFlag{
				Name:    flagMaxBytes,
				Value:   jpegdec.DefaultMaxRasterBytes,
				Usage:   "largest raster the decoder may allocate, in bytes",
				EnvVars: []string{"JPEGDEC_MAX_BYTES"},
			},
		},
		Before: func(c *cli.Context) error {
			l, err := newLogger(c.String(flagLogLevel), c.App.ErrWriter)
			if err != nil {
				return err
			}
			logger = l

			return nil
		},
		After: func(c *cli.Context) error {
			//nolint:errcheck
			logger.Sync()

			return nil
		},
		Action: func(c *cli.Context) error {
			return decodeAction(c, logger)
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print the format and dimensions of a JPEG image",
				ArgsUsage: "INPUT",
				Action: func(c *cli.Context) error {
					return infoAction(c, logger)
				},
			},
		},
	}
}

// newLogger returns a console logger writing to w at the named level.
func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid --%s", flagLogLevel)
	}

	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)).Named("jpegdec"), nil
}

// readInput returns the contents of the single INPUT argument; "-" reads stdin.
func readInput(c *cli.Context) (name string, data []byte, err error) {
	if c.NArg() != 1 {
		return "", nil, errors.New("expected exactly one INPUT argument")
	}

	name = c.Args().First()
	if name == stdinName {
		data, err = io.ReadAll(c.App.Reader)

		return "stdin", data, errors.Wrap(err, "reading stdin")
	}

	//nolint:gosec
	f, err := os.Open(name)
	if err != nil {
		return name, nil, errors.Wrap(err, "opening input")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	data, err = io.ReadAll(f)

	return name, data, errors.Wrapf(err, "reading %s", name)
}

func decodeAction(c *cli.Context, logger *zap.Logger) error {
	name, data, err := readInput(c)
	if err != nil {
		return err
	}

	method, err := jpegdec.ParseIDCTMethod(c.String(flagIDCT))
	if err != nil {
		return err
	}

	format, ok := jpegdec.DetectFormat(data)
	if !ok {
		return errors.Wrap(jpegdec.ErrNoJPEG, name)
	}

	start := time.Now()
	raster, err := jpegdec.ReadFormat(format, bytes.NewReader(data), &jpegdec.Options{
		IDCT:      method,
		Logger:    logger.With(zap.String("input", name)),
		Allocator: jpegdec.HeapAllocator{MaxBytes: c.Int(flagMaxBytes)},
	})
	if err != nil {
		return errors.Wrapf(err, "decoding %s", name)
	}

	logger.Info("decoded",
		zap.String("input", name),
		zap.Int("width", raster.Width),
		zap.Int("height", raster.Height),
		zap.Duration("elapsed", time.Since(start)))

	wrote := false
	if out := c.String(flagOut); out != "" {
		if err := writeOutput(c, out, raster); err != nil {
			return err
		}

		logger.Info("wrote output", zap.String("path", out))
		wrote = true
	}

	if c.Bool(flagPreview) {
		return preview.Render(c.App.Writer, raster, previewWidth(c))
	}

	if !wrote {
		fmt.Fprintf(c.App.Writer, "%s: %dx%d %s\n", name, raster.Width, raster.Height, format)
	}

	return nil
}

func writeOutput(c *cli.Context, path string, img *jpegdec.Raster) error {
	var (
		f   writer.Format
		err error
	)

	if name := c.String(flagFormat); name != "" {
		f, err = writer.Parse(name)
	} else {
		f, err = writer.FormatFromPath(path)
	}

	if err != nil {
		return err
	}

	return writer.WriteFile(path, f, img)
}

func previewWidth(c *cli.Context) int {
	if w := c.Int(flagPreviewWidth); w > 0 {
		return w
	}

	if f, ok := c.App.Writer.(*os.File); ok {
		if w, ok := preview.TerminalWidth(f); ok {
			return w
		}
	}

	return preview.DefaultWidth
}

func infoAction(c *cli.Context, logger *zap.Logger) error {
	name, data, err := readInput(c)
	if err != nil {
		return err
	}

	cfg, err := jpegdec.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "reading header of %s", name)
	}

	logger.Debug("header", zap.String("input", name), zap.Int("bytes", len(data)))
	fmt.Fprintf(c.App.Writer, "%s: %dx%d %s\n", name, cfg.Width, cfg.Height, jpegdec.FormatJPEG)

	return nil
}
