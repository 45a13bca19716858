// Command faxdecode decodes raw CCITT Group 3 one-dimensional fax data into a binary PBM image.
// Decoded rows are staged in a scratch buffer, so images larger than the memory limit spill into a
// temp file.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"mit.edu/dsg/pagedio/ccitt"
	"mit.edu/dsg/pagedio/randomaccess"
	"mit.edu/dsg/pagedio/storage"
)

// CLI defines the command-line interface for faxdecode.
var CLI struct {
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format (text, json)"`

	Decode DecodeCmd `cmd:"" help:"Decode a G3 1-D stream into a PBM (P4) image"`
}

// DecodeCmd decodes one fax stream.
type DecodeCmd struct {
	Input      string `arg:"" help:"Raw G3 1-D encoded input" type:"existingfile"`
	Output     string `short:"o" required:"" help:"Output PBM path" type:"path"`
	Columns    int    `default:"1728" help:"Pixels per row"`
	Rows       int    `default:"0" help:"Stop after this many rows (0 = until end of data)"`
	ByteAlign  bool   `name:"byte-align" help:"Rows start on byte boundaries of the input"`
	MaxMemory  string `name:"max-memory" default:"64MiB" help:"Main memory for staged rows before spilling to a temp file"`
	MaxStorage string `name:"max-storage" help:"Limit on memory plus temp file (empty = unrestricted)"`
	TempDir    string `name:"temp-dir" help:"Directory for the temp file" type:"path"`
	Digest     bool   `help:"Print the BLAKE3-256 of the raster"`
}

func (c *DecodeCmd) Run(logger *slog.Logger) error {
	_, err := c.decode(logger, os.Stdout)
	return err
}

type decodeResult struct {
	rows   int
	bytes  int64
	digest string
}

func (c *DecodeCmd) setting() (storage.MemoryUsageSetting, error) {
	maxMemory, err := humanize.ParseBytes(c.MaxMemory)
	if err != nil {
		return storage.MemoryUsageSetting{}, fmt.Errorf("invalid --max-memory %q: %w", c.MaxMemory, err)
	}
	maxStorage := storage.Unrestricted
	if c.MaxStorage != "" {
		v, err := humanize.ParseBytes(c.MaxStorage)
		if err != nil {
			return storage.MemoryUsageSetting{}, fmt.Errorf("invalid --max-storage %q: %w", c.MaxStorage, err)
		}
		maxStorage = int64(v)
	}
	return storage.SetupMixed(int64(maxMemory), maxStorage).WithTempDir(c.TempDir), nil
}

func (c *DecodeCmd) decode(logger *slog.Logger, stdout io.Writer) (decodeResult, error) {
	var result decodeResult
	setting, err := c.setting()
	if err != nil {
		return result, err
	}

	file, err := randomaccess.OpenFile(c.Input)
	if err != nil {
		return result, err
	}
	source := randomaccess.Share(file)
	defer source.Close()
	in := source.NewInputStream(0)
	defer in.Close()

	pool := storage.NewScratchFile(setting, storage.WithLogger(logger))
	defer pool.Close()
	logger.Debug("staging decoded rows", "pool", pool.ID().String(), "setting", setting.String())

	start := time.Now()
	decoder := ccitt.NewDecoder(bufio.NewReader(in), ccitt.Options{
		Columns:          c.Columns,
		Rows:             c.Rows,
		EncodedByteAlign: c.ByteAlign,
	})
	raster, err := pool.CreateBufferFrom(decoder)
	if err != nil {
		return result, fmt.Errorf("decode %s: %w", c.Input, err)
	}
	defer raster.Close()
	if result.bytes, err = raster.Length(); err != nil {
		return result, err
	}
	result.rows = decoder.Rows()

	out, err := os.Create(c.Output)
	if err != nil {
		return result, fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	hasher := blake3.New()
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "P4\n%d %d\n", decoder.Columns(), result.rows); err != nil {
		return result, err
	}
	if _, err := io.Copy(io.MultiWriter(w, hasher), raster); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	if err := w.Flush(); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	if err := out.Close(); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}
	result.digest = hex.EncodeToString(hasher.Sum(nil))

	logger.Info("decoded fax image",
		"input", c.Input,
		"output", c.Output,
		"columns", decoder.Columns(),
		"rows", result.rows,
		"raster", humanize.IBytes(uint64(result.bytes)),
		"pages", pool.PageCount(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	if c.Digest {
		fmt.Fprintf(stdout, "%s  %s\n", result.digest, c.Output)
	}
	return result, nil
}

// newLogger builds the process logger from the global flags. Logs go to stderr so that stdout
// carries only command output.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("faxdecode"),
		kong.Description("Decode CCITT G3 1-D fax data into PBM images"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logger := newLogger(CLI.LogLevel, CLI.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	err := ctx.Run(logger)
	ctx.FatalIfErrorf(err)
}
