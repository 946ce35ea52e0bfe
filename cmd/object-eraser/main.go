package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	objecteraser "github.com/menta2k/object-eraser"
	"github.com/menta2k/object-eraser/internal/config"
	"github.com/menta2k/object-eraser/internal/utils"
	"github.com/menta2k/object-eraser/pkg/client"
	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/llamacpp"
	"github.com/menta2k/object-eraser/pkg/ollama"
	"github.com/menta2k/object-eraser/pkg/pipeline"
	"github.com/menta2k/object-eraser/pkg/stroke"
	"github.com/menta2k/object-eraser/pkg/types"
)

func main() {
	var in, strokesPath, cfgPath, provider, outDir, format string
	var dryRun, useHint, debug, initConfig bool
	var hintText string

	flag.StringVar(&in, "in", "", "input image path, URL or data: URI")
	flag.StringVar(&strokesPath, "strokes", "", "JSON stroke recording")
	flag.StringVar(&cfgPath, "config", "", "config file (default "+config.GetConfigPath()+")")
	flag.StringVar(&provider, "provider", "", "removal provider from the config (default: active_provider)")
	flag.StringVar(&outDir, "out", "", "output directory (overrides config)")
	flag.StringVar(&format, "format", "", "mask format: png|webp (overrides config)")
	flag.BoolVar(&dryRun, "dry-run", false, "render mask and marked image without submitting")
	flag.BoolVar(&useHint, "hint", false, "ask the vision model to name the marked object")
	flag.StringVar(&hintText, "prompt", "", "removal hint sent to the provider")
	flag.BoolVar(&debug, "debug", false, "verbose pipeline logging")
	flag.BoolVar(&initConfig, "init-config", false, "write the default config and exit")
	flag.Parse()

	if initConfig {
		path := cfgPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := config.Default().SaveToFile(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
		return
	}

	if in == "" || strokesPath == "" {
		log.Fatalf("usage: %s -in photo.jpg|URL -strokes strokes.json [-provider name] [-out dir] [-format png|webp] [-dry-run] [-hint]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if format != "" {
		cfg.Render.Format = format
	}
	if useHint {
		cfg.Hint.Enabled = true
	}
	if provider == "" {
		provider = cfg.ActiveProvider
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	pc, err := cfg.Provider(provider)
	if err != nil {
		log.Fatal(err)
	}
	markColor, err := cfg.Render.Color()
	if err != nil {
		log.Fatal(err)
	}

	sink := diag.NewStd(log.Default(), debug)

	var vision client.VisionClient
	if cfg.Hint.Enabled {
		vision, err = newVisionClient(cfg.Hint)
		if err != nil {
			log.Fatal(err)
		}
	}

	opts := objecteraser.Options{
		APIKey:      pc.APIKey(),
		Constraints: pc.Constraints(),
		Timeout:     pc.Timeout(),
		MaxAttempts: pc.MaxAttempts,
		Backoff:     pc.Backoff(),
		MarkColor:   markColor,
		MaskFormat:  cfg.Render.Format,
		ImageFormat: cfg.Render.ImageFormat,
		ScanWindow:  cfg.Exif.ScanWindow,
		Vision:      vision,
		VisionModel: cfg.Hint.Model,
		Diag:        sink,
	}
	if !dryRun {
		opts.Endpoint = pc.Endpoint
	}
	eraser, err := objecteraser.New(opts)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// read once so URL sources are not fetched again for the export
	src, info, err := eraser.Load(ctx, sourceFor(in))
	if err != nil {
		log.Fatalf("cannot read %s: %v", in, err)
	}
	log.Printf("source %dx%d orientation=%d (%s)", info.Width, info.Height, info.Orientation, info.MIME)

	session := eraser.NewSession(src)
	session.SetOrientation(info.Orientation)
	n, err := replayStrokes(strokesPath, session.Log(), info.Width, info.Height, cfg.Render.BrushSize)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("replayed %d strokes, ink=%.1f (need >%.1f)", n, session.Log().InkScore(), stroke.MinInk(info.Width, info.Height))

	var out *pipeline.Outcome
	if dryRun {
		out, err = eraser.Render(ctx, pipeline.Request{
			Source:      src,
			Orientation: info.Orientation,
			Strokes:     session.Log().Strokes(),
		})
	} else {
		out, err = session.StartExport(ctx, hintText).Wait()
	}
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	switch out.Status {
	case pipeline.StatusCancelled:
		log.Printf("export %s cancelled", out.ID)
		os.Exit(130)
	case pipeline.StatusNeedsMoreInk:
		log.Printf("not enough ink: %.1f, draw over the object to remove", out.InkScore)
		os.Exit(2)
	}

	paths, err := eraser.SaveOutputs(out, in, objecteraser.OutputNames{
		Dir:          cfg.Output.OutputDir,
		Prefix:       cfg.Output.Prefix,
		MaskSuffix:   cfg.Output.MaskSuffix,
		MarkedSuffix: cfg.Output.MarkedSuffix,
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil {
			log.Printf("wrote %s (%s)", p, utils.FormatFileSize(st.Size()))
		}
	}

	// image-space strokes, replayable without a container
	strokesOut := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Prefix, "_strokes", "json")
	if err := saveStrokes(strokesOut, session.Log().Strokes()); err != nil {
		log.Printf("save %s failed: %v", strokesOut, err)
	}

	log.Printf("target %dx%d mask coverage %.1f%%", out.Target.Width, out.Target.Height, out.Mask.Coverage*100)
	if out.Hint != "" {
		log.Printf("hint: %s", out.Hint)
	}
	if out.Result != nil {
		fmt.Println(out.Result.URL)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if def := config.GetConfigPath(); utils.FileExists(def) {
		return config.LoadFromFile(def)
	}
	return config.Default(), nil
}

func newVisionClient(h config.HintConfig) (client.VisionClient, error) {
	switch h.Backend {
	case "ollama":
		c, err := ollama.NewClient(h.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(h.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown hint backend: %s (use 'ollama' or 'llamacpp')", h.Backend)
}

func sourceFor(in string) types.Source {
	switch {
	case strings.HasPrefix(in, "http://"), strings.HasPrefix(in, "https://"):
		return types.Source{URL: in}
	case strings.HasPrefix(in, "data:"):
		return types.Source{Base64: in}
	}
	return types.Source{Path: in}
}

func saveStrokes(path string, strokes []stroke.Stroke) error {
	js, err := json.MarshalIndent(stroke.Record(strokes), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal strokes: %w", err)
	}
	return os.WriteFile(path, js, 0o644)
}

func replayStrokes(path string, l *stroke.Log, w, h int, brush float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rec, err := stroke.ReadRecording(f)
	if err != nil {
		return 0, err
	}
	if rec.BrushSize <= 0 {
		rec.BrushSize = brush
	}
	return rec.Replay(l, w, h), nil
}
