package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stelgent-web/internal/domain/services"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/logger"
)

// rebuildDelay coalesces bursts of file events (editors often write twice).
const rebuildDelay = 150 * time.Millisecond

func newPreviewCommand(app *App) *cobra.Command {
	var (
		out    string
		minify bool
	)
	cmd := &cobra.Command{
		Use:   "preview PROJECT_ID",
		Short: "Write the assembled preview document of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			doc, err := c.Preview(cmd.Context(), args[0], minify)
			if err != nil {
				return err
			}
			return writeOutput(app.Out, out, []byte(doc))
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&minify, "minify", false, "Minify the document")
	return cmd
}

func newArchiveCommand(app *App) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "archive PROJECT_ID",
		Short: "Download a project as a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return err
			}
			data, name, err := c.Archive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = name
			}
			if out == "-" {
				_, err := app.Out.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			return app.printer.printMessage("Saved "+out, map[string]any{"path": out, "bytes": len(data)})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: server-suggested name, - for stdout)")
	return cmd
}

// previewDirOptions configures a local preview build.
type previewDirOptions struct {
	dir        string
	out        string
	configPath string
	minify     bool
	watch      bool
}

func newPreviewDirCommand(app *App) *cobra.Command {
	var opts previewDirOptions
	cmd := &cobra.Command{
		Use:   "preview-dir DIR",
		Short: "Assemble a preview from a local directory",
		Long: `Assemble a preview document from the text files of a local directory,
using the same rules as the server. With --watch the preview is rebuilt
whenever a file below DIR changes, until interrupted.

Examples:
  stelgent preview-dir ./site --out preview.html
  stelgent preview-dir ./site --out preview.html --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.dir = args[0]
			if opts.watch && opts.out == "" {
				return fmt.Errorf("--watch requires --out")
			}
			return runPreviewDir(cmd.Context(), app, opts)
		},
	}
	cmd.Flags().StringVar(&opts.out, "out", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Server config file for import and preview rules")
	cmd.Flags().BoolVar(&opts.minify, "minify", false, "Minify the document")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Rebuild on changes")
	return cmd
}

func runPreviewDir(ctx context.Context, app *App, opts previewDirOptions) error {
	cfg, err := config.Parse(opts.configPath)
	if err != nil {
		return err
	}
	processor := services.NewFileProcessor(cfg)
	assembler := services.NewPreviewAssembler(services.PreviewOptions{
		Lang:              cfg.Preview.Lang,
		Title:             cfg.Preview.Title,
		ScriptExcludeDirs: cfg.Preview.ScriptExcludeDirs,
	})

	build := func() error {
		files, err := processor.ReadDir(opts.dir)
		if err != nil {
			return err
		}
		doc, err := assembler.Assemble(files)
		if err != nil {
			return err
		}
		if opts.minify {
			if doc, err = services.MinifyDocument(doc); err != nil {
				return err
			}
		}
		return writeOutput(app.Out, opts.out, []byte(doc))
	}

	if err := build(); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	fmt.Fprintf(app.Err, "Watching %s, writing %s\n", opts.dir, opts.out)
	return watchDir(ctx, opts.dir, processor, opts.out, func() {
		if err := build(); err != nil {
			fmt.Fprintf(app.Err, "rebuild failed: %v\n", err)
			return
		}
		fmt.Fprintf(app.Err, "Rebuilt %s at %s\n", opts.out, time.Now().Format(time.TimeOnly))
	})
}

// watchDir calls rebuild after changes below dir until ctx is done. Events for
// ignore (the output file) do not trigger a rebuild.
func watchDir(ctx context.Context, dir string, processor *services.FileProcessor, ignore string, rebuild func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addTree(watcher, dir, processor); err != nil {
		return err
	}
	ignoreAbs, _ := filepath.Abs(ignore)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if abs, _ := filepath.Abs(ev.Name); abs == ignoreAbs {
				continue
			}
			logger.Debug("文件变化", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, ev.Name, nil); err != nil {
						logger.Warn("无法监听新目录", zap.String("path", ev.Name), zap.Error(err))
					}
				}
			}
			pending = time.After(rebuildDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("文件监听出错", zap.Error(err))
		case <-pending:
			pending = nil
			rebuild()
		}
	}
}

// addTree watches root and every directory below it that the processor does
// not exclude. fsnotify watches are not recursive.
func addTree(watcher *fsnotify.Watcher, root string, processor *services.FileProcessor) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if processor != nil && p != root {
			if rel, err := filepath.Rel(root, p); err == nil && processor.IsExcludedDir(rel) {
				return filepath.SkipDir
			}
		}
		return watcher.Add(p)
	})
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
