// Command freezetag is the thin CLI collaborator described in spec 6: it
// parses arguments, writes the freezetag a freeze produces, and prints
// results, but contains none of the freeze/thaw/shave/mount logic itself.
// It never prompts: a condition the core reports as an error (missing
// music, path mismatch, several candidate freezetags) is printed and the
// command exits with status 1.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cesargomez89/freezetag/internal/config"
	"github.com/cesargomez89/freezetag/internal/constants"
	"github.com/cesargomez89/freezetag/internal/engine"
	"github.com/cesargomez89/freezetag/internal/freezefs"
	"github.com/cesargomez89/freezetag/internal/fsutil"
	"github.com/cesargomez89/freezetag/internal/ftag"
	"github.com/cesargomez89/freezetag/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if len(args) == 0 {
		printUsage()
		return 1
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "freeze":
		err = runFreeze(rest, log)
	case "thaw":
		err = runThaw(rest, cfg, log)
	case "shave":
		err = runShave(rest, log)
	case "show":
		err = runShow(rest)
	case "mount":
		err = runMount(rest, cfg, log)
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: freezetag <command> [arguments]

commands:
  freeze [dir] [--backup] [--ftag path]
  thaw [dir] [--to dir] [--ftag path] [--skip-checks]
  shave [dir]
  show [path] [--json]
  mount directory mount_point [--verbose]`)
}

func runFreeze(args []string, log *logger.Logger) error {
	fs := flag.NewFlagSet("freeze", flag.ContinueOnError)
	backup := fs.Bool("backup", false, "freeze in backup mode (version 2, reuses unchanged files)")
	ftagPath := fs.String("ftag", "", "output file, or directory to write the freezetag into (defaults to dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	result, err := engine.Freeze(dir, engine.FreezeOptions{Backup: *backup}, log)
	if err != nil {
		return err
	}
	if result.NoChanges {
		fmt.Println("no changes")
		return nil
	}
	out := filepath.Join(dir, result.Filename)
	if *ftagPath != "" {
		out = *ftagPath
		if info, statErr := os.Stat(out); statErr == nil && info.IsDir() {
			out = filepath.Join(out, result.Filename)
		}
	}
	if err := fsutil.AtomicWriteFile(out, result.Bytes); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(result.Bytes))
	return nil
}

func runThaw(args []string, cfg *config.Config, log *logger.Logger) error {
	fs := flag.NewFlagSet("thaw", flag.ContinueOnError)
	to := fs.String("to", "", "destination directory (defaults to in-place)")
	ftagPath := fs.String("ftag", "", "explicit freezetag path")
	skipChecks := fs.Bool("skip-checks", false, "skip the safety pass before writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	result, err := engine.Thaw(dir, engine.ThawOptions{
		FtagPath:    *ftagPath,
		Destination: *to,
		SkipChecks:  *skipChecks,
		MaxVersion:  cfg.MaxFreezetagVersion,
	}, log)
	if err != nil {
		return err
	}
	fmt.Printf("thawed %d file(s) into %s\n", result.FilesWritten, result.Root)
	return nil
}

func runShave(args []string, log *logger.Logger) error {
	fs := flag.NewFlagSet("shave", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	result, err := engine.Shave(dir, log)
	if err != nil {
		return err
	}
	fmt.Printf("stripped %d file(s)\n", result.FilesStripped)
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := "."
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	resolved := path
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		found, err := engine.FindFtag(path, "")
		if err != nil {
			return err
		}
		resolved = found
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}
	ft, err := ftag.Decode(raw)
	if err != nil {
		return err
	}
	desc, err := engine.Describe(ft)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}

	fmt.Printf("id:       %s\n", desc.ID)
	fmt.Printf("version:  %d\n", desc.Version)
	fmt.Printf("root:     %s\n", desc.Root)
	fmt.Printf("music:    %s\n", desc.MusicChecksumHex)
	fmt.Printf("metadata: %s\n", desc.MetaChecksumHex)
	for _, f := range desc.Files {
		fmt.Printf("  %s  [%s]  %s\n", f.Path, f.Format, f.ChecksumHex)
		for _, span := range f.MetadataSpans {
			fmt.Printf("      %s\n", span)
		}
	}
	return nil
}

func runMount(args []string, cfg *config.Config, log *logger.Logger) error {
	fs := flag.NewFlagSet("mount", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "log every watcher event at debug level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("mount requires directory and mount_point")
	}
	directory, mountpoint := fs.Arg(0), fs.Arg(1)

	if *verbose {
		log = logger.New(logger.Config{Level: "debug", Format: cfg.LogFormat})
	}

	fsys, err := freezefs.New(directory, freezefs.Options{
		CacheLimit: cfg.FreezetagCacheLimit,
		KeepAlive:  cfg.KeepAliveTimeout,
		CachePath:  filepath.Join(cfg.CacheDir, constants.DefaultCacheFileName),
	}, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("mounting", "directory", directory, "mountpoint", mountpoint)
	return fsys.Mount(ctx, mountpoint)
}
