package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geocine/notexport/internal/cli"
	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/export"
	"github.com/geocine/notexport/internal/outline"
	"github.com/geocine/notexport/internal/render"
	"github.com/geocine/notexport/internal/slides"
	"github.com/geocine/notexport/internal/utils"
	"github.com/geocine/notexport/internal/vault"
	"github.com/geocine/notexport/internal/writer"
)

func main() {
	// Define subcommands
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	buildDir := buildCmd.String("dest-dir", "", "Destination directory for the exported site")
	buildVerbose := buildCmd.Bool("verbose", false, "Enable verbose output")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	initName := initCmd.String("name", "", "Project directory name (or pass as positional)")
	initTitle := initCmd.String("title", "", "Site title (defaults to name)")
	initSrc := initCmd.String("src", "notes", "Notes directory")
	initBuildDir := initCmd.String("build-dir", "site", "Build output directory")
	initYes := initCmd.Bool("yes", false, "Skip interactive prompts and use provided/default values")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	servePort := serveCmd.Int("port", 3000, "Port to serve on")
	serveHost := serveCmd.String("hostname", "127.0.0.1", "Hostname to bind to")
	serveDest := serveCmd.String("dest-dir", "", "Directory to serve (defaults to build dir)")
	serveVerbose := serveCmd.Bool("verbose", false, "Enable verbose output")

	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanDest := cleanCmd.String("dest-dir", "", "Destination directory to clean")

	if len(os.Args) < 2 {
		fmt.Println("Usage: notexport [command]")
		fmt.Println("Commands:")
		fmt.Println("  build      Export the notes to a static site")
		fmt.Println("  init       Initialize a new export project")
		fmt.Println("  serve      Serve the exported site")
		fmt.Println("  clean      Clean the build directory")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		buildCmd.Parse(os.Args[2:])
		handleBuild(*buildDir, *buildVerbose)

	case "init":
		initCmd.Parse(os.Args[2:])
		handleInit(initCmd, *initName, *initTitle, *initSrc, *initBuildDir, *initYes)

	case "serve":
		serveCmd.Parse(os.Args[2:])
		handleServe(*serveHost, *servePort, *serveDest, *serveVerbose)

	case "clean":
		cleanCmd.Parse(os.Args[2:])
		handleClean(*cleanDest)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

// newLogger builds the process logger; verbose enables debug output.
func newLogger(verbose bool) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

// loadConfig reads export.toml and applies environment overrides. An absent
// config file means defaults; an unreadable one is a warning.
func loadConfig(log *zap.Logger) *config.Config {
	cfg := config.NewDefaultConfig()
	if utils.FileExists("export.toml") {
		loaded, err := config.LoadFromFile("export.toml")
		if err != nil {
			log.Warn("could not load config file, using defaults", zap.Error(err))
		} else {
			cfg = loaded
		}
	}
	cfg.UpdateFromEnv()
	return cfg
}

func handleBuild(destDir string, verbose bool) {
	log := newLogger(verbose)
	defer log.Sync()

	cfg := loadConfig(log)
	outDir := destDir
	if outDir == "" {
		outDir = cfg.Build.BuildDir
	}

	if err := runExport(context.Background(), cfg, outDir, log); err != nil {
		log.Fatal("export failed", zap.Error(err))
	}
	fmt.Printf("Site exported successfully to %s!\n", outDir)
}

// runExport loads the vault, builds every page concurrently, and persists
// the result. Page failures are logged and skipped; only infrastructure
// failures (vault load, disk writes) abort the run.
func runExport(ctx context.Context, cfg *config.Config, outDir string, log *zap.Logger) error {
	srcDir := cfg.Site.Src
	if !utils.DirExists(srcDir) {
		return fmt.Errorf("notes directory '%s' not found", srcDir)
	}

	v, err := vault.Load(srcDir)
	if err != nil {
		return fmt.Errorf("failed to load vault: %w", err)
	}
	log.Info("vault loaded",
		zap.String("root", srcDir),
		zap.Int("documents", len(v.Documents)),
		zap.Int("files", len(v.Files)))

	session := export.NewSession(cfg.Export, cfg.Site, v, render.NewMarkdownRenderer())
	session.Log = log
	session.Outline = outline.New()
	if r := slides.New(cfg.Export.SlideRendererCmd); r != nil {
		session.Slides = r
	}

	// Register every page up front so cross-page links resolve regardless of
	// build order.
	var pages []*export.Webpage
	for _, p := range v.DocumentPaths() {
		page, err := session.NewWebpage(p)
		if err != nil {
			log.Warn("skipping page", zap.String("source", p), zap.Error(err))
			continue
		}
		pages = append(pages, page)
	}

	workers := cfg.Build.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	var outputs []*export.OutputData
	var attachments []*export.Attachment

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, page := range pages {
		page := page
		g.Go(func() error {
			out, err := page.Build(gctx)
			if err != nil {
				log.Warn("page build failed", zap.String("source", page.SourcePath), zap.Error(err))
				return nil
			}
			if out == nil {
				log.Warn("page skipped", zap.String("source", page.SourcePath))
				return nil
			}
			mu.Lock()
			outputs = append(outputs, out)
			attachments = append(attachments, &page.Attachment)
			attachments = append(attachments, page.Attachments()...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("pages built", zap.Int("count", len(outputs)))

	w := writer.New(outDir, cfg, log)
	if err := w.WriteSite(attachments, outputs); err != nil {
		return fmt.Errorf("failed to write site: %w", err)
	}
	return nil
}

func handleInit(initCmd *flag.FlagSet, name, title, src, buildDir string, yes bool) {
	// Determine name: prefer positional arg if present, then --name, else default
	if name == "" {
		if initCmd.NArg() >= 1 {
			name = initCmd.Arg(0)
		} else {
			name = "my-notes"
		}
	}

	fmt.Printf("Initializing new export project: %s\n", name)

	opts := cli.InitOptions{
		Name:     name,
		SrcDir:   src,
		BuildDir: buildDir,
		Title:    title,
	}

	if !yes {
		cli.FillInitOptionsInteractive(&opts)
	}

	if err := cli.Init(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize project: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nSuccessfully created project in '%s'\n", name)
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", name)
	fmt.Println("  notexport build     # export the site")
	fmt.Println("  notexport serve     # serve it locally")
}

// handleServe exports the site once and serves it as static files with a
// 404.html fallback.
func handleServe(host string, port int, destOverride string, verbose bool) {
	log := newLogger(verbose)
	defer log.Sync()

	cfg := loadConfig(log)
	outDir := destOverride
	if outDir == "" {
		outDir = cfg.Build.BuildDir
	}

	if err := runExport(context.Background(), cfg, outDir, log); err != nil {
		log.Fatal("initial export failed", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		upath := r.URL.Path
		if strings.HasSuffix(upath, "/") {
			upath += "index.html"
		}
		if upath == "/" {
			upath = "/index.html"
		}
		// Prevent path traversal
		upath = filepath.Clean(upath)
		target := filepath.Join(outDir, upath)
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(outDir)) {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
			http.ServeFile(w, r, target)
			return
		}
		fourOFour := filepath.Join(outDir, "404.html")
		if _, err := os.Stat(fourOFour); err == nil {
			w.WriteHeader(http.StatusNotFound)
			http.ServeFile(w, r, fourOFour)
			return
		}
		http.NotFound(w, r)
	})

	log.Info("serving site", zap.String("addr", "http://"+addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func handleClean(destOverride string) {
	log := newLogger(false)
	defer log.Sync()

	cfg := loadConfig(log)
	outDir := destOverride
	if outDir == "" {
		outDir = cfg.Build.BuildDir
	}

	if !utils.DirExists(outDir) {
		fmt.Printf("Nothing to clean: %s does not exist\n", outDir)
		return
	}
	if err := utils.RemoveDirContents(outDir); err != nil {
		log.Fatal("clean failed", zap.Error(err))
	}
	fmt.Printf("Cleaned %s\n", outDir)
}
