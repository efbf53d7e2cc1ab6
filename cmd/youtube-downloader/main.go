package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rand-hawk/youtube-downloader/internal/config"
	"github.com/rand-hawk/youtube-downloader/internal/convert"
	"github.com/rand-hawk/youtube-downloader/internal/download"
	"github.com/rand-hawk/youtube-downloader/internal/logger"
	"github.com/rand-hawk/youtube-downloader/internal/model"
	"github.com/rand-hawk/youtube-downloader/internal/platform"
	"github.com/rand-hawk/youtube-downloader/internal/queue"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppName = "youtube-downloader"

	// How often the run loop re-checks the queue for free slots.
	PollInterval = 500 * time.Millisecond

	// How long to wait for active tasks to wind down after an interrupt.
	ShutdownTimeout = 10 * time.Second
)

func usage() {
	fmt.Fprintf(os.Stderr, `%s v%s - queue-based YouTube downloader (yt-dlp + FFmpeg)

Usage:
  %s [flags] <url> [url...]        enqueue URLs and run the queue
  %s [flags] add <url> [url...]    enqueue URLs without running
  %s [flags] run [url...]          run the queue (optionally enqueue first)
  %s [flags] resume                restart interrupted and pending tasks
  %s [flags] list                  show queued tasks
  %s [flags] clear                 remove finished tasks from the queue
  %s [flags] convert <op> <file>   post-process a local file with FFmpeg
                                   ops: mp3, recode, downscale

Flags:
`, AppName, version, AppName, AppName, AppName, AppName, AppName, AppName, AppName)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.json (default: next to the executable)")
		outputDir   = flag.String("output", "", "override the download directory")
		quality     = flag.String("quality", "", "quality preset: best, 1080, 720, 480, audio")
		audioOnly   = flag.Bool("audio", false, "download audio only and extract to mp3")
		maxParallel = flag.Int("parallel", 0, "max concurrent downloads (1-10)")
		rateLimit   = flag.String("rate", "", "download speed limit, e.g. 500K or 2M")
		height      = flag.Int("height", 720, "target height for convert downscale")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", AppName, version)
		return
	}

	logConfig := logger.DefaultConfig()
	if *verbose {
		logConfig.Level = logger.DEBUG
	}
	logger.SetGlobalLogger(logger.New(logConfig))
	log := logger.WithComponent(logger.ComponentApp)

	settings, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(settings, *outputDir, *quality, *maxParallel, *rateLimit)

	args := flag.Args()
	verb, rest := splitVerb(args)

	if verb == "convert" {
		os.Exit(runConvert(settings, rest, *height))
	}

	svc, store, err := buildDownloadService(settings, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	svc.SetUpdateCallback(newProgressPrinter().print)

	kind, taskQuality := resolveKind(settings, *audioOnly)

	var exitCode int
	switch verb {
	case "add":
		exitCode = enqueueURLs(svc, rest, kind, taskQuality)
	case "list":
		printTasks(svc.GetAllTasks())
		printPartials(settings.GetPartialDirectory())
	case "clear":
		removed := svc.ClearFinished()
		fmt.Printf("removed %d finished task(s)\n", removed)
	case "resume":
		exitCode = runQueue(svc, store, log)
	case "run":
		if code := enqueueURLs(svc, rest, kind, taskQuality); code != 0 {
			exitCode = code
		}
		if rc := runQueue(svc, store, log); rc != 0 {
			exitCode = rc
		}
	default:
		usage()
		exitCode = 2
	}
	os.Exit(exitCode)
}

// splitVerb separates the command verb from its arguments. Bare URLs are
// shorthand for "run <urls>".
func splitVerb(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "add", "list", "run", "resume", "clear", "convert":
		return args[0], args[1:]
	}
	if strings.Contains(args[0], "://") {
		return "run", args
	}
	return args[0], args[1:]
}

// loadSettings reads config.json, defaulting to the directory the executable
// lives in so the whole installation stays portable.
func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		appDir, err := platform.AppDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(appDir, config.DefaultConfigFile)
	}
	return config.Load(path)
}

// applyOverrides folds command line flags into the loaded settings and
// persists any change, matching how an interactive settings change behaves.
func applyOverrides(settings *config.Settings, outputDir, quality string, maxParallel int, rateLimit string) {
	changed := false
	if outputDir != "" {
		settings.SetOutputDirectory(outputDir)
		changed = true
	}
	if quality != "" {
		settings.SetQualityPreset(config.QualityPreset(quality))
		changed = true
	}
	if maxParallel > 0 {
		settings.SetMaxParallelDownloads(maxParallel)
		changed = true
	}
	if rateLimit != "" {
		settings.SetSpeedLimit(rateLimit)
		changed = true
	}
	if changed {
		if err := settings.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save settings: %v\n", err)
		}
	}
}

// buildDownloadService wires the download engine to its directories and the
// persisted queue state.
func buildDownloadService(settings *config.Settings, log *logger.ComponentLogger) (*download.Service, *queue.Store, error) {
	downloadDir := settings.GetOutputDirectory()
	partialDir := settings.GetPartialDirectory()

	for _, dir := range []string{downloadDir, partialDir} {
		if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	store := queue.NewStore(filepath.Join(filepath.Dir(settings.Path()), queue.DefaultStateFile))

	svc := download.NewService(downloadDir, partialDir, settings.GetMaxParallelDownloads())
	svc.SetStore(store)
	svc.SetRateLimit(settings.GetSpeedLimit())
	svc.SetMP3Bitrate(settings.GetMP3Bitrate())
	svc.SetFFmpegPath(settings.GetFFmpegPath())

	tasks, err := store.Load()
	if err != nil {
		log.Warn("failed to load queue state", map[string]interface{}{"error": err.Error()})
	}
	svc.Restore(tasks)

	return svc, store, nil
}

// resolveKind maps the quality preset and the -audio flag to a task kind and
// the quality string passed to the format selector.
func resolveKind(settings *config.Settings, audioOnly bool) (model.TaskKind, string) {
	preset := settings.GetQualityPreset()
	if audioOnly || preset == config.QualityAudio {
		return model.TaskKindAudio, ""
	}
	return model.TaskKindVideo, string(preset)
}

// enqueueURLs adds each URL to the queue, expanding playlists first.
func enqueueURLs(svc *download.Service, urls []string, kind model.TaskKind, quality string) int {
	code := 0
	parser := platform.NewPlaylistParserService()

	for _, url := range urls {
		if platform.IsPlaylistURL(url) {
			playlist, err := parser.ParsePlaylist(context.Background(), url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to parse playlist %s: %v\n", url, err)
				code = 1
				continue
			}
			added, err := svc.AddPlaylist(playlist, kind, quality)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to enqueue playlist %s: %v\n", url, err)
				code = 1
				continue
			}
			fmt.Printf("added %d video(s) from playlist %q\n", added, playlist.Title)
			continue
		}

		task, err := svc.AddTask(url, kind, quality)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to enqueue %s: %v\n", url, err)
			code = 1
			continue
		}
		fmt.Printf("added %s\n", task.GetDisplayTitle())
	}
	return code
}

// runQueue drives the queue until every task has finished, printing progress
// lines. SIGINT stops active downloads and flushes queue state before exit.
func runQueue(svc *download.Service, store *queue.Store, log *logger.ComponentLogger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.StartPending()

	if svc.Idle() {
		fmt.Println("queue is empty")
		return 0
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\ninterrupted, stopping downloads...")
			svc.StopAll()
			waitForIdle(svc, ShutdownTimeout)
			flushState(svc, store, log)
			return 130
		case <-ticker.C:
			svc.StartPending()
			if svc.Idle() {
				flushState(svc, store, log)
				return summarize(svc.GetAllTasks())
			}
		}
	}
}

// waitForIdle blocks until all tasks wind down or the timeout expires.
func waitForIdle(svc *download.Service, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if svc.Idle() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func flushState(svc *download.Service, store *queue.Store, log *logger.ComponentLogger) {
	if err := store.Save(svc.Snapshot()); err != nil {
		log.Error("failed to save queue state", map[string]interface{}{"error": err.Error()})
	}
}

// summarize prints the final per-task outcome and returns a process exit code.
func summarize(tasks []*model.DownloadTask) int {
	code := 0
	for _, task := range tasks {
		switch task.Status {
		case model.TaskStatusCompleted:
			fmt.Printf("done: %s\n", task.GetDisplayTitle())
		case model.TaskStatusError:
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", task.GetDisplayTitle(), task.LastError)
			code = 1
		case model.TaskStatusStopped:
			fmt.Printf("stopped: %s\n", task.GetDisplayTitle())
		}
	}
	return code
}

// printTasks renders the queue in enqueue order.
func printTasks(tasks []*model.DownloadTask) {
	if len(tasks) == 0 {
		fmt.Println("queue is empty")
		return
	}
	for _, task := range tasks {
		line := fmt.Sprintf("%-11s %3d%%  %s", task.Status, task.Percent, task.GetDisplayTitle())
		if task.Status == model.TaskStatusError && task.LastError != "" {
			line += "  (" + task.LastError + ")"
		}
		fmt.Println(line)
	}
}

// printPartials reports resumable transfer files left in the staging dir.
func printPartials(partialDir string) {
	partials, err := platform.ListPartialDownloads(partialDir)
	if err != nil || len(partials) == 0 {
		return
	}
	fmt.Printf("%d resumable partial file(s) in %s\n", len(partials), partialDir)
}

// progressPrinter throttles per-task progress output so a 500ms callback
// cadence doesn't flood the terminal.
type progressPrinter struct {
	mu   sync.Mutex
	last map[string]int // task ID -> last printed percent
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{last: make(map[string]int)}
}

func (p *progressPrinter) print(task *model.DownloadTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch task.Status {
	case model.TaskStatusDownloading:
		// Only print when progress moved by at least 5 points.
		if task.Percent-p.last[task.ID] < 5 {
			return
		}
		p.last[task.ID] = task.Percent
		fmt.Printf("%3d%%  %-12s ETA %s  %s\n", task.Percent, task.Speed, task.GetETAString(), task.GetDisplayTitle())
	case model.TaskStatusStarting:
		fmt.Printf("starting %s\n", task.GetDisplayTitle())
	}
}

// runConvert handles the convert verb: mp3 | recode | downscale <file>.
func runConvert(settings *config.Settings, args []string, height int) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: convert <mp3|recode|downscale> <file>")
		return 2
	}
	op, input := args[0], args[1]

	svc := convert.NewService()
	svc.SetFFmpegPath(settings.GetFFmpegPath())

	done := make(chan *model.ConversionTask, 1)
	svc.SetUpdateCallback(func(task *model.ConversionTask) {
		if task.Status.IsFinished() {
			select {
			case done <- task:
			default:
			}
		}
	})

	var (
		task *model.ConversionTask
		err  error
	)
	switch op {
	case "mp3":
		task, err = svc.ExtractAudio(input, settings.GetMP3Bitrate())
	case "recode":
		task, err = svc.RecodeMP4(input)
	case "downscale":
		task, err = svc.Downscale(input, height)
	default:
		fmt.Fprintf(os.Stderr, "unknown convert operation: %s\n", op)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "conversion failed to start: %v\n", err)
		return 1
	}

	// SIGINT translates into a stop request so the partial output is cleaned up.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lastPercent := -1
	for {
		select {
		case <-ctx.Done():
			if err := svc.StopConversion(task.ID); err == nil {
				<-done
			}
			fmt.Println("\nconversion stopped")
			return 130
		case finished := <-done:
			if finished.Status == model.TaskStatusError {
				fmt.Fprintf(os.Stderr, "conversion failed: %s\n", finished.LastError)
				return 1
			}
			fmt.Printf("wrote %s\n", finished.OutputPath)
			return 0
		case <-time.After(PollInterval):
			current, ok := svc.GetTask(task.ID)
			if !ok || current.Status != model.TaskStatusDownloading || current.Percent == lastPercent {
				continue
			}
			lastPercent = current.Percent
			fmt.Printf("%3d%%  %s\n", current.Percent, filepath.Base(current.OutputPath))
		}
	}
}
