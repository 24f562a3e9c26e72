package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/Abhaythakor/fingerprintweb/clues"
	"github.com/Abhaythakor/fingerprintweb/config"
	"github.com/Abhaythakor/fingerprintweb/detect"
	"github.com/Abhaythakor/fingerprintweb/group"
	"github.com/Abhaythakor/fingerprintweb/input"
	"github.com/Abhaythakor/fingerprintweb/metrics"
	"github.com/Abhaythakor/fingerprintweb/model"
	"github.com/Abhaythakor/fingerprintweb/output"
	"github.com/Abhaythakor/fingerprintweb/progress"
	"github.com/Abhaythakor/fingerprintweb/sink"
	"github.com/Abhaythakor/fingerprintweb/util"
)

const resumeFile = ".fingerprintweb.resume"

// options mirrors the command-line flags. Defaults come from config.Load.
type options struct {
	urls         string
	limit        string
	exclude      string
	outputFile   string
	cluesPath    string
	cluesURL     string
	timeout      float64 // seconds
	format       string
	group        bool
	domain       bool
	offline      bool
	wappalyzer   bool
	concurrency  int
	maxRedirects int
	rate         float64
	cpus         int
	userAgent    string
	insecure     bool
	metricsAddr  string
	logFile      string
	logLevel     string
	silent       bool
	verbose      bool
	noColor      bool
	resume       bool
	update       bool
	showVersion  bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "fingerprintweb [URLS|@FILE|-] [flags]",
	Short: "Detect the technologies behind web pages",
	Long: `fingerprintweb identifies web servers, frameworks, CMSs and libraries from HTTP
responses using a clue database of header, cookie, meta, script, URL and body patterns.

Targets are given as a comma-separated list, @file, a file with one URL per line, or - for
stdin. Redirects are followed within --limit / --exclude bounds. With --offline the input is
a capture on disk (raw HTTP dumps, katana or fff output, or plain body files).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		util.SetColorEnabled(!opts.noColor && util.IsTerminal(os.Stderr))

		switch {
		case opts.verbose:
			util.SetLogLevel(util.LevelDebug)
		case opts.silent:
			util.SetLogLevel(util.LevelError)
		default:
			level, err := util.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			util.SetLogLevel(level)
		}

		if opts.logFile != "" {
			f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			util.SetLogFile(f)
		}

		if opts.cpus > 0 {
			util.Debug("Limiting CPU usage to %d cores", opts.cpus)
			runtime.GOMAXPROCS(opts.cpus)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.showVersion {
			printVersion()
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if opts.update {
			dst, err := cluesDestination()
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 60 * time.Second, Transport: detect.NewTransport(opts.insecure)}
			if err := detect.UpdateClues(ctx, client, opts.cluesURL, dst); err != nil {
				util.Fatal("Failed to update clues: %v", err)
			}
			return nil
		}

		source := opts.urls
		if source == "" && len(args) > 0 {
			source = args[0]
		}
		if source == "" && !opts.offline && isInputFromPipe() {
			source = "-"
		}
		if source == "" {
			return errors.New("no input provided; use 'fingerprintweb URL', -u @file or pipe URLs on stdin")
		}
		return run(ctx, source)
	},
}

func run(ctx context.Context, source string) error {
	rules := loadRules()

	detector, err := newDetector(rules)
	if err != nil {
		return err
	}

	var urls []string
	inputType := model.InputTypeOnline
	if opts.offline {
		inputType = model.InputTypeOffline
		responses, format, err := input.LoadOffline(source)
		if err != nil {
			return err
		}
		util.Info("Loaded %d captured responses (%s) from %s", len(responses), format, source)
		detector.Fetcher = detect.NewOfflineFetcher(responses)
		urls = input.URLs(responses)
	} else {
		targets, err := input.Resolve(source, os.Stdin)
		if err != nil {
			return err
		}
		urls = input.TargetURLs(targets)
	}
	if len(urls) == 0 {
		return errors.New("no valid targets")
	}

	resumeMgr, err := util.NewResumeManager(resumeFile, opts.resume)
	if err != nil {
		return err
	}
	resumeMgr.SaveTotal(len(urls))
	pending := resumeMgr.Pending(urls)
	if skipped := len(urls) - len(pending); skipped > 0 {
		util.Info("Resuming: skipping %d already scanned URLs", skipped)
	}
	rescanPrimary := false
	if opts.group {
		pending, rescanPrimary = withPrimary(urls, pending)
	}

	mode := model.ModeAll
	if opts.domain {
		mode = model.ModeDomain
	}
	meta := model.NewMeta(config.ToolName, config.Version, mode, inputType)
	meta.Grouped = opts.group

	writers, err := openWriters(meta)
	if err != nil {
		resumeMgr.Close()
		return err
	}

	sinks, err := sink.FromEnv(meta.ScanID)
	if err != nil {
		resumeMgr.Close()
		return err
	}
	fanout := sink.Start(ctx, sinks)
	defer func() {
		if err := fanout.Close(); err != nil {
			util.Warn("Closing sinks: %v", err)
		}
	}()

	if opts.metricsAddr != "" {
		detector.Metrics = metrics.New()
		srv := metrics.NewServer(opts.metricsAddr, detector.Metrics)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tracker := progress.NewTracker(os.Stderr, len(pending), !opts.silent && util.IsTerminal(os.Stderr), !opts.noColor)
	detector.OnResult = func(i int, r model.Result) {
		if rescanPrimary && i == 0 {
			tracker.Observe(r)
			return
		}
		fanout.Publish(ctx, r)
		if r.ErrorType != detect.ErrorCanceled {
			resumeMgr.MarkCompleted(r.URL)
		}
		tracker.Observe(r)
	}

	util.Debug("Scanning %d URLs with %d workers (scan %s)", len(pending), detector.Concurrency, meta.ScanID)
	batch := detector.DetectMany(ctx, pending)
	tracker.Done()

	if opts.group {
		batch = group.Group(batch)
		if rescanPrimary {
			batch = batch[1:]
		}
	}
	for _, w := range writers {
		if err := w.Write(batch); err != nil {
			util.Warn("Error writing results: %v", err)
		}
	}
	for _, w := range writers {
		if err := w.Close(); err != nil {
			util.Warn("Error finalizing output: %v", err)
		}
	}

	if ctx.Err() != nil {
		resumeMgr.Close()
		util.Warn("Scan interrupted; rerun with --resume to continue")
		return nil
	}
	resumeMgr.Cleanup()
	return nil
}

// withPrimary puts the first input URL back at the head of pending when a resumed run already
// finished it, so grouping keeps the same primary page. The flag reports that it was added.
func withPrimary(urls, pending []string) ([]string, bool) {
	if len(urls) == 0 || len(pending) == 0 || pending[0] == urls[0] {
		return pending, false
	}
	return append([]string{urls[0]}, pending...), true
}

// loadRules aborts on a malformed clue file before any URL is fetched.
func loadRules() *clues.RuleSet {
	path := opts.cluesPath
	if path == "" {
		if p, err := detect.DefaultCluesPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	var (
		rules *clues.RuleSet
		err   error
	)
	if path == "" {
		rules, err = clues.Default()
	} else {
		util.Debug("Loading clues from %s", path)
		rules, err = clues.LoadFile(path)
	}
	if err != nil {
		var loadErr *clues.LoadError
		if errors.As(err, &loadErr) {
			util.Fatal("Invalid clue file: %v", loadErr)
		}
		util.Fatal("Failed to load clues: %v", err)
	}
	util.Debug("Loaded %d clues", rules.Len())
	return rules
}

func newDetector(rules *clues.RuleSet) (*detect.Detector, error) {
	d := &detect.Detector{
		Fetcher: detect.NewHTTPFetcher(detect.FetcherOptions{
			UserAgent: opts.userAgent,
			Insecure:  opts.insecure,
		}),
		Engines:      []detect.Engine{detect.NewClueEngine(rules)},
		Timeout:      time.Duration(opts.timeout * float64(time.Second)),
		Concurrency:  opts.concurrency,
		MaxRedirects: opts.maxRedirects,
		Logger:       util.Default(),
	}

	var err error
	if d.Limit, err = compileMask("limit", opts.limit); err != nil {
		return nil, err
	}
	if d.Exclude, err = compileMask("exclude", opts.exclude); err != nil {
		return nil, err
	}

	if opts.wappalyzer {
		engine, err := detect.NewWappalyzerEngine()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Wappalyzer engine: %w", err)
		}
		d.Engines = append(d.Engines, engine)
	}
	if opts.rate > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(opts.rate), 1)
	}
	return d, nil
}

func compileMask(name, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s expression: %w", name, err)
	}
	return re, nil
}

// openWriters returns the primary writer and, when writing to a file, a terminal view as well.
func openWriters(meta model.Meta) ([]output.Writer, error) {
	stdoutColor := !opts.noColor && util.IsTerminal(os.Stdout)

	primary, err := output.New(output.Options{
		Format: opts.format,
		Path:   opts.outputFile,
		Append: opts.resume,
		Color:  stdoutColor,
		Meta:   meta,
	})
	if err != nil {
		return nil, err
	}
	writers := []output.Writer{primary}

	if opts.outputFile != "" && opts.outputFile != "-" && !opts.silent {
		cli, err := output.New(output.Options{Format: "cli", Color: stdoutColor})
		if err != nil {
			primary.Close()
			return nil, err
		}
		writers = append(writers, cli)
	}

	for _, w := range writers {
		w.SetMode(meta.Mode)
	}
	return writers, nil
}

func cluesDestination() (string, error) {
	if opts.cluesPath != "" {
		return opts.cluesPath, nil
	}
	return detect.DefaultCluesPath()
}

func printVersion() {
	fmt.Printf("%s version %s\n", config.ToolName, config.Version)
	if rules, err := clues.Default(); err == nil {
		fmt.Printf("Embedded clues: %d\n", rules.Len())
	}
	if p, err := cluesDestination(); err == nil {
		fmt.Printf("Clue file %s: %s\n", p, detect.CluesInfo(p))
	}
}

// isInputFromPipe reports whether stdin is a pipe rather than a terminal.
func isInputFromPipe() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cfg := config.Load()
	flags := rootCmd.Flags()

	flags.StringVarP(&opts.urls, "url", "u", "", "Target URLs: comma-separated list, @file, file path or - for stdin")
	flags.StringVarP(&opts.limit, "limit", "l", "", "Only follow redirects whose target matches this regular expression")
	flags.StringVarP(&opts.exclude, "exclude", "x", "", "Never follow redirects whose target matches this regular expression")
	flags.StringVarP(&opts.outputFile, "output", "o", "", "Write output to the specified file (default stdout)")
	flags.StringVarP(&opts.cluesPath, "clues", "c", cfg.CluesPath, "Clue file (JSON or YAML) to use instead of the installed/embedded one")
	flags.Float64VarP(&opts.timeout, "timeout", "t", cfg.Timeout.Seconds(), "Per-request timeout in seconds, applied to each redirect hop")
	flags.StringVarP(&opts.format, "format", "f", cfg.Format, "Output format: json, jsonl, csv, txt, md, cli")
	flags.BoolVarP(&opts.group, "group", "g", false, "Drop technologies from other URLs that the first URL already reports")
	flags.BoolVar(&opts.domain, "domain", false, "Aggregate and output results per unique domain")
	flags.BoolVar(&opts.offline, "offline", false, "Treat the input as captured responses on disk (raw HTTP, katana, fff, body files)")
	flags.BoolVar(&opts.wappalyzer, "wappalyzer", false, "Also run ProjectDiscovery's wappalyzergo fingerprints")

	flags.IntVar(&opts.concurrency, "concurrency", cfg.Concurrency, "Number of URLs processed in parallel (alias --threads)")
	flags.IntVar(&opts.maxRedirects, "max-redirects", cfg.MaxRedirects, "Maximum redirects followed per URL")
	flags.Float64Var(&opts.rate, "rate", cfg.Rate, "Maximum requests per second across all workers (0 = unlimited)")
	flags.IntVar(&opts.cpus, "cpus", 0, "Limit number of CPU cores to use (GOMAXPROCS)")
	flags.StringVar(&opts.userAgent, "user-agent", cfg.UserAgent, "User-Agent header sent with every request")
	flags.BoolVar(&opts.insecure, "insecure", cfg.Insecure, "Skip TLS certificate verification")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address, e.g. :9090")

	flags.StringVar(&opts.logFile, "log-file", "", "Also append log output to this file")
	flags.BoolVar(&opts.silent, "silent", false, "Display results only (suppress progress and info logs)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose debug logging")
	flags.BoolVar(&opts.noColor, "no-color", cfg.NoColor, "Disable colored output")
	flags.BoolVar(&opts.resume, "resume", false, "Skip URLs finished by an interrupted run ("+resumeFile+")")
	flags.BoolVar(&opts.update, "update", false, "Download the latest clue file and exit")
	flags.StringVar(&opts.cluesURL, "clues-url", cfg.CluesURL, "Source used by --update")
	flags.BoolVar(&opts.showVersion, "version", false, "Show version and clue information")

	opts.logLevel = cfg.LogLevel
	flags.SetNormalizeFunc(flagAliases)
}

// flagAliases accepts the older spellings of renamed flags.
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "threads":
		name = "concurrency"
	case "ua":
		name = "user-agent"
	case "clue-file":
		name = "clues"
	}
	return pflag.NormalizedName(name)
}
