package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"ripeipsearch/config"
	"ripeipsearch/netrange"
	"ripeipsearch/ratelimit"
	"ripeipsearch/ripedb"
)

var version = "dev"

const banner = `
      _                  _                                     _
 _ __(_)_ __   ___      (_)_ __        ___  ___  __ _ _ __ ___| |__
| '__| | '_ \ / _ \_____| | '_ \ _____/ __|/ _ \/ _` + "`" + ` | '__/ __| '_ \
| |  | | |_) |  __/_____| | |_) |_____\__ \  __/ (_| | | | (__| | | |
|_|  |_| .__/ \___|     |_| .__/      |___/\___|\__,_|_|  \___|_| |_|
       |_|                |_|
`

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) IsBoolFlag() bool { return true }

// Set is called with "true" for a bare -v; -v=N sets the level directly.
func (v *verbosity) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		*v = verbosity(n)
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid verbosity %q", s)
	}
	if b {
		*v++
	}
	return nil
}

func (v verbosity) level() log.Level {
	switch {
	case v >= 2:
		return log.DebugLevel
	case v == 1:
		return log.InfoLevel
	default:
		return log.WarnLevel
	}
}

type options struct {
	banner      bool
	details     bool
	merge       bool
	skipInvalid bool
	country     string
	configPath  string
	logFile     string
	delay       float64
	verbosity   verbosity
	showVersion bool
	term        string
}

func parseArgs(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet("ripe-ip-search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Search ip addresses using RIPE DB\n\nUsage: %s [options] <search text...>\n\nOptions:\n", fs.Name())
		fs.PrintDefaults()
	}

	fs.BoolVar(&opts.banner, "banner", true, "show banner")
	fs.Float64Var(&opts.delay, "delay", config.DefaultDelay, "delay between requests in seconds")
	fs.BoolVar(&opts.details, "details", false, "show details as JSON")
	fs.BoolVar(&opts.merge, "merge", false, "print the aggregated networks of all records at the end")
	fs.BoolVar(&opts.skipInvalid, "skip-invalid", false, "skip records with an invalid address range")
	fs.StringVar(&opts.country, "country", "", "only records registered in this country (code or name)")
	fs.StringVar(&opts.configPath, "config", "", "YAML config file")
	fs.StringVar(&opts.logFile, "log-file", "", "also write logs to this file")
	fs.Var(&opts.verbosity, "v", "increase verbosity level (repeatable)")
	fs.BoolVar(&opts.showVersion, "version", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	opts.term = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return opts, fs, nil
}

// flagSet reports whether name was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func loadConfig(opts *options, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if flagSet(fs, "delay") {
		cfg.Delay = opts.delay
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	return cfg, cfg.Validate()
}

func newLogger(stderr io.Writer, cfg *config.Config, level log.Level) (*log.Logger, func()) {
	var w io.Writer = stderr
	closeLog := func() {}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(stderr, lj)
		closeLog = func() { _ = lj.Close() }
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: cfg.LogFile != "",
	})
	return logger, closeLog
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "version: %s\n", version)
		return 0
	}
	if opts.term == "" {
		fmt.Fprintln(stderr, "error: empty search text")
		fs.Usage()
		return 2
	}

	dotenv := config.LoadDotEnv()

	cfg, err := loadConfig(opts, fs)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	logger, closeLog := newLogger(stderr, cfg, opts.verbosity.level())
	defer closeLog()
	if !dotenv {
		logger.Debug("No .env file found. Falling back to system environment variables.")
	}

	if opts.banner {
		fmt.Fprint(stderr, banner)
	}

	var country string
	if opts.country != "" {
		if country, err = resolveCountry(opts.country); err != nil {
			logger.Error("invalid country filter", "err", err)
			return 2
		}
	}

	limiter := ratelimit.New(cfg.RequestDelay())
	limiter.SetLogger(logger)
	client := ripedb.NewClient(
		ripedb.WithBaseURL(cfg.APIURL),
		ripedb.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		ripedb.WithLimiter(limiter),
		ripedb.WithLogger(logger),
		ripedb.WithUserAgent(orDefault(cfg.UserAgent, ripedb.DefaultUserAgent)),
		ripedb.WithAcceptLanguage(orDefault(cfg.AcceptLanguage, ripedb.DefaultAcceptLanguage)),
	)

	s := &searcher{
		client:      client,
		logger:      logger,
		stdout:      stdout,
		pretty:      isTerminal(stdout),
		details:     opts.details,
		merge:       opts.merge,
		skipInvalid: opts.skipInvalid,
		country:     country,
	}
	if err := s.run(ctx, opts.term); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Error("Search interrupted by user")
			return 1
		}
		logger.Error("search failed", "err", err)
		return 1
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type searcher struct {
	client      *ripedb.Client
	logger      *log.Logger
	stdout      io.Writer
	pretty      bool
	details     bool
	merge       bool
	skipInvalid bool
	country     string

	records int
	skipped int
	blocks  []netrange.Block
}

func (s *searcher) run(ctx context.Context, term string) error {
	s.logger.Info("searching", "term", term, "query", ripedb.BuildQuery(term))

	for rec, err := range s.client.Search(ctx, term, nil) {
		if err != nil {
			return err
		}
		s.logger.Debug("record", "primary-key", rec.PrimaryKey(), "lookup-key", rec.LookupKey())

		if s.country != "" && !hasCountry(rec, s.country) {
			continue
		}

		doc, blocks, err := parseRecord(rec)
		if err != nil {
			var invalid *netrange.InvalidNetworkError
			if s.skipInvalid && errors.As(err, &invalid) {
				s.logger.Warn("skipping record", "primary-key", rec.PrimaryKey(), "err", err)
				s.skipped++
				continue
			}
			return fmt.Errorf("record %s: %w", rec.PrimaryKey(), err)
		}
		s.records++

		switch {
		case s.merge:
			s.blocks = append(s.blocks, blocks...)
		case s.details:
			if err := writeDocument(s.stdout, doc, s.pretty); err != nil {
				return err
			}
		default:
			if err := writeNetworks(s.stdout, blocks); err != nil {
				return err
			}
		}
	}

	if s.merge {
		s.blocks = netrange.Aggregate(s.blocks)
		if err := writeNetworks(s.stdout, s.blocks); err != nil {
			return err
		}
	}

	s.logger.Info("Finished!", "records", s.records, "skipped", s.skipped)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
