// Command domshield applies cosmetic filter rules to web pages.
//
// Usage:
//
//	domshield -config domshield.yaml                    # shield pages from YAML config
//	domshield -url https://example.com -rule '...'      # shield a single page
//	domshield -html page.html -rule '...' [-out x.html] # rewrite saved HTML offline
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domshield/debuglog"
	"github.com/hazyhaar/domshield/live"
)

// ruleList collects repeated -rule flags.
type ruleList []string

func (r *ruleList) String() string     { return strings.Join(*r, "; ") }
func (r *ruleList) Set(v string) error { *r = append(*r, v); return nil }

func main() {
	var rules ruleList
	configPath := flag.String("config", "", "path to domshield.yaml config file")
	singleURL := flag.String("url", "", "shield a single URL (stdout sink)")
	htmlPath := flag.String("html", "", "apply rules to an HTML file (- for stdin) and exit")
	outPath := flag.String("out", "-", "where -html writes the rewritten document")
	winners := flag.Int("winners", 0, "with -url: race session size over the rules")
	listen := flag.String("listen", "", "with -url: status server address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Var(&rules, "rule", "filter rule, repeatable (e.g. hide-if-contains /Sponsored/ article)")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: debuglog.ReplaceLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *htmlPath != "":
		err = runHTML(ctx, logger, *htmlPath, *outPath, rules)
	case *singleURL != "":
		err = runSingle(ctx, logger, *singleURL, rules, *winners, *listen)
	case *configPath != "":
		err = runConfig(ctx, logger, *configPath)
	default:
		fmt.Fprintln(os.Stderr, "usage: domshield -config <file> | -url <url> -rule <rule>... | -html <file> -rule <rule>...")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("domshield: fatal", "error", err)
		os.Exit(1)
	}
}

func runHTML(ctx context.Context, logger *slog.Logger, in, out string, rules []string) error {
	var (
		src []byte
		err error
	)
	if in == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(in)
	}
	if err != nil {
		return fmt.Errorf("read html: %w", err)
	}

	cfg := &live.Config{}
	cfg.ApplyDefaults()
	// Reports go to stderr; stdout may carry the document.
	s, err := live.New(cfg, logger, live.NewStdoutSink(os.Stderr))
	if err != nil {
		return err
	}
	defer s.Stop()

	doc, _, err := s.ApplyHTML(ctx, string(src), rules)
	if err != nil {
		return err
	}
	if out == "-" {
		_, err = io.WriteString(os.Stdout, doc)
		return err
	}
	return os.WriteFile(out, []byte(doc), 0o644)
}

func runSingle(ctx context.Context, logger *slog.Logger, url string, rules []string, winners int, listen string) error {
	cfg := &live.Config{
		Pages: []live.PageConfig{{URL: url, Rules: rules, Winners: winners}},
	}
	cfg.Status.Listen = listen
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return serve(ctx, logger, cfg)
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := live.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return serve(ctx, logger, cfg)
}

func serve(ctx context.Context, logger *slog.Logger, cfg *live.Config) error {
	sinks, journal, err := live.BuildSinks(cfg, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("sinks: %w", err)
	}
	var metrics *live.Metrics
	if cfg.Status.Listen != "" {
		metrics = live.NewMetrics()
		sinks = append(sinks, metrics)
	}

	s, err := live.New(cfg, logger, sinks...)
	if err != nil {
		for _, sk := range sinks {
			sk.Close()
		}
		return err
	}

	if cfg.Status.Listen != "" {
		srv := live.NewStatusServer(logger, s, journal, metrics)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Status.Listen); err != nil {
				logger.Error("domshield: status server", "error", err)
			}
		}()
	}

	if err := s.Run(ctx); err != nil {
		s.Stop()
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
