package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"webscout/internal/adapter/mcpserver"
	"webscout/internal/adapter/tool"
	"webscout/internal/adapter/web"
	"webscout/internal/infra/config"
	"webscout/internal/infra/logger"
	"webscout/internal/infra/tracer"
	"webscout/internal/security"
	"webscout/internal/usecase/websearch"
)

const version = "0.3.0"

// errResultFailed marks a command whose result carried an error value. The
// message has already been printed.
var errResultFailed = errors.New("result carried an error")

func main() {
	inv, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nRun 'webscout --help' for usage information.\n", err)
		os.Exit(2)
	}

	switch inv.Command {
	case "", "help":
		showUsage()
		return
	case "doctor":
		if err := runDoctor(os.Stdout, inv); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(inv); err != nil {
		if !errors.Is(err, errResultFailed) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", inv.Command, err)
		}
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`webscout - web search and page extraction for agents

USAGE:
    webscout COMMAND [ARGS] [FLAGS]

COMMANDS:
    search QUERY     Search the web (DuckDuckGo HTML endpoint)
    code QUERY       Search programming reference sites
    fetch URL        Fetch a public page and print its readable text
    serve            Serve web_search, code_search and web_fetch over MCP stdio
    doctor           Run health checks on your setup

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./webscout.yaml)
    --json           Print results as JSON
    -n N             Number of search results (1-20, default 5)
    --render         Render fetched text as Markdown (fetch only)

CONFIGURATION:
    Config file: ./webscout.yaml
    Environment: WEBSCOUT_* variables override config

EXAMPLES:
    webscout search "golang generics" -n 10
    webscout code "context deadline exceeded"
    webscout fetch https://go.dev/doc/effective_go --render
    webscout serve --config /etc/webscout.yaml`)
}

// invocation is a parsed command line.
type invocation struct {
	Command    string
	Args       []string
	ConfigPath string
	JSON       bool
	Render     bool
	MaxResults int
}

// parseArgs splits args into a command, its positional arguments and flags.
// Flags may appear anywhere after the command.
func parseArgs(args []string) (invocation, error) {
	inv := invocation{ConfigPath: defaultConfigPath()}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-h" || arg == "--help":
			return invocation{Command: "help"}, nil
		case arg == "--json":
			inv.JSON = true
		case arg == "--render":
			inv.Render = true
		case arg == "--config":
			if i+1 >= len(args) {
				return inv, errors.New("--config requires a path")
			}
			i++
			inv.ConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			inv.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "-n":
			if i+1 >= len(args) {
				return inv, errors.New("-n requires a number")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return inv, fmt.Errorf("invalid result count %q", args[i])
			}
			inv.MaxResults = n
		case strings.HasPrefix(arg, "-") && arg != "-":
			return inv, fmt.Errorf("unknown flag: %s", arg)
		case inv.Command == "":
			inv.Command = arg
		default:
			inv.Args = append(inv.Args, arg)
		}
	}

	switch inv.Command {
	case "", "help", "serve", "doctor":
	case "search", "code":
		if len(inv.Args) == 0 {
			return inv, fmt.Errorf("%s requires a query", inv.Command)
		}
	case "fetch":
		if len(inv.Args) != 1 {
			return inv, errors.New("fetch requires exactly one URL")
		}
	default:
		return inv, fmt.Errorf("unknown command: %s", inv.Command)
	}
	return inv, nil
}

// query joins the positional arguments of a search command.
func (inv invocation) query() string { return strings.Join(inv.Args, " ") }

func defaultConfigPath() string {
	if p := os.Getenv("WEBSCOUT_CONFIG"); p != "" {
		return p
	}
	return "webscout.yaml"
}

func run(inv invocation) error {
	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	newLogger := logger.New
	if inv.Command == "serve" {
		newLogger = logger.NewProtocolSafe
	}
	log, closeLog, err := newLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, tracer.Options{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	audit, err := openAudit(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if audit != nil {
		defer audit.Close()
	}

	svc := newService(cfg.Web, audit, log)

	switch inv.Command {
	case "search":
		return printSearch(os.Stdout, svc.Search(ctx, inv.query(), inv.MaxResults), inv.JSON)
	case "code":
		return printSearch(os.Stdout, svc.SearchCode(ctx, inv.query()), inv.JSON)
	case "fetch":
		return printPage(os.Stdout, svc.FetchPage(ctx, inv.Args[0]), inv.JSON, inv.Render)
	case "serve":
		return serve(ctx, svc, cfg.Web, log)
	}
	return fmt.Errorf("unknown command: %s", inv.Command)
}

// openAudit opens the audit log and applies its retention policy. It returns
// nil when auditing is disabled.
func openAudit(cfg config.AuditConfig, log *slog.Logger) (*security.FileAuditLogger, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	maxSize, err := security.ParseRetentionMaxSize(cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	audit, err := security.NewFileAuditLogger(cfg.Path, security.RetentionPolicy{MaxAge: cfg.MaxAge, MaxSize: maxSize})
	if err != nil {
		return nil, err
	}
	if removed, err := audit.EnforceRetention(); err != nil {
		log.Warn("audit retention failed", "path", cfg.Path, "error", err)
	} else if removed > 0 {
		log.Info("audit retention applied", "path", cfg.Path, "removed", removed)
	}
	return audit, nil
}

// newService wires the fetcher, the URL guard and the facade from config.
// audit may be nil.
func newService(cfg config.WebConfig, audit *security.FileAuditLogger, log *slog.Logger) *websearch.Service {
	fcfg := web.FetcherConfig{
		BaseTimeout:       cfg.Fetch.BaseTimeout,
		MaxRedirects:      cfg.Fetch.MaxRedirects,
		MaxRetries:        cfg.Fetch.MaxRetries,
		PendingDelay:      cfg.Fetch.PendingDelay,
		BackoffDelay:      cfg.Fetch.BackoffDelay,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
		BreakerFailures:   cfg.CircuitBreaker.MaxFailures,
		BreakerTimeout:    cfg.CircuitBreaker.Timeout,
		RedirectValidator: security.ValidateURL,
	}
	if cfg.SSRFSafeDial {
		fcfg.Transport = security.NewSSRFSafeTransport()
	}

	scfg := websearch.Config{
		Endpoint:  cfg.SearchEndpoint,
		CacheSize: cfg.Cache.Size,
		CacheTTL:  cfg.Cache.TTL,
		RateLimit: cfg.RateLimit.RequestsPerSecond,
		RateBurst: cfg.RateLimit.Burst,
	}
	if audit != nil {
		scfg.Audit = audit
	}
	return websearch.NewService(web.NewFetcher(fcfg, log), scfg, log)
}

func serve(ctx context.Context, svc *websearch.Service, cfg config.WebConfig, log *slog.Logger) error {
	reg, err := tool.NewWebRegistry(svc, cfg.FetchCallsPerMinute, log)
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	srv := mcpserver.New("webscout", version, reg, log)
	log.Info("serving MCP over stdio", "tools", len(reg.List()))

	err = srv.Serve(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("MCP server stopped")
	return nil
}
