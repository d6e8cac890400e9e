// Command crewflow runs and validates declarative multi-agent workflow
// documents.
//
// Usage:
//
//	crewflow run workflow.yaml --input "quantum computing"
//	crewflow validate workflow.yaml
//	crewflow version
//
// The run command executes the workflow with a local deterministic
// completer that echoes each composed prompt, which is enough to exercise
// a document end to end without model credentials. Real model backends
// plug in through the library API (runtime.CompleterFactory).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow"
	"github.com/BaSui01/crewflow/crew"
	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/tool"
	"github.com/BaSui01/crewflow/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	input := fs.String("input", "", "Workflow input, substituted for {input} in task descriptions")
	parallel := fs.Int("parallel", 4, "Maximum concurrently running flow methods")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export (disabled when empty)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: crewflow run [flags] <workflow-file>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	path := fs.Arg(0)

	logger := newLogger(*verbose)
	defer logger.Sync()

	telemetryCfg := telemetry.DefaultConfig()
	if *otlpEndpoint != "" {
		telemetryCfg.Enabled = true
		telemetryCfg.OTLPEndpoint = *otlpEndpoint
	}
	providers, err := telemetry.Init(telemetryCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := crewflow.New(
		tool.NewResolver(tool.NewRegistry(logger), tool.WithResolverLogger(logger)),
		localFactory,
		crewflow.WithLogger(logger),
		crewflow.WithMaxParallel(*parallel),
	)

	output, err := engine.RunFile(ctx, path, *input)

	if serr := providers.Shutdown(context.Background()); serr != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(serr))
	}

	if err != nil {
		printWorkflowError(err)
		os.Exit(1)
	}
	fmt.Println(output)
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: crewflow validate [flags] <workflow-file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	logger := newLogger(*verbose)
	defer logger.Sync()

	engine := crewflow.New(tool.NewResolver(tool.NewRegistry(logger)), localFactory, crewflow.WithLogger(logger))
	if err := engine.ValidateFile(path); err != nil {
		printWorkflowError(err)
		os.Exit(1)
	}
	fmt.Printf("%s is valid\n", path)
}

// localFactory builds the offline completer used by the CLI.
func localFactory(cfg crew.LLMConfig) (crew.Completer, error) {
	return localCompleter{model: cfg.Model}, nil
}

// localCompleter is a deterministic stand-in for a model backend.
type localCompleter struct {
	model string
}

func (c localCompleter) Complete(_ context.Context, req crew.Request) (string, error) {
	return fmt.Sprintf("[dry-run:%s]\n%s", c.model, req.Prompt), nil
}

// printWorkflowError renders validation problems one per line; other
// failures print as a single message.
func printWorkflowError(err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(os.Stderr, "Workflow document is invalid (%d problems):\n", len(verr.Problems))
		for _, p := range verr.Problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func newLogger(verbose bool) *zap.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printVersion() {
	fmt.Printf("crewflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `crewflow - declarative multi-agent workflow engine

Usage:
  crewflow run [flags] <workflow-file>       Run a workflow document
  crewflow validate [flags] <workflow-file>  Validate a workflow document
  crewflow version                           Show version information
  crewflow help                              Show this help

Run 'crewflow run -h' or 'crewflow validate -h' for command flags.
`)
}
