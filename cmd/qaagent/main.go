package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/testforge/qaagent/internal/agent"
	"github.com/testforge/qaagent/internal/config"
	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/ingest"
	"github.com/testforge/qaagent/internal/services/scriptgen"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

const usage = `Usage: qaagent [-verbose] <command> [flags]

Commands:
  ingest [-force] <file>...         build the knowledge base from documents
  tests -query <text> [-k 5]        generate test cases from the knowledge base
  script -cases <file> [-id TC-001] generate Selenium scripts for test cases
  validate <script.py>              statically check a script
  capture -url <url>                render a live page and ingest its HTML
  artifacts [-get <key>|-rm <key>]  list, download or delete stored scripts
  stats                             show collection statistics
  clear                             delete every indexed chunk
`

func main() {
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	// validate needs neither configuration nor backends
	if cmd == "validate" {
		os.Exit(runValidate(args))
	}

	cfg, err := config.Load()
	if err != nil {
		red.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if cmd == "capture" {
		cfg.Capture.Enabled = true
	}

	logger := newLogger(*verbose, cfg.GetLogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := agent.New(ctx, cfg, logger)
	if err != nil {
		red.Printf("❌ Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	var code int
	switch cmd {
	case "ingest":
		code = runIngest(ctx, a, args)
	case "tests":
		code = runTests(ctx, a, args)
	case "script":
		code = runScript(ctx, a, args)
	case "capture":
		code = runCapture(ctx, a, args)
	case "artifacts":
		code = runArtifacts(ctx, a, args)
	case "stats":
		code = runStats(ctx, a)
	case "clear":
		code = runClear(ctx, a)
	default:
		red.Printf("❌ Unknown command %q\n", cmd)
		flag.Usage()
		code = 2
	}

	a.Close()
	logger.Sync()
	os.Exit(code)
}

// newLogger keeps the terminal clean unless -verbose is given
func newLogger(verbose bool, level string) *zap.Logger {
	if !verbose {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
		cfg.OutputPaths = []string{"stderr"}
		cfg.Encoding = "console"
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runIngest(ctx context.Context, a *agent.Agent, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	force := fs.Bool("force", false, "Drop and recreate the collection first")
	fs.Parse(args)

	paths := expandPaths(fs.Args())
	if len(paths) == 0 {
		red.Println("❌ No documents given")
		return 2
	}

	files := make([]ingest.FileInput, 0, len(paths))
	for _, p := range paths {
		ft, err := domain.FileTypeFromName(p)
		if err != nil {
			yellow.Printf("   ⚠ Skipping %s: unsupported file type\n", p)
			continue
		}
		files = append(files, ingest.FileInput{Path: p, Name: filepath.Base(p), Type: ft})
	}

	printStep("Building knowledge base", fmt.Sprintf("%d document(s) → %s", len(files), a.Config.Qdrant.Collection))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("   Processing..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	a.Pipeline.OnFileDone = func(name string, chunks int, err error) {
		bar.Add(1)
	}

	result, err := a.Pipeline.Ingest(ctx, files, *force)
	bar.Finish()

	if result != nil {
		for _, f := range result.Failures {
			yellow.Printf("   ⚠ %s: %v\n", f.Name, f.Err)
		}
	}
	if err != nil {
		red.Printf("   ❌ %v\n", err)
		return 1
	}

	green.Printf("   ✓ Indexed %d chunks from %d document(s)\n", len(result.Chunks), result.Processed)
	for _, s := range result.Sources() {
		dim.Printf("      • %s\n", s)
	}
	return 0
}

func runTests(ctx context.Context, a *agent.Agent, args []string) int {
	fs := flag.NewFlagSet("tests", flag.ExitOnError)
	query := fs.String("query", "", "What to test, e.g. \"discount code feature\"")
	topK := fs.Int("k", 5, "Number of chunks to retrieve")
	output := fs.String("out", "test_cases.json", "Where to write the generated test cases")
	fs.Parse(args)

	if strings.TrimSpace(*query) == "" {
		red.Println("❌ -query is required")
		return 2
	}

	printStep("Generating test cases", *query)
	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("   Asking "+a.Generator.Model()+"..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	stopSpinner := spin(spinner)
	result := a.TestCases.Generate(ctx, *query, *topK)
	stopSpinner()

	if !result.Success {
		red.Printf("   ❌ %s\n", result.Error)
		if result.RawResponse != "" {
			dim.Println("   Raw model output:")
			dim.Println(indent(result.RawResponse, "      "))
		}
		return 1
	}

	for _, tc := range result.TestCases {
		bold.Printf("   %s ", tc.TestID)
		fmt.Printf("%s ", tc.TestName)
		dim.Printf("[%s]\n", tc.TestType)
	}
	dim.Printf("   Sources: %s\n", strings.Join(result.SourceDocuments, ", "))

	data, err := json.MarshalIndent(result.TestCases, "", "  ")
	if err != nil {
		red.Printf("   ❌ %v\n", err)
		return 1
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		red.Printf("   ❌ Writing %s: %v\n", *output, err)
		return 1
	}
	green.Printf("   ✓ %d test case(s) written to %s\n", len(result.TestCases), *output)
	return 0
}

func runScript(ctx context.Context, a *agent.Agent, args []string) int {
	fs := flag.NewFlagSet("script", flag.ExitOnError)
	casesFile := fs.String("cases", "test_cases.json", "Test cases produced by the tests command")
	id := fs.String("id", "", "Only generate the script for this test id")
	outDir := fs.String("out", ".", "Directory for generated scripts")
	fs.Parse(args)

	data, err := os.ReadFile(*casesFile)
	if err != nil {
		red.Printf("❌ Reading %s: %v\n", *casesFile, err)
		return 1
	}
	var cases []domain.TestCase
	if err := json.Unmarshal(data, &cases); err != nil {
		red.Printf("❌ %s is not a test case list: %v\n", *casesFile, err)
		return 1
	}

	if *id != "" {
		var selected []domain.TestCase
		for _, tc := range cases {
			if tc.TestID == *id {
				selected = append(selected, tc)
			}
		}
		if len(selected) == 0 {
			red.Printf("❌ No test case with id %s in %s\n", *id, *casesFile)
			return 1
		}
		cases = selected
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}

	failed := 0
	for _, tc := range cases {
		printStep("Generating script", fmt.Sprintf("%s %s", tc.TestID, tc.TestName))

		script, err := a.Scripts.Generate(ctx, tc)
		if err != nil {
			red.Printf("   ❌ %v\n", err)
			if errors.Is(err, domain.ErrNoMarkupSentinel) {
				dim.Println("      Ingest the page's .html file first, or use the capture command.")
				return 1
			}
			failed++
			continue
		}

		path := filepath.Join(*outDir, script.FileName)
		if err := os.WriteFile(path, []byte(script.Script), 0o644); err != nil {
			red.Printf("   ❌ Writing %s: %v\n", path, err)
			failed++
			continue
		}

		printValidation(script.Validation)
		green.Printf("   ✓ %s\n", path)
		if script.ArtifactURI != "" {
			dim.Printf("      Stored at %s\n", script.ArtifactURI)
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func runValidate(args []string) int {
	if len(args) != 1 {
		red.Println("❌ validate takes exactly one script path")
		return 2
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}

	report := scriptgen.Validate(string(data))
	printValidation(report)
	if !report.Valid {
		return 1
	}
	green.Println("   ✓ Script looks structurally sound")
	return 0
}

func runCapture(ctx context.Context, a *agent.Agent, args []string) int {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	url := fs.String("url", "", "Page to render")
	fs.Parse(args)

	if *url == "" {
		red.Println("❌ -url is required")
		return 2
	}

	printStep("Capturing page", *url)
	page, result, err := a.CaptureAndIngest(ctx, *url)
	if err != nil {
		red.Printf("   ❌ %v\n", err)
		return 1
	}

	green.Printf("   ✓ %q captured (%d bytes), %d chunk(s) indexed\n", page.Title, len(page.HTML), len(result.Chunks))
	return 0
}

func runArtifacts(ctx context.Context, a *agent.Agent, args []string) int {
	fs := flag.NewFlagSet("artifacts", flag.ExitOnError)
	get := fs.String("get", "", "Object key to download, e.g. scripts/test_TC-001.py")
	remove := fs.String("rm", "", "Object key to delete")
	outDir := fs.String("out", ".", "Directory for downloaded scripts")
	fs.Parse(args)

	if a.Store == nil {
		red.Println("❌ Artifact storage is disabled (set STORAGE_ENABLED=true)")
		return 1
	}

	if *remove != "" {
		if err := a.Store.Delete(ctx, *remove); err != nil {
			red.Printf("❌ %v\n", err)
			return 1
		}
		green.Printf("✓ Deleted %s\n", *remove)
		return 0
	}

	if *get == "" {
		keys, err := a.Store.ListScripts(ctx)
		if err != nil {
			red.Printf("❌ %v\n", err)
			return 1
		}
		printStep("Stored scripts", a.Store.Bucket())
		if len(keys) == 0 {
			dim.Println("   (none)")
		}
		for _, k := range keys {
			fmt.Printf("   • %s\n", k)
		}
		return 0
	}

	data, err := a.Store.Download(ctx, *get)
	if errors.Is(err, domain.ErrNotFoundSentinel) {
		red.Printf("❌ No artifact %q in bucket %s\n", *get, a.Store.Bucket())
		dim.Println("   List stored scripts with: qaagent artifacts")
		return 1
	}
	if err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}
	path := filepath.Join(*outDir, filepath.Base(*get))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		red.Printf("❌ Writing %s: %v\n", path, err)
		return 1
	}
	green.Printf("✓ %s (%d bytes)\n", path, len(data))
	return 0
}

func runStats(ctx context.Context, a *agent.Agent) int {
	stats := a.Index.Stats(ctx)

	printStep("Knowledge base", a.Config.Qdrant.BaseURL())
	fmt.Printf("   Collection:  %s\n", stats.Name)
	fmt.Printf("   Status:      %s\n", stats.Status)
	fmt.Printf("   Points:      %d\n", stats.PointsCount)
	fmt.Printf("   Vectors:     %d\n", stats.VectorsCount)
	fmt.Printf("   Embeddings:  %s\n", a.Index.EmbeddingModel())
	fmt.Printf("   LLM:         %s (%s)\n", a.Generator.Model(), a.Config.LLM.Backend())

	cache := a.CacheStats()
	printStep("Caches", "completions and embeddings")
	fmt.Printf("   LLM hits:    %d memory, %d redis, %d misses (%.0f%%)\n",
		cache.LLM.MemoryHits, cache.LLM.RedisHits, cache.LLM.Misses, cache.LLM.CacheHitRate*100)
	fmt.Printf("   Tokens saved: %d\n", cache.LLM.TokensSaved)
	if cache.Embeddings != nil {
		fmt.Printf("   Embeddings:  %v/%v cached, redis %v\n",
			cache.Embeddings["memory_cache_size"], cache.Embeddings["memory_cache_max"], cache.Embeddings["redis_enabled"])
	}
	return 0
}

func runClear(ctx context.Context, a *agent.Agent) int {
	if err := a.Index.Clear(ctx); err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}
	green.Printf("✓ Cleared %s\n", a.Config.Qdrant.Collection)

	if err := a.ClearCaches(ctx); err != nil {
		yellow.Printf("⚠ Clearing caches: %v\n", err)
		return 0
	}
	green.Println("✓ Cleared completion and embedding caches")
	return 0
}

func printStep(title, description string) {
	fmt.Println()
	cyan.Printf("━━━ %s ━━━\n", title)
	fmt.Printf("    %s\n", description)
}

func printValidation(report domain.ValidationReport) {
	for _, e := range report.Errors {
		red.Printf("   ✗ %s\n", e)
	}
	for _, w := range report.Warnings {
		yellow.Printf("   ⚠ %s\n", w)
	}
}

// spin advances an indeterminate bar until the returned func is called
func spin(bar *progressbar.ProgressBar) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
				bar.Add(1)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
		bar.Finish()
	}
}

// expandPaths replaces directories with the files directly inside them
func expandPaths(args []string) []string {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				out = append(out, filepath.Join(arg, e.Name()))
			}
		}
	}
	return out
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+prefix)
}
