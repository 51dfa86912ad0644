package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/app"
	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/llm"
	"github.com/testforge/casegen/internal/services/generation"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func main() {
	godotenv.Load()

	dir := flag.String("dir", ".", "Directory of screenshots, processed in file name order")
	model := flag.String("model", "", "Model backend: claude or gemini (default from PIPELINE_DEFAULT_MODEL)")
	intent := flag.String("intent", "comprehensive", "Testing intent: comprehensive, form-validation, user-journey, integration, business-logic")
	coverage := flag.String("coverage", "comprehensive", "Coverage level: essential, comprehensive, exhaustive")
	types := flag.String("types", "positive,negative,edge_cases", "Comma-separated test types")
	story := flag.String("story", "", "User story to include in the prompt")
	criteria := flag.String("criteria", "", "Acceptance criteria to include in the prompt")
	out := flag.String("out", "", "Write the result as JSON to this file (default: stdout)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	var logger *zap.Logger
	if *verbose {
		logger, _ = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		fail("Loading configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	shots, err := loadScreenshots(*dir)
	if err != nil {
		fail("Reading screenshots: %v", err)
	}

	req := domain.GenerationRequest{
		Screenshots: shots,
		PageNames:   generation.PageNamesFromFiles(shots),
		Scenario: domain.ScenarioContext{
			UserStory:          *story,
			AcceptanceCriteria: *criteria,
			TestingIntent:      domain.TestingIntent(*intent),
			CoverageLevel:      domain.CoverageLevel(*coverage),
			TestTypes:          strings.Split(*types, ","),
		},
	}
	if *model != "" {
		b, err := domain.ParseBackend(*model)
		if err != nil {
			fail("%v", err)
		}
		req.Model = b
	}

	pipeline, err := app.New(ctx, cfg, nil, logger, app.Options{})
	if err != nil {
		fail("%v", err)
	}
	defer pipeline.Close()

	cyan.Printf("casegen: %d screenshot(s) from %s\n", len(shots), *dir)
	for i, name := range req.PageNames {
		dim.Printf("   %2d. %s\n", i+1, name)
	}
	fmt.Println()

	bar := progressbar.NewOptions(len(shots),
		progressbar.OptionSetDescription("   Reading text..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("   Generating test cases..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
	)
	stopSpinner := make(chan struct{})
	onProgress := func(done, total int) {
		bar.Set(done)
		if done == total {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
			go spin(spinner, stopSpinner)
		}
	}

	start := time.Now()
	result, err := pipeline.Generator.ExtractAndGenerate(ctx, req, onProgress)
	close(stopSpinner)
	spinner.Finish()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		reportError(err)
		os.Exit(1)
	}

	printSummary(result, time.Since(start))
	if line := claudeUsage(pipeline.Backends); line != "" {
		dim.Printf("    %s\n\n", line)
	}

	if err := writeResult(result, *out); err != nil {
		fail("Writing result: %v", err)
	}
	if *out != "" {
		green.Printf("✓ Saved %s\n", *out)
	}
}

func spin(bar *progressbar.ProgressBar, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			bar.Add(1)
		}
	}
}

// claudeUsage summarizes Claude token spend for this run. Empty when Claude
// is not configured or was never called.
func claudeUsage(backends *llm.Registry) string {
	b, err := backends.Get(domain.BackendClaude)
	if err != nil {
		return ""
	}
	claude, ok := b.(*llm.ClaudeClient)
	if !ok {
		return ""
	}
	stats := claude.Stats()
	if stats.Requests == 0 {
		return ""
	}
	return fmt.Sprintf("Claude:   %d request(s), %d in / %d out tokens, ~$%.4f",
		stats.Requests, stats.InputTokens, stats.OutputTokens, stats.EstimatedCostUSD())
}

// loadScreenshots reads every image in dir in lexical file name order
func loadScreenshots(dir string) ([]domain.Screenshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	if len(names) > domain.MaxScreenshots {
		return nil, fmt.Errorf("%d images found, at most %d are allowed", len(names), domain.MaxScreenshots)
	}

	shots := make([]domain.Screenshot, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		shots = append(shots, domain.Screenshot{
			Name:     name,
			Data:     data,
			MimeType: imageTypes[strings.ToLower(filepath.Ext(name))],
		})
	}
	return shots, nil
}

func printSummary(result *domain.GenerationResult, elapsed time.Duration) {
	fmt.Println()
	bold.Printf("━━━ %d test cases (estimated %d) ━━━\n", len(result.AllTestCases), result.EstimatedCount)
	fmt.Printf("    Session:  %s\n", result.SessionID)
	fmt.Printf("    Model:    %s\n", result.Model)
	fmt.Printf("    Domain:   %s\n", result.Domain)
	fmt.Printf("    Duration: %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()

	buckets := []struct {
		label string
		items []string
	}{
		{"Functional", result.Functional},
		{"End-to-End", result.EndToEnd},
		{"Integration", result.Integration},
		{"UI", result.UI},
	}
	for _, b := range buckets {
		if len(b.items) == 0 {
			continue
		}
		cyan.Printf("   %s (%d)\n", b.label, len(b.items))
		for _, item := range b.items {
			dim.Printf("      • %s\n", item)
		}
	}
	fmt.Println()
}

func reportError(err error) {
	red.Printf("✗ Generation failed: %v\n", err)
	switch domain.Classify(err) {
	case domain.ActionRetryLater:
		if appErr, ok := domain.AsAppError(err); ok && appErr.RetryAfter > 0 {
			yellow.Printf("   The model is busy. Retry in %s.\n", appErr.RetryAfter)
		} else {
			yellow.Println("   The model is busy. Retry later.")
		}
	case domain.ActionRetryNow:
		yellow.Println("   The model reply could not be parsed. Running again usually helps.")
	}
}

func writeResult(result *domain.GenerationResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fail(format string, args ...any) {
	red.Printf("✗ "+format+"\n", args...)
	os.Exit(1)
}
