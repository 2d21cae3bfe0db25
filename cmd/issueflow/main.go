// Command issueflow drives one GitHub issue from triage to merged pull
// request: an LLM agent implements the change with workflow tools, CI
// and an AI review gate the result, and the controller merges or asks
// for fixes until it runs out of iterations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"issueflow/pkg/agent"
	"issueflow/pkg/agent/middleware/metrics"
	"issueflow/pkg/config"
	"issueflow/pkg/cycle"
	"issueflow/pkg/git"
	"issueflow/pkg/github"
	"issueflow/pkg/lifecycle"
	"issueflow/pkg/logx"
	metricsquery "issueflow/pkg/metrics"
	"issueflow/pkg/persistence"
	"issueflow/pkg/review"
	"issueflow/pkg/tools"
	"issueflow/pkg/utils"
	"issueflow/pkg/version"
)

// Exit codes reported to automation wrapping the CLI.
const (
	exitMerged        = 0
	exitFailure       = 1
	exitOutOfAttempts = 2
)

type cliOptions struct {
	issue         int
	projectDir    string
	configPath    string
	maxSteps      int
	maxIterations int
	cooldown      time.Duration
	metricsAddr   string
}

func main() {
	var (
		issueNumber   = flag.Int("issue", 0, "GitHub issue number to process (required)")
		projectDir    = flag.String("projectdir", ".", "Project directory")
		configPath    = flag.String("config", "", "Config file path (default: <projectdir>/.issueflow/config.yaml)")
		maxSteps      = flag.Int("max-steps", 0, "Max tool-loop steps per agent turn (overrides config)")
		maxIterations = flag.Int("max-iterations", 0, "Max CI/review fix iterations (overrides config)")
		cooldown      = flag.Duration("cooldown", 0, "Wait between CI/review polls (overrides config)")
		metricsAddr   = flag.String("metrics-addr", "", "Prometheus listen address, e.g. :9090 (overrides config)")
		tee           = flag.Bool("tee", false, "Output logs to both console and file (default: file only)")
		showVersion   = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("issueflow %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	if *issueNumber <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: issueflow -issue <number> [flags]")
		flag.PrintDefaults()
		os.Exit(exitFailure)
	}

	fmt.Println("⏳ Starting up...")

	// Initialize log file rotation before any logging occurs.
	logsDir := filepath.Join(*projectDir, config.ConfigDirName, "logs")
	if err := logx.InitializeLogFile(logsDir, 4, *tee); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		os.Exit(exitFailure)
	}

	exitCode := run(cliOptions{
		issue:         *issueNumber,
		projectDir:    *projectDir,
		configPath:    *configPath,
		maxSteps:      *maxSteps,
		maxIterations: *maxIterations,
		cooldown:      *cooldown,
		metricsAddr:   *metricsAddr,
	})

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode)
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(opts cliOptions) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logx.NewLogger("issueflow")

	configPath := opts.configPath
	if configPath == "" {
		configPath = config.DefaultPath(opts.projectDir)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	if err := unlockSecrets(opts.projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock secrets: %v\n", err)
		return exitFailure
	}

	if err := github.CheckAuth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "GitHub access check failed: %v\n", err)
		return exitFailure
	}

	workDir := cfg.Workspace.Dir
	if !filepath.IsAbs(workDir) {
		workDir = filepath.Join(opts.projectDir, workDir)
	}
	gitRunner := git.NewRunner(workDir)

	gh, err := resolveGitHubClient(ctx, cfg, gitRunner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve repository: %v\n", err)
		return exitFailure
	}

	metricsListenAddr := cfg.Metrics.ListenAddr
	metricsEnabled := cfg.Metrics.Enabled
	if opts.metricsAddr != "" {
		metricsListenAddr = opts.metricsAddr
		metricsEnabled = true
	}
	var recorder metrics.Recorder = metrics.Nop()
	if metricsEnabled {
		recorder = metrics.NewPrometheusRecorder()
		serveMetrics(ctx, metricsListenAddr, logger)
	}

	factory := agent.NewClientFactory(ctx, cfg, recorder)
	defer factory.Stop()

	issueLabel := strconv.Itoa(opts.issue)
	coderLLM, err := factory.NewClient(cfg.Agents.CoderModel,
		runLabels{issue: issueLabel, component: "coder"}, logx.NewLogger("coder-llm"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create coder client: %v\n", err)
		return exitFailure
	}
	reviewerLLM, err := factory.NewClient(cfg.Agents.ReviewerModel,
		runLabels{issue: issueLabel, component: "reviewer"}, logx.NewLogger("reviewer-llm"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create reviewer client: %v\n", err)
		return exitFailure
	}

	provider, err := tools.NewProvider(tools.Deps{
		Workspace:   workDir,
		Git:         gitRunner,
		GitHub:      gh,
		IssueNumber: opts.issue,
		BaseBranch:  cfg.GitHub.BaseBranch,
	}, tools.CoderTools())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build workflow tools: %v\n", err)
		return exitFailure
	}

	// Repo-local instruction files tune both agents without code changes.
	instr, err := utils.LoadUserInstructions(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load repo instructions: %v\n", err)
		return exitFailure
	}

	reviewer := review.NewAIReviewer(reviewerLLM, gh, logx.NewLogger("reviewer"))
	reviewer.Instructions = utils.FormatUserInstructions(instr, "REVIEWER")
	engine := review.NewEngine(gh, reviewer, logx.NewLogger("review-engine"), recorder)

	// The audit store is best-effort; the run proceeds without it.
	var store cycle.AuditStore
	dbPath := filepath.Join(opts.projectDir, config.ConfigDirName, config.DatabaseFilename)
	if auditStore, storeErr := persistence.Open(dbPath, logx.NewLogger("persistence")); storeErr != nil {
		logger.Warn("Audit store unavailable, continuing without it: %v", storeErr)
	} else {
		defer auditStore.Close()
		store = auditStore
	}

	ctrl, err := cycle.New(cycle.Deps{
		LLM:      coderLLM,
		Tools:    provider,
		GitHub:   gh,
		Decider:  engine,
		Store:    store,
		Logger:   logx.NewLogger("cycle"),
		Recorder: recorder,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build cycle controller: %v\n", err)
		return exitFailure
	}

	runOpts := cycle.Options{
		MaxAgentSteps:    cfg.Agents.MaxAgentSteps,
		MaxFixIterations: cfg.Agents.MaxFixIterations,
		Cooldown:         cfg.Agents.Cooldown.Std(),
		Instructions:     utils.FormatUserInstructions(instr, "CODER"),
	}
	if opts.maxSteps > 0 {
		runOpts.MaxAgentSteps = opts.maxSteps
	}
	if opts.maxIterations > 0 {
		runOpts.MaxFixIterations = opts.maxIterations
	}
	if opts.cooldown > 0 {
		runOpts.Cooldown = opts.cooldown
	}

	if counter, counterErr := utils.NewTokenCounter(cfg.Agents.CoderModel); counterErr != nil {
		logger.Warn("Token counter unavailable, transcript compaction disabled: %v", counterErr)
	} else {
		runOpts.Counter = counter
		if info, known := config.GetModelInfo(cfg.Agents.CoderModel); known && info.MaxContextTokens > 0 {
			// Compact before the transcript crowds out the response budget.
			runOpts.MaxContextTokens = info.MaxContextTokens * 3 / 4
		}
	}

	logger.Info("🚀 issueflow %s processing issue #%d in %s", version.Version, opts.issue, gh.RepoPath())

	res, runErr := ctrl.RunCycle(ctx, opts.issue, runOpts)
	reportUsage(cfg, opts.issue)
	return report(res, runErr)
}

// resolveGitHubClient binds the configured repository, falling back to
// the workspace's origin remote.
func resolveGitHubClient(ctx context.Context, cfg *config.Config, gitRunner *git.Runner) (*github.Client, error) {
	if cfg.GitHub.Repository() != "" {
		return github.NewClient(cfg.GitHub.Owner, cfg.GitHub.Repo), nil
	}
	remoteURL, err := gitRunner.RemoteURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("no repository configured and cannot read origin remote: %w", err)
	}
	client, err := github.NewClientFromRemote(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse origin remote %q: %w", remoteURL, err)
	}
	return client, nil
}

// unlockSecrets decrypts stored credentials when a secrets file exists.
func unlockSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	fmt.Print("Enter password to unlock stored credentials: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println() // New line after password input
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if err := config.UnlockSecrets(projectDir, string(password)); err != nil {
		return err
	}
	fmt.Println("🔓 Credentials unlocked")
	return nil
}

// serveMetrics exposes /metrics until the context is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("📈 Metrics server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		// Graceful shutdown needs a live context; the parent is cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// reportUsage prints what the run spent, when a Prometheus server is
// configured to ask.
func reportUsage(cfg *config.Config, issueNumber int) {
	if !cfg.Metrics.Enabled || cfg.Metrics.PrometheusURL == "" {
		return
	}

	qs, err := metricsquery.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		logx.Warnf("Usage report unavailable: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usage, err := qs.GetIssueMetrics(ctx, issueNumber)
	if err != nil {
		logx.Warnf("Usage report unavailable: %v", err)
		return
	}
	fmt.Printf("💰 LLM usage for issue #%d: %d prompt + %d completion = %d tokens ($%.4f)\n",
		issueNumber, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, usage.TotalCost)
}

// report prints the terminal outcome and maps it to an exit code.
func report(res *cycle.Result, err error) int {
	if res == nil {
		fmt.Fprintf(os.Stderr, "❌ Run aborted: %v\n", err)
		return exitFailure
	}

	fmt.Println()
	switch {
	case res.Completed():
		fmt.Printf("✅ Merged PR #%d after %d fix iteration(s): %s\n",
			res.PRNumber, res.Iterations, res.PRURL)
		return exitMerged
	case res.FinalState == lifecycle.StateMaxIterations:
		fmt.Printf("🛑 Out of fix iterations (%d used); PR #%d needs human review: %s\n",
			res.Iterations, res.PRNumber, res.PRURL)
		return exitOutOfAttempts
	default:
		fmt.Printf("❌ Run ended in %s", res.FinalState)
		if err != nil {
			fmt.Printf(": %v", err)
		}
		fmt.Println()
		return exitFailure
	}
}

// runLabels labels LLM metrics with the run's issue and component.
type runLabels struct {
	issue     string
	component string
}

func (r runLabels) GetCurrentState() string { return "" }
func (r runLabels) GetIssueID() string      { return r.issue }
func (r runLabels) GetID() string           { return r.component }
