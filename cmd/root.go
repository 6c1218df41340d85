// Package cmd contains the CLI for the application, built using the Cobra
// library. Everything interactive (flags, credential prompts, spinner)
// lives here; the pipeline only receives resolved inputs.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/saito-wk/changemoji/internal/config"
	"github.com/saito-wk/changemoji/internal/gateway"
	"github.com/saito-wk/changemoji/internal/gitrepo"
	"github.com/saito-wk/changemoji/internal/markdown"
	"github.com/saito-wk/changemoji/internal/usecase"
)

var version = "0.2.0"

var rootCmd = &cobra.Command{
	Use:   "changemoji",
	Short: "Generates an emoji-annotated release changelog between two git tags.",
	Long: `changemoji diffs the latest release tag against the previous one, finds the
pull requests merged in between, summarizes each with a language model into a
one-line business-facing sentence plus a unique emoji, and prints the result
as Markdown on standard output.`,
	Version:       version,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringP("tag", "t", "", "Target release tag (default: the latest tag)")
	rootCmd.Flags().StringP("repo", "r", ".", "Path to the git repository")
	rootCmd.Flags().StringP("openai-key", "o", "", "OpenAI API key (default: $OPENAI_API_KEY, else prompt)")
	rootCmd.Flags().StringP("github-key", "g", "", "GitHub API token (default: $GITHUB_TOKEN, else prompt)")
	rootCmd.Flags().String("model", "", "Chat model to use for summarization")
	rootCmd.Flags().Int("parallel", 0, "How many pull requests to summarize concurrently")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(io.Discard, "", log.LstdFlags) // Default: discard all logs.
	if verbose {
		logger.SetOutput(os.Stderr) // If verbose, log to standard error.
	}

	repoPath, _ := cmd.Flags().GetString("repo")
	targetTag, _ := cmd.Flags().GetString("tag")

	cfg, err := config.Load(repoPath)
	if err != nil {
		return err
	}
	if flagModel, _ := cmd.Flags().GetString("model"); flagModel != "" {
		cfg.Model = flagModel
	}
	if flagParallel, _ := cmd.Flags().GetInt("parallel"); flagParallel > 0 {
		cfg.Parallelism = flagParallel
	}
	if flagKey, _ := cmd.Flags().GetString("openai-key"); flagKey != "" {
		cfg.OpenAIKey = flagKey
	}
	if flagKey, _ := cmd.Flags().GetString("github-key"); flagKey != "" {
		cfg.GitHubKey = flagKey
	}

	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey, err = promptSecret("OpenAI API key")
		if err != nil {
			return err
		}
	}
	if cfg.GitHubKey == "" {
		cfg.GitHubKey, err = promptSecret("GitHub API token")
		if err != nil {
			return err
		}
	}

	repo, err := gitrepo.Open(repoPath)
	if err != nil {
		return err
	}

	tags, err := repo.Tags()
	if errors.Is(err, gitrepo.ErrNoTags) {
		inform("No tags found in the repository, nothing to describe.")
		return nil
	}
	if err != nil {
		return err
	}

	if targetTag == "" {
		targetTag = tags[len(tags)-1].Name
	}
	previous, ok := gitrepo.PreviousTag(tags, targetTag)
	if !ok {
		inform("No tag precedes %s, nothing to compare against.", targetTag)
		return nil
	}
	logger.Printf("comparing %s..%s", previous.Name, targetTag)

	subjects, err := repo.Subjects(previous.Name, targetTag)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		inform("No commits between %s and %s.", previous.Name, targetTag)
		return nil
	}

	numbers := gitrepo.PullRequestNumbers(subjects)
	if len(numbers) == 0 {
		inform("No merged pull requests found between %s and %s.", previous.Name, targetTag)
		return nil
	}

	owner, name, err := repo.OwnerRepo()
	if err != nil {
		return err
	}
	logger.Printf("repository %s/%s, %d pull requests", owner, name, len(numbers))

	githubGateway, err := gateway.NewGitHubGateway(cfg.GitHubKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	chat := gateway.NewOpenAIClient(cfg.OpenAIKey, cfg.Model, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)

	pipeline := usecase.NewPipeline(
		githubGateway,
		usecase.NewSummarizer(chat, logger),
		usecase.NewReconciler(chat, logger),
		logger,
		cfg.Parallelism,
	)

	stop := startSpinner(verbose, len(numbers))
	batch, err := pipeline.Run(ctx, owner, name, numbers)
	stop()
	if err != nil {
		return err
	}

	if out := markdown.Render(batch); out != "" {
		fmt.Println(out)
	}
	return nil
}

// promptSecret reads a credential from the terminal without echo. An empty
// answer is a hard error; the pipeline must never start with a blank key.
func promptSecret(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", label)
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%s is required", label)
	}
	return string(raw), nil
}

// startSpinner shows progress on stderr during the fan-out stage. Suppressed
// under --verbose (the logger already narrates) and on non-terminals.
func startSpinner(verbose bool, count int) func() {
	if verbose || !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" summarizing %d pull requests...", count)
	s.Start()
	return s.Stop
}

func inform(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}
