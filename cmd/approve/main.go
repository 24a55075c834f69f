// Package main provides the approve command-line tool for evaluating a
// single pull request against the auto-approval rules, optionally applying
// the resulting actions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/approvebot/pkg/approve"
	"github.com/codeGROOVE-dev/approvebot/pkg/approve/github"
)

const (
	expectedURLParts = 4
	pullPathIndex    = 2
	pullPathValue    = "pull"
	runTimeout       = 2 * time.Minute
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	dryRun := flag.Bool("dry-run", false, "Evaluate only; never submit an approval")
	botLogin := flag.String("bot", approve.DefaultBotLogin, "Login that authors this bot's reviews")
	tokenFlag := flag.String("token", "", "GitHub token (defaults to GITHUB_TOKEN, then 'gh auth token')")
	flag.Parse()

	if *debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [--debug] [--dry-run] [--bot login] <pull-request-url>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s https://github.com/golang/go/pull/12345\n", os.Args[0])
		os.Exit(1)
	}

	owner, repo, prNumber, err := parsePRURL(flag.Arg(0))
	if err != nil {
		log.Printf("Invalid PR URL: %v", err)
		os.Exit(1)
	}

	token := *tokenFlag
	if token == "" {
		token, err = githubToken()
		if err != nil {
			log.Printf("Failed to get GitHub token: %v", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	client := github.NewClient(token)
	pr, err := client.PullRequest(ctx, owner, repo, prNumber)
	if err != nil {
		log.Printf("Failed to fetch pull request: %v", err)
		cancel()
		os.Exit(1) //nolint:gocritic // False positive: cancel() is called immediately before os.Exit()
	}

	// A manual run is treated as a fresh opened delivery.
	event := &approve.Event{Kind: approve.EventOpened, PullRequest: *pr}
	engine := approve.NewEngine(client, approve.WithBotLogin(*botLogin))

	exitCode := 0
	var result *approve.Result
	if *dryRun {
		reviews, err := client.ListReviews(ctx, pr)
		if err != nil {
			log.Printf("Failed to fetch reviews: %v", err)
			cancel()
			os.Exit(1)
		}
		// Outputs stay at their defaults: nothing was submitted.
		result = &approve.Result{
			Decision: engine.Evaluate(event, reviews, nil),
			Outputs:  approve.Outputs{Approved: "false", PRAuthor: pr.Author},
		}
	} else {
		var processErr error
		result, processErr = engine.Process(ctx, event)
		if processErr != nil {
			// The outputs below still report whatever took effect.
			log.Printf("Processing failed: %v", processErr)
			exitCode = 1
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	if err := encoder.Encode(result); err != nil {
		log.Printf("Failed to encode result: %v", err)
		cancel()
		os.Exit(1)
	}

	emitOutputs(result.Outputs)
	cancel() // Ensure context is cancelled before exit
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// emitOutputs mirrors the action outputs to $GITHUB_OUTPUT when running
// inside a workflow step.
func emitOutputs(outputs approve.Outputs) {
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		return
	}

	lines := strings.Join([]string{
		"approved=" + outputs.Approved,
		"auto_approve_reason=" + outputs.AutoApproveReason,
		"pr_author=" + outputs.PRAuthor,
	}, "\n") + "\n"

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Failed to open GITHUB_OUTPUT: %v", err)
		return
	}
	if _, err := f.WriteString(lines); err != nil {
		log.Printf("Failed to write GITHUB_OUTPUT: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Printf("Failed to close GITHUB_OUTPUT: %v", err)
	}
}

func githubToken() (string, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	cmd := exec.CommandContext(context.Background(), "gh", "auth", "token")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to run 'gh auth token': %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return "", errors.New("no token returned by 'gh auth token'")
	}

	return token, nil
}

func parsePRURL(prURL string) (owner, repo string, prNumber int, err error) { //nolint:revive // Function needs all 4 return values
	u, err := url.Parse(prURL)
	if err != nil {
		return "", "", 0, err
	}

	if u.Host != "github.com" {
		return "", "", 0, errors.New("not a GitHub URL")
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != expectedURLParts || parts[pullPathIndex] != pullPathValue {
		return "", "", 0, errors.New("invalid PR URL format")
	}

	prNumber, err = strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number: %w", err)
	}

	return parts[0], parts[1], prNumber, nil
}
