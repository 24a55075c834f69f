// Package approve implements the decision engine that auto-approves GitHub
// pull requests whose descriptions carry an explicit auto-approve reason.
// The engine is deterministic: a decision is a pure function of the incoming
// event, the reviews fetched for it, and static configuration. All GitHub
// access goes through the GitHub interface so callers control transport and
// tests substitute fakes.
package approve

import (
	"context"
	"fmt"
	"log/slog"
)

// Defaults used when the corresponding option is not supplied.
const (
	// DefaultBotLogin is the account whose reviews count as the engine's
	// own. Matching is exact; GitHub App installations author reviews under
	// the "[bot]" suffixed login.
	DefaultBotLogin = "autoapproval[bot]"

	// DefaultApprovedLabel marks pull requests the engine approved.
	DefaultApprovedLabel = "auto_approved"
)

// defaultBlocklist disqualifies a pull request when a term appears in its
// title or exactly matches one of its labels.
var defaultBlocklist = []string{"do-not-merge", "dnl", "wip"}

// GitHub is the platform surface the engine consumes. pkg/approve/github
// implements it against the REST API.
type GitHub interface {
	// ListReviews returns every review currently recorded on the pull
	// request, in submission order.
	ListReviews(ctx context.Context, pr *PullRequest) ([]Review, error)

	// SubmitApproval records an approving review authored by the engine's
	// identity.
	SubmitApproval(ctx context.Context, pr *PullRequest) error

	// ApplyLabels attaches the given labels. The labels must already exist
	// in the repository.
	ApplyLabels(ctx context.Context, pr *PullRequest, labels []string) error

	// RepoConfig fetches the repository's auto-approval rule file, or
	// (nil, nil) when the repository has none.
	RepoConfig(ctx context.Context, pr *PullRequest) (*RepoConfig, error)
}

// Rule is one predicate in the decision funnel. It reports whether the event
// may continue toward approval; a false result carries the reason it was
// skipped. Extra rules registered via WithRules run after the built-in
// checks and may consult the repository config.
type Rule func(event *Event, reviews []Review, cfg *RepoConfig) (ok bool, skip string)

// Engine decides whether pull requests get auto-approved and carries out the
// resulting actions. It holds no per-pull-request state between calls.
type Engine struct {
	github      GitHub
	logger      *slog.Logger
	botLogin    string
	blocklist   []string
	applyLabels []string
	extraRules  []Rule
}

// Option is a function that configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBotLogin sets the login whose reviews count as the engine's own.
func WithBotLogin(login string) Option {
	return func(e *Engine) {
		if login != "" {
			e.botLogin = login
		}
	}
}

// WithBlocklist replaces the default blocklist terms. Terms are normalized
// to lower case; an empty slice disables the blocklist entirely.
func WithBlocklist(terms []string) Option {
	return func(e *Engine) {
		e.blocklist = lowerTerms(terms)
	}
}

// WithApplyLabels replaces the labels applied after a first approval. An
// empty slice disables labeling.
func WithApplyLabels(labels []string) Option {
	return func(e *Engine) {
		e.applyLabels = labels
	}
}

// WithRules appends extra funnel rules evaluated after the built-in checks.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.extraRules = append(e.extraRules, rules...)
	}
}

// NewEngine creates an Engine using the given GitHub collaborator.
func NewEngine(github GitHub, opts ...Option) *Engine {
	e := &Engine{
		github:      github,
		logger:      slog.Default(),
		botLogin:    DefaultBotLogin,
		blocklist:   lowerTerms(defaultBlocklist),
		applyLabels: []string{DefaultApprovedLabel},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// freshDelivery drops the redundant deliveries GitHub fans out from the
// creation transaction. For kinds other than opened and reopened, equal
// created and updated timestamps mean nothing happened since creation, so
// the canonical opened delivery already covered this pull request.
func (e *Engine) freshDelivery(event *Event, _ []Review, _ *RepoConfig) (bool, string) {
	if event.Kind == EventOpened || event.Kind == EventReopened {
		return true, ""
	}
	pr := &event.PullRequest
	if pr.CreatedAt.Equal(pr.UpdatedAt) {
		return false, "duplicate delivery: pull request unchanged since creation"
	}
	return true, ""
}

// notBlocked rejects pull requests matching a blocklist term.
func (e *Engine) notBlocked(event *Event, _ []Review, _ *RepoConfig) (bool, string) {
	term, where := blockedTerm(&event.PullRequest, e.blocklist)
	if term != "" {
		return false, fmt.Sprintf("blocklist term %q matched %s", term, where)
	}
	return true, ""
}

// noForeignApproval rejects pull requests that already carry an approving
// review from any author. Dismissal deliveries are exempt so the engine can
// re-approve after its own approval was dismissed.
func (e *Engine) noForeignApproval(event *Event, reviews []Review, _ *RepoConfig) (bool, string) {
	if event.Kind == EventReviewDismissed {
		return true, ""
	}
	for _, review := range reviews {
		if review.State == ReviewApproved {
			return false, fmt.Sprintf("already approved by %s", review.Author)
		}
	}
	return true, ""
}

// hasReason rejects pull requests whose description carries no usable
// auto-approve reason.
func (e *Engine) hasReason(event *Event, _ []Review, _ *RepoConfig) (bool, string) {
	if ExtractReason(event.PullRequest.Body) == "" {
		return false, "no auto-approve reason in description"
	}
	return true, ""
}

// funnel returns the ordered rule chain: built-in checks first, then any
// extra rules.
func (e *Engine) funnel() []Rule {
	rules := []Rule{e.freshDelivery, e.notBlocked, e.noForeignApproval, e.hasReason}
	return append(rules, e.extraRules...)
}

// ownReviews counts reviews authored by the engine's identity, in any state.
func (e *Engine) ownReviews(reviews []Review) int {
	count := 0
	for _, review := range reviews {
		if review.Author == e.botLogin {
			count++
		}
	}
	return count
}

// Evaluate runs the decision funnel over an event and its fetched reviews.
// It performs no network calls and has no side effects: identical inputs
// always produce the identical decision. cfg may be nil.
func (e *Engine) Evaluate(event *Event, reviews []Review, cfg *RepoConfig) Decision {
	for _, rule := range e.funnel() {
		if ok, skip := rule(event, reviews, cfg); !ok {
			return Decision{Action: ActionNone, Skip: skip}
		}
	}

	reason := ExtractReason(event.PullRequest.Body)
	switch {
	case e.ownReviews(reviews) == 0:
		return Decision{Action: ActionApproveAndLabel, Reason: reason}
	case event.Kind == EventReviewDismissed:
		return Decision{Action: ActionReapprove, Reason: reason}
	default:
		return Decision{Action: ActionNone, Skip: "already reviewed and nothing was dismissed"}
	}
}

// Process handles one delivery end to end: snapshot-only checks first, then
// the live review fetch, the full funnel, and finally the approval and label
// calls the decision demands. Rejected events never reach the network.
//
// The returned Result is valid even when err is non-nil. In particular, a
// label failure after a successful approval reports the approval as granted;
// the caller surfaces the outputs regardless of the error.
func (e *Engine) Process(ctx context.Context, event *Event) (*Result, error) {
	pr := &event.PullRequest
	logger := e.logger.With(
		"owner", pr.Owner, "repo", pr.Repo, "pr", pr.Number,
		"kind", event.Kind, "delivery", event.Delivery)

	result := &Result{
		Decision: Decision{Action: ActionNone},
		Outputs:  newOutputs(pr),
	}

	// Snapshot-only rules run before any collaborator call so duplicate and
	// blocked deliveries cost nothing.
	for _, rule := range []Rule{e.freshDelivery, e.notBlocked} {
		if ok, skip := rule(event, nil, nil); !ok {
			result.Decision.Skip = skip
			logger.InfoContext(ctx, "skipping event", "reason", skip)
			return result, nil
		}
	}

	// The rule file is loaded on every decision so extra rules see it, but
	// a load failure must not block a decision that may never read it.
	cfg, err := e.github.RepoConfig(ctx, pr)
	if err != nil {
		logger.WarnContext(ctx, "repository config unavailable", "error", err)
		cfg = nil
	}
	if cfg != nil {
		logger.DebugContext(ctx, "repository config loaded",
			"from_owner", cfg.FromOwner,
			"required_labels", cfg.RequiredLabels,
			"required_labels_mode", cfg.RequiredLabelsMode)
	}

	reviews, err := e.github.ListReviews(ctx, pr)
	if err != nil {
		return result, err
	}

	result.Decision = e.Evaluate(event, reviews, cfg)
	if !result.Decision.Approves() {
		logger.InfoContext(ctx, "skipping event", "reason", result.Decision.Skip)
		return result, nil
	}

	if err := e.github.SubmitApproval(ctx, pr); err != nil {
		return result, err
	}
	result.Outputs.Approved = "true"
	result.Outputs.AutoApproveReason = result.Decision.Reason
	logger.InfoContext(ctx, "pull request approved",
		"action", result.Decision.Action,
		"reason", result.Decision.Reason,
		"author", pr.Author)

	if result.Decision.Action == ActionApproveAndLabel && len(e.applyLabels) > 0 {
		if err := e.github.ApplyLabels(ctx, pr, e.applyLabels); err != nil {
			// The approval already took effect and is never rolled back.
			logger.WarnContext(ctx, "label application failed after approval",
				"labels", e.applyLabels, "error", err)
			return result, err
		}
		logger.InfoContext(ctx, "labels applied", "labels", e.applyLabels)
	}

	return result, nil
}
