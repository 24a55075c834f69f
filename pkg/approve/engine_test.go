package approve

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// fakeGitHub is a recording stub for the engine's collaborator surface.
type fakeGitHub struct {
	reviews    []Review
	cfg        *RepoConfig
	listErr    error
	approveErr error
	labelErr   error
	cfgErr     error
	calls      []string
	applied    []string
}

func (f *fakeGitHub) ListReviews(_ context.Context, _ *PullRequest) ([]Review, error) {
	f.calls = append(f.calls, "list_reviews")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.reviews, nil
}

func (f *fakeGitHub) SubmitApproval(_ context.Context, _ *PullRequest) error {
	f.calls = append(f.calls, "submit_approval")
	return f.approveErr
}

func (f *fakeGitHub) ApplyLabels(_ context.Context, _ *PullRequest, labels []string) error {
	f.calls = append(f.calls, "apply_labels")
	f.applied = append(f.applied, labels...)
	return f.labelErr
}

func (f *fakeGitHub) RepoConfig(_ context.Context, _ *PullRequest) (*RepoConfig, error) {
	f.calls = append(f.calls, "repo_config")
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	return f.cfg, nil
}

// approvablePR returns a snapshot that passes every funnel check: a clean
// title, no labels, a valid reason, and an update after creation.
func approvablePR() PullRequest {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return PullRequest{
		Owner:     "acme",
		Repo:      "widgets",
		Number:    7,
		Title:     "Bump dependency versions",
		Body:      "Routine update.\n\nAuto-approve reason: dependency bump only\n",
		Author:    "octocat",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestEngineProcess(t *testing.T) {
	tests := []struct {
		name         string
		kind         string
		mutate       func(*PullRequest)
		reviews      []Review
		wantAction   string
		wantApproved string
		wantCalls    []string
		wantLabels   []string
	}{
		{
			name:         "first approval applies label",
			kind:         EventOpened,
			wantAction:   ActionApproveAndLabel,
			wantApproved: "true",
			wantCalls:    []string{"repo_config", "list_reviews", "submit_approval", "apply_labels"},
			wantLabels:   []string{"auto_approved"},
		},
		{
			name:         "opened with equal timestamps is still admitted",
			kind:         EventOpened,
			mutate:       func(pr *PullRequest) { pr.UpdatedAt = pr.CreatedAt },
			wantAction:   ActionApproveAndLabel,
			wantApproved: "true",
			wantCalls:    []string{"repo_config", "list_reviews", "submit_approval", "apply_labels"},
			wantLabels:   []string{"auto_approved"},
		},
		{
			name:         "duplicate labeled delivery makes no calls",
			kind:         EventLabeled,
			mutate:       func(pr *PullRequest) { pr.UpdatedAt = pr.CreatedAt },
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    nil,
		},
		{
			name:         "wip title blocks without calls",
			kind:         EventOpened,
			mutate:       func(pr *PullRequest) { pr.Title = "WIP: bump dependency versions" },
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    nil,
		},
		{
			name:         "dnl label blocks despite clean title",
			kind:         EventOpened,
			mutate:       func(pr *PullRequest) { pr.Labels = []string{"DNL"} },
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    nil,
		},
		{
			name:         "foreign approval skips",
			kind:         EventOpened,
			reviews:      []Review{{Author: "alice", State: ReviewApproved}},
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    []string{"repo_config", "list_reviews"},
		},
		{
			name:         "missing reason skips",
			kind:         EventOpened,
			mutate:       func(pr *PullRequest) { pr.Body = "Just a refactor." },
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    []string{"repo_config", "list_reviews"},
		},
		{
			name:         "reapprove after dismissal without relabeling",
			kind:         EventReviewDismissed,
			reviews:      []Review{{Author: DefaultBotLogin, State: ReviewDismissed}},
			wantAction:   ActionReapprove,
			wantApproved: "true",
			wantCalls:    []string{"repo_config", "list_reviews", "submit_approval"},
		},
		{
			name:         "already reviewed and nothing dismissed",
			kind:         EventLabeled,
			reviews:      []Review{{Author: DefaultBotLogin, State: ReviewDismissed}},
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    []string{"repo_config", "list_reviews"},
		},
		{
			name: "edited event after bot approval skips via approval guard",
			kind: EventEdited,
			reviews: []Review{
				{Author: DefaultBotLogin, State: ReviewApproved},
			},
			wantAction:   ActionNone,
			wantApproved: "false",
			wantCalls:    []string{"repo_config", "list_reviews"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr := approvablePR()
			if tt.mutate != nil {
				tt.mutate(&pr)
			}
			fake := &fakeGitHub{reviews: tt.reviews}
			engine := NewEngine(fake)

			result, err := engine.Process(context.Background(), &Event{Kind: tt.kind, PullRequest: pr})
			if err != nil {
				t.Fatalf("Process returned error: %v", err)
			}
			if result.Decision.Action != tt.wantAction {
				t.Errorf("Expected action %q, got %q (skip: %q)",
					tt.wantAction, result.Decision.Action, result.Decision.Skip)
			}
			if result.Outputs.Approved != tt.wantApproved {
				t.Errorf("Expected approved %q, got %q", tt.wantApproved, result.Outputs.Approved)
			}
			if result.Outputs.PRAuthor != pr.Author {
				t.Errorf("Expected pr_author %q, got %q", pr.Author, result.Outputs.PRAuthor)
			}
			if !reflect.DeepEqual(fake.calls, tt.wantCalls) {
				t.Errorf("Expected calls %v, got %v", tt.wantCalls, fake.calls)
			}
			if tt.wantLabels != nil && !reflect.DeepEqual(fake.applied, tt.wantLabels) {
				t.Errorf("Expected labels %v, got %v", tt.wantLabels, fake.applied)
			}
			if result.Decision.Action == ActionNone && result.Decision.Skip == "" {
				t.Error("Expected a skip reason for a none decision")
			}
			if tt.wantApproved == "true" && result.Outputs.AutoApproveReason != "dependency bump only" {
				t.Errorf("Expected reason output, got %q", result.Outputs.AutoApproveReason)
			}
		})
	}
}

func TestEngineProcessReviewFetchFailure(t *testing.T) {
	fake := &fakeGitHub{listErr: errors.New("boom")}
	engine := NewEngine(fake)
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err == nil {
		t.Fatal("Expected error when review fetch fails")
	}
	if result.Outputs.Approved != "false" {
		t.Errorf("Expected approved false, got %q", result.Outputs.Approved)
	}
	for _, call := range fake.calls {
		if call == "submit_approval" || call == "apply_labels" {
			t.Errorf("Expected no side-effecting calls, got %v", fake.calls)
		}
	}
}

func TestEngineProcessApprovalFailure(t *testing.T) {
	fake := &fakeGitHub{approveErr: errors.New("503")}
	engine := NewEngine(fake)
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err == nil {
		t.Fatal("Expected error when approval submission fails")
	}
	if result.Outputs.Approved != "false" {
		t.Errorf("Expected approved false after failed submission, got %q", result.Outputs.Approved)
	}
	for _, call := range fake.calls {
		if call == "apply_labels" {
			t.Error("Expected no label call after failed approval")
		}
	}
}

func TestEngineProcessLabelFailureKeepsApproval(t *testing.T) {
	fake := &fakeGitHub{labelErr: errors.New("label does not exist")}
	engine := NewEngine(fake)
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err == nil {
		t.Fatal("Expected label error to propagate")
	}
	if result.Outputs.Approved != "true" {
		t.Errorf("Expected approved true despite label failure, got %q", result.Outputs.Approved)
	}
	if result.Outputs.AutoApproveReason != "dependency bump only" {
		t.Errorf("Expected reason output despite label failure, got %q", result.Outputs.AutoApproveReason)
	}
}

func TestEngineProcessRepoConfigFailureTolerated(t *testing.T) {
	fake := &fakeGitHub{cfgErr: errors.New("contents API down")}
	engine := NewEngine(fake)
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err != nil {
		t.Fatalf("Expected config failure to be tolerated, got %v", err)
	}
	if result.Outputs.Approved != "true" {
		t.Errorf("Expected approval despite config failure, got %q", result.Outputs.Approved)
	}
}

func TestEngineProcessCustomBlocklistAndLabels(t *testing.T) {
	fake := &fakeGitHub{}
	engine := NewEngine(fake,
		WithBlocklist([]string{"HOLD"}),
		WithApplyLabels([]string{"bot-approved", "fast-track"}),
	)

	pr := approvablePR()
	pr.Title = "WIP: would block under defaults"
	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Decision.Action != ActionApproveAndLabel {
		t.Errorf("Expected custom blocklist to admit wip title, got %q (skip: %q)",
			result.Decision.Action, result.Decision.Skip)
	}
	if !reflect.DeepEqual(fake.applied, []string{"bot-approved", "fast-track"}) {
		t.Errorf("Expected custom labels, got %v", fake.applied)
	}

	fake2 := &fakeGitHub{}
	engine2 := NewEngine(fake2, WithBlocklist([]string{"hold"}))
	pr2 := approvablePR()
	pr2.Title = "Hold off on this one"
	result2, err := engine2.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr2})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result2.Decision.Action != ActionNone {
		t.Errorf("Expected custom term to block, got %q", result2.Decision.Action)
	}
	if len(fake2.calls) != 0 {
		t.Errorf("Expected no calls for blocked event, got %v", fake2.calls)
	}
}

func TestEngineProcessCustomBotLogin(t *testing.T) {
	// A review by the default identity must look foreign once the engine
	// runs under a different login.
	fake := &fakeGitHub{reviews: []Review{{Author: DefaultBotLogin, State: ReviewCommented}}}
	engine := NewEngine(fake, WithBotLogin("approver-app[bot]"))
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Decision.Action != ActionApproveAndLabel {
		t.Errorf("Expected approval when only foreign non-approving reviews exist, got %q (skip: %q)",
			result.Decision.Action, result.Decision.Skip)
	}
}

func TestEngineProcessExtraRule(t *testing.T) {
	var sawCfg *RepoConfig
	onlyDependabot := func(event *Event, _ []Review, cfg *RepoConfig) (bool, string) {
		sawCfg = cfg
		if event.PullRequest.Author != "dependabot[bot]" {
			return false, "author not allowed"
		}
		return true, ""
	}

	fake := &fakeGitHub{cfg: &RepoConfig{FromOwner: []string{"dependabot[bot]"}}}
	engine := NewEngine(fake, WithRules(onlyDependabot))
	pr := approvablePR()

	result, err := engine.Process(context.Background(), &Event{Kind: EventOpened, PullRequest: pr})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Decision.Action != ActionNone || result.Decision.Skip != "author not allowed" {
		t.Errorf("Expected extra rule to reject, got %+v", result.Decision)
	}
	if sawCfg == nil || len(sawCfg.FromOwner) != 1 {
		t.Errorf("Expected extra rule to see the repository config, got %+v", sawCfg)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	engine := NewEngine(&fakeGitHub{})
	pr := approvablePR()
	event := &Event{Kind: EventReviewDismissed, PullRequest: pr}
	reviews := []Review{
		{Author: "alice", State: ReviewCommented},
		{Author: DefaultBotLogin, State: ReviewDismissed},
	}

	first := engine.Evaluate(event, reviews, nil)
	second := engine.Evaluate(event, reviews, nil)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical decisions, got %+v then %+v", first, second)
	}
	if first.Action != ActionReapprove {
		t.Errorf("Expected reapprove, got %+v", first)
	}
}

func TestEvaluatePendingReviewCountsAsOwn(t *testing.T) {
	// A pending bot review means the bot has touched the PR; a labeled
	// event must not trigger a second approval.
	engine := NewEngine(&fakeGitHub{})
	pr := approvablePR()
	event := &Event{Kind: EventLabeled, PullRequest: pr}
	reviews := []Review{{Author: DefaultBotLogin, State: ReviewPending}}

	decision := engine.Evaluate(event, reviews, nil)
	if decision.Action != ActionNone {
		t.Errorf("Expected none for pending own review, got %+v", decision)
	}
}
