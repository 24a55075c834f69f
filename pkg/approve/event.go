package approve

import (
	"time"
)

// Event kind constants. These are the only delivery kinds the engine
// understands; the transport drops everything else before it gets here.
const (
	// Pull request lifecycle events.
	EventOpened   = "opened"
	EventReopened = "reopened"
	EventLabeled  = "labeled"
	EventEdited   = "edited"

	// Review events.
	EventReviewSubmitted = "review_submitted"
	EventReviewDismissed = "review_dismissed"
)

// Review state constants, as recorded by the GitHub reviews API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
	ReviewPending          = "PENDING"
)

// Action constants for Decision.Action.
const (
	// ActionNone leaves the pull request untouched.
	ActionNone = "none"

	// ActionApprove submits an approving review.
	ActionApprove = "approve"

	// ActionApproveAndLabel submits an approving review and then applies
	// the configured labels. Chosen for pull requests the bot has never
	// reviewed before.
	ActionApproveAndLabel = "approve_and_label"

	// ActionReapprove submits a fresh approving review after an earlier
	// one was dismissed. Labels are not re-applied.
	ActionReapprove = "reapprove"
)

// PullRequest is an immutable snapshot of a pull request, captured when the
// triggering delivery arrived. Missing fields stay zero values; the engine
// treats them as empty rather than failing.
type PullRequest struct {
	// Owner is the login of the repository owner (user or organization).
	Owner string `json:"owner"`

	// Repo is the repository name without the owner prefix.
	Repo string `json:"repo"`

	// Number is the pull request number within the repository.
	Number int `json:"number"`

	// Title is the pull request title at snapshot time.
	Title string `json:"title"`

	// Body is the full pull request description at snapshot time.
	Body string `json:"body"`

	// Author is the login of the user who opened the pull request.
	Author string `json:"author"`

	// Labels holds the label names attached at snapshot time.
	Labels []string `json:"labels,omitempty"`

	// CreatedAt is when the pull request was opened.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the pull request last changed. Equal to CreatedAt
	// when nothing has happened since creation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one normalized delivery handed to the engine: which kind of
// change happened plus the pull request snapshot it happened to.
type Event struct {
	// Kind is one of the Event* constants.
	Kind string `json:"kind"`

	// Delivery identifies the originating webhook delivery, for log
	// correlation. Synthesized deliveries get a generated ID.
	Delivery string `json:"delivery,omitempty"`

	// PullRequest is the snapshot the decision is made against.
	PullRequest PullRequest `json:"pull_request"`
}

// Review is a single review currently recorded on a pull request.
type Review struct {
	// Author is the login of the review author.
	Author string `json:"author"`

	// State is one of the Review* constants.
	State string `json:"state"`
}

// Decision is the engine's verdict for one event.
type Decision struct {
	// Action is one of the Action* constants.
	Action string `json:"action"`

	// Reason is the extracted auto-approve reason. Set only when Action
	// approves.
	Reason string `json:"reason,omitempty"`

	// Skip explains why no approval was issued. Set only when Action is
	// ActionNone.
	Skip string `json:"skip,omitempty"`
}

// Approves reports whether the decision carries an approving action.
func (d Decision) Approves() bool {
	switch d.Action {
	case ActionApprove, ActionApproveAndLabel, ActionReapprove:
		return true
	default:
		return false
	}
}

// Outputs are the caller-facing result fields of one processed event, shaped
// for CI step outputs. Approved is the string "true" or "false" rather than
// a bool so it can be emitted verbatim.
type Outputs struct {
	// Approved is "true" only after an approving review was successfully
	// submitted.
	Approved string `json:"approved"`

	// AutoApproveReason is the reason the approval cited, or empty when no
	// approval happened.
	AutoApproveReason string `json:"auto_approve_reason"`

	// PRAuthor is the pull request author, set for every processed event.
	PRAuthor string `json:"pr_author"`
}

// newOutputs returns outputs initialized to the not-approved defaults.
// Process overwrites Approved and AutoApproveReason only after a successful
// approval.
func newOutputs(pr *PullRequest) Outputs {
	return Outputs{
		Approved:          "false",
		AutoApproveReason: "",
		PRAuthor:          pr.Author,
	}
}

// Result is everything one processed event produced.
type Result struct {
	// Decision is the verdict the funnel reached.
	Decision Decision `json:"decision"`

	// Outputs reflect what actually took effect, which can lag the
	// decision when a side effect failed partway.
	Outputs Outputs `json:"outputs"`
}
