package config

// GitHub configures platform access.
type GitHub struct {
	// Token authenticates API calls. Required.
	Token string `env:"GITHUB_TOKEN" validate:"required"`

	// WebhookSecret verifies delivery signatures. Empty disables
	// verification.
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// APIBaseURL overrides the API endpoint for GitHub Enterprise.
	APIBaseURL string `env:"GITHUB_API_URL"`
}

// Engine configures the decision rules.
type Engine struct {
	// BotLogin is the account whose reviews count as the engine's own.
	BotLogin string `env:"BOT_LOGIN" envDefault:"autoapproval[bot]" validate:"required"`

	// Blocklist terms disqualify a pull request when found in its title or
	// labels.
	Blocklist []string `env:"BLOCKLIST" envSeparator:"," envDefault:"do-not-merge,dnl,wip"`

	// ApplyLabels are attached after a first approval.
	ApplyLabels []string `env:"APPLY_LABELS" envSeparator:"," envDefault:"auto_approved"`

	// ApprovalComment is the review body submitted with approvals.
	ApprovalComment string `env:"APPROVAL_COMMENT"`
}
