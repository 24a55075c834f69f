package approve

// RepoConfig is the per-repository rule file stored at
// .github/autoapproval.yml. The engine loads and logs it on every decision
// so repositories can stage rules ahead of enforcement, but the built-in
// funnel does not evaluate these fields; a Rule wired via WithRules can.
type RepoConfig struct {
	// FromOwner restricts approvals to pull requests authored by one of
	// these logins.
	FromOwner []string `yaml:"from_owner"`

	// RequiredLabels lists labels a pull request must carry.
	RequiredLabels []string `yaml:"required_labels"`

	// RequiredLabelsMode is "one_of" or "all_of" and qualifies
	// RequiredLabels.
	RequiredLabelsMode string `yaml:"required_labels_mode"`

	// ApplyLabels overrides the labels applied after a first approval.
	ApplyLabels []string `yaml:"apply_labels"`
}
