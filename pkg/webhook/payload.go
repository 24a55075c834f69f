package webhook

import "time"

// eventPayload is the subset of GitHub's pull_request and
// pull_request_review delivery bodies the service reads.
type eventPayload struct {
	Action      string      `json:"action"`
	PullRequest *prPayload  `json:"pull_request"`
	Repository  repoPayload `json:"repository"`
}

// prPayload mirrors the pull_request object inside a delivery.
type prPayload struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	User      userPayload    `json:"user"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Labels    []labelPayload `json:"labels"`
	Number    int            `json:"number"`
}

type userPayload struct {
	Login string `json:"login"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type repoPayload struct {
	Name  string      `json:"name"`
	Owner userPayload `json:"owner"`
}
