package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

const SenderGitHub = "github"

// GitHubVerifier checks webhook deliveries signed with HMAC-SHA256 over the
// raw body, carried as "sha256=<hex>" in X-Hub-Signature-256. GitHub does
// not sign a timestamp, so there is no freshness check here; replay defense
// is the dedup layer's job.
type GitHubVerifier struct {
	Secret string
}

func (v *GitHubVerifier) Verify(header http.Header, body []byte) error {
	if v.Secret == "" {
		return ErrNotConfigured
	}
	sig := header.Get("X-Hub-Signature-256")
	if sig == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(v.Secret))
	_, _ = mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

type githubPayload struct {
	Zen         string `json:"zen"`
	Action      string `json:"action"`
	Repository  struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"pull_request"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"issue"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

var githubPRActions = map[string]bool{
	"opened":      true,
	"reopened":    true,
	"synchronize": true,
}

var githubIssueActions = map[string]bool{
	"opened":   true,
	"reopened": true,
}

// Parse normalizes a verified GitHub delivery. The event name comes from
// X-GitHub-Event and the dedup key from X-GitHub-Delivery, falling back to a
// body digest when the delivery id is absent.
func (v *GitHubVerifier) Parse(header http.Header, body []byte) (Event, error) {
	var p githubPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("parse github body: %w", err)
	}

	eventType := header.Get("X-GitHub-Event")
	ev := Event{Sender: SenderGitHub, Type: eventType}
	if eventType == "ping" {
		ev.Challenge = p.Zen
		return ev, nil
	}

	ev.DedupKey = header.Get("X-GitHub-Delivery")
	if ev.DedupKey == "" {
		sum := sha256.Sum256(body)
		ev.DedupKey = hex.EncodeToString(sum[:])
	}

	switch eventType {
	case "pull_request":
		if !githubPRActions[p.Action] {
			return ev, nil
		}
		ev.Actionable = true
		ev.Title = fmt.Sprintf("GH PR %s: %s#%d %s",
			p.Action, p.Repository.FullName, p.PullRequest.Number, truncate(p.PullRequest.Title, 50))
		ev.Payload = map[string]any{
			"source":     SenderGitHub,
			"event_type": eventType,
			"action":     p.Action,
			"repo":       p.Repository.FullName,
			"number":     p.PullRequest.Number,
			"title":      p.PullRequest.Title,
			"sender":     p.Sender.Login,
		}
	case "issues":
		if !githubIssueActions[p.Action] {
			return ev, nil
		}
		ev.Actionable = true
		ev.Title = fmt.Sprintf("GH Issue %s: %s#%d %s",
			p.Action, p.Repository.FullName, p.Issue.Number, truncate(p.Issue.Title, 50))
		ev.Payload = map[string]any{
			"source":     SenderGitHub,
			"event_type": eventType,
			"action":     p.Action,
			"repo":       p.Repository.FullName,
			"number":     p.Issue.Number,
			"title":      p.Issue.Title,
			"sender":     p.Sender.Login,
		}
	}
	return ev, nil
}
