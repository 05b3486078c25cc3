package render

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Placeholders written in place of absent fields.
const (
	placeholderTitle   = "Untitled"
	placeholderState   = "UNKNOWN"
	placeholderPending = "PENDING"
	placeholderNone    = "(none)"
)

// approvalMarker flags a session paused on plan approval.
const approvalMarker = "- ⚠️ **Requires Plan Approval**: Use `jules_approve_plan` to approve."

// Sources renders a list-sources response body.
func Sources(body []byte) string {
	page := gjson.ParseBytes(body)

	var b strings.Builder
	b.WriteString("# Jules Sources\n\n")
	for _, src := range page.Get("sources").Array() {
		fmt.Fprintf(&b, "## %s\n", valueOr(src.Get("name"), placeholderNone))
		fmt.Fprintf(&b, "- **ID**: %s\n", valueOr(src.Get("id"), placeholderNone))
		fmt.Fprintf(&b, "- **GitHub Repo**: %s\n", githubRepo(src.Get("githubRepo")))
		b.WriteString("\n")
	}
	writeNextPage(&b, page)
	return strings.TrimRight(b.String(), "\n")
}

// Sessions renders a list-sessions response body.
func Sessions(body []byte) string {
	page := gjson.ParseBytes(body)

	var b strings.Builder
	b.WriteString("# Jules Sessions\n\n")
	for _, s := range page.Get("sessions").Array() {
		fmt.Fprintf(&b, "## %s (%s)\n", valueOr(s.Get("title"), placeholderTitle), sessionName(s))
		fmt.Fprintf(&b, "- **State**: %s\n", valueOr(s.Get("state"), placeholderState))
		fmt.Fprintf(&b, "- **Prompt**: %s\n", valueOr(s.Get("prompt"), placeholderNone))
		writeOutputs(&b, s.Get("outputs"))
		if s.Get("pendingPlanApproval").Bool() {
			b.WriteString(approvalMarker + "\n")
		}
		b.WriteString("\n")
	}
	writeNextPage(&b, page)
	return strings.TrimRight(b.String(), "\n")
}

// Session renders a single session resource.
func Session(body []byte) string {
	s := gjson.ParseBytes(body)

	var b strings.Builder
	fmt.Fprintf(&b, "# Session: %s\n\n", valueOr(s.Get("title"), placeholderTitle))
	fmt.Fprintf(&b, "- **Name/ID**: %s\n", sessionName(s))
	fmt.Fprintf(&b, "- **State**: %s\n", valueOr(s.Get("state"), placeholderState))
	fmt.Fprintf(&b, "- **Prompt**: %s\n", valueOr(s.Get("prompt"), placeholderNone))
	fmt.Fprintf(&b, "- **Source**: %s\n", valueOr(s.Get("sourceContext.source"), placeholderNone))
	fmt.Fprintf(&b, "- **Starting Branch**: %s\n", valueOr(s.Get("sourceContext.githubRepoContext.startingBranch"), placeholderNone))
	fmt.Fprintf(&b, "- **Created**: %s\n", valueOr(s.Get("createTime"), placeholderNone))
	fmt.Fprintf(&b, "- **Updated**: %s\n", valueOr(s.Get("updateTime"), placeholderNone))
	fmt.Fprintf(&b, "- **URL**: %s\n", valueOr(s.Get("url"), placeholderNone))
	writeOutputs(&b, s.Get("outputs"))
	if s.Get("pendingPlanApproval").Bool() {
		b.WriteString(approvalMarker + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CreatedSession renders the response to a session creation.
func CreatedSession(body []byte) string {
	s := gjson.ParseBytes(body)

	lines := []string{
		"# Created Session: " + valueOr(s.Get("title"), placeholderTitle),
		"",
		"- **Name/ID**: " + sessionName(s),
		"- **Prompt**: " + valueOr(s.Get("prompt"), placeholderNone),
		"- **Status**: " + valueOr(s.Get("state"), placeholderPending),
	}
	if s.Get("requirePlanApproval").Bool() {
		lines = append(lines, "- **Plan Approval**: required before Jules proceeds. Use `jules_approve_plan` once the plan is ready.")
	}
	lines = append(lines, "", "You can check the progress of this session using the `jules_list_sessions` tool.")
	return strings.Join(lines, "\n")
}

// PlanApproved renders the confirmation for an approved plan. sessionID is
// echoed as the caller supplied it.
func PlanApproved(sessionID string) string {
	return fmt.Sprintf("# Plan Approved\n\nSuccessfully approved plan for session `%s`.\n\nYou can use `jules_list_sessions` to monitor its progress.", sessionID)
}

func writeOutputs(b *strings.Builder, outputs gjson.Result) {
	items := outputs.Array()
	if len(items) == 0 {
		fmt.Fprintf(b, "- **Outputs**: %s\n", placeholderNone)
		return
	}
	b.WriteString("- **Outputs**:\n")
	for _, out := range items {
		if pr := out.Get("pullRequest"); pr.Exists() {
			fmt.Fprintf(b, "  - Pull Request: [%s](%s)\n",
				valueOr(pr.Get("title"), placeholderTitle),
				valueOr(pr.Get("url"), placeholderNone))
			continue
		}
		fmt.Fprintf(b, "  - %s\n", out.Get("@ugly").Raw)
	}
}

func writeNextPage(b *strings.Builder, page gjson.Result) {
	if tok := page.Get("nextPageToken").String(); tok != "" {
		fmt.Fprintf(b, "**Next Page Token**: %s\n", tok)
	}
}

// sessionName prefers the resource name, then the bare id.
func sessionName(s gjson.Result) string {
	if name := s.Get("name").String(); name != "" {
		return name
	}
	return valueOr(s.Get("id"), placeholderNone)
}

func githubRepo(repo gjson.Result) string {
	owner, name := repo.Get("owner").String(), repo.Get("repo").String()
	if owner == "" && name == "" {
		return placeholderNone
	}
	return owner + "/" + name
}

// valueOr returns the string form of r, or fallback when r is absent or empty.
func valueOr(r gjson.Result, fallback string) string {
	if s := r.String(); s != "" {
		return s
	}
	return fallback
}
