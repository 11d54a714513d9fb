package hermes

import "strings"

const (
	SubjectProjectCreatedAll = "portfolio.project.*.created"
	SubjectProjectUpdatedAll = "portfolio.project.*.updated"
	SubjectProjectDeletedAll = "portfolio.project.*.deleted"
	SubjectRankingUpdated    = "portfolio.ranking.updated"

	StreamName   = "PORTFOLIO_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

var StreamSubjects = []string{"portfolio.project.>", "portfolio.ranking.>"}

func SubjectProjectCreated(projectID string) string { return "portfolio.project." + projectID + ".created" }
func SubjectProjectUpdated(projectID string) string { return "portfolio.project." + projectID + ".updated" }
func SubjectProjectDeleted(projectID string) string { return "portfolio.project." + projectID + ".deleted" }

// ProjectIDFromSubject extracts the id from a portfolio.project.<id>.<verb>
// subject, or returns "" for anything else.
func ProjectIDFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 || parts[0] != "portfolio" || parts[1] != "project" {
		return ""
	}
	return parts[2]
}
