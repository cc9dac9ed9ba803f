package audit

import "time"

type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
)

type Issue struct {
	Type        IssueType `json:"type"`
	Description string    `json:"description"`
	Count       int64     `json:"count"`
}

// ConsistencyReport is the outcome of one scan. It is never stored.
type ConsistencyReport struct {
	TableName    string    `json:"tableName"`
	Issues       []Issue   `json:"issues"`
	TotalRecords int64     `json:"totalRecords"`
	LastChecked  time.Time `json:"lastChecked"`
}

func (r *ConsistencyReport) add(t IssueType, count int64, description string) {
	if count <= 0 {
		return
	}
	r.Issues = append(r.Issues, Issue{Type: t, Description: description, Count: count})
}

func (r ConsistencyReport) Errors() int64 {
	var n int64
	for _, issue := range r.Issues {
		if issue.Type == IssueError {
			n += issue.Count
		}
	}
	return n
}

func (r ConsistencyReport) Warnings() int64 {
	var n int64
	for _, issue := range r.Issues {
		if issue.Type == IssueWarning {
			n += issue.Count
		}
	}
	return n
}

type FixResult struct {
	Fixed  int      `json:"fixed"`
	Errors []string `json:"errors"`
}
