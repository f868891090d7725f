// Package record maps raw Jira search payloads onto the flat record schema
// written to the JSONL corpus.
package record

// RawIssue is one element of the "issues" array of a Jira search response,
// decoded without a schema so that unexpected field shapes cannot fail a page.
type RawIssue map[string]any

// Comment is a single cleaned issue comment.
type Comment struct {
	Author  string `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

// Record is the normalized, persisted form of one issue.
type Record struct {
	Key         string    `json:"key"`
	Project     string    `json:"project"`
	Title       string    `json:"title"`
	IssueType   string    `json:"issue_type"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Reporter    string    `json:"reporter"`
	Assignee    string    `json:"assignee"`
	Labels      []string  `json:"labels"`
	Created     string    `json:"created"`
	Updated     string    `json:"updated"`
	Description string    `json:"description"`
	Comments    []Comment `json:"comments"`
}

// Lookup walks nested object keys and returns the value found, or nil when
// any step is missing or not an object.
func (r RawIssue) Lookup(keys ...string) any {
	var cur any = map[string]any(r)
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// String returns the string at the nested path, or "" for anything else.
func (r RawIssue) String(keys ...string) string {
	s, _ := r.Lookup(keys...).(string)
	return s
}
