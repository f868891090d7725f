package record

import (
	"github.com/Sternrassler/jira-scraper/pkg/textclean"
)

// SearchFields is the "fields" parameter sent with every search request. It
// lists exactly the fields Map reads.
const SearchFields = "summary,issuetype,status,priority,reporter,assignee,labels,created,updated,description,comment"

// Map converts one raw issue into a Record tagged with its partition.
// It is pure and total: absent or mistyped fields become "" (or an empty
// slice) and never abort the record.
func Map(partition string, raw RawIssue) Record {
	rec := Record{
		Key:         raw.String("key"),
		Project:     partition,
		Title:       textclean.Clean(raw.String("fields", "summary")),
		IssueType:   raw.String("fields", "issuetype", "name"),
		Status:      raw.String("fields", "status", "name"),
		Priority:    raw.String("fields", "priority", "name"),
		Reporter:    raw.String("fields", "reporter", "displayName"),
		Assignee:    raw.String("fields", "assignee", "displayName"),
		Labels:      stringSlice(raw.Lookup("fields", "labels")),
		Created:     raw.String("fields", "created"),
		Updated:     raw.String("fields", "updated"),
		Description: richText(raw.Lookup("fields", "description")),
		Comments:    []Comment{},
	}

	comments, _ := raw.Lookup("fields", "comment", "comments").([]any)
	for _, c := range comments {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		comment := RawIssue(obj)
		rec.Comments = append(rec.Comments, Comment{
			Author:  comment.String("author", "displayName"),
			Created: comment.String("created"),
			Body:    richText(comment.Lookup("body")),
		})
	}

	return rec
}

// MapPage maps every issue of a page in order.
func MapPage(partition string, issues []RawIssue) []Record {
	records := make([]Record, 0, len(issues))
	for _, issue := range issues {
		records = append(records, Map(partition, issue))
	}
	return records
}

// richText handles both REST v2 string bodies and REST v3 ADF documents.
func richText(v any) string {
	switch val := v.(type) {
	case string:
		return textclean.Clean(val)
	case map[string]any:
		return textclean.FromADF(val)
	default:
		return ""
	}
}

func stringSlice(v any) []string {
	out := []string{}
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
