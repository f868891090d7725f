package textclean

import "strings"

// blockNodes are ADF node types that end a line of text.
var blockNodes = map[string]bool{
	"paragraph":   true,
	"heading":     true,
	"listItem":    true,
	"codeBlock":   true,
	"blockquote":  true,
	"tableCell":   true,
	"tableHeader": true,
	"rule":        true,
}

// FromADF flattens an Atlassian Document Format tree, as decoded by
// encoding/json into map[string]any, into plain text. Unknown shapes are
// skipped rather than rejected.
func FromADF(doc any) string {
	var b strings.Builder
	walkADF(doc, &b)
	return Clean(b.String())
}

func walkADF(node any, b *strings.Builder) {
	switch n := node.(type) {
	case map[string]any:
		nodeType, _ := n["type"].(string)
		switch nodeType {
		case "text":
			if text, ok := n["text"].(string); ok {
				b.WriteString(text)
			}
		case "hardBreak":
			b.WriteString(" ")
		case "mention", "emoji":
			if attrs, ok := n["attrs"].(map[string]any); ok {
				if text, ok := attrs["text"].(string); ok {
					b.WriteString(text)
				}
			}
		case "codeBlock":
			// Code is dropped the same way {code} blocks are in wiki markup.
			b.WriteString(" ")
			return
		}
		walkADF(n["content"], b)
		if blockNodes[nodeType] {
			b.WriteString(" ")
		}
	case []any:
		for _, child := range n {
			walkADF(child, b)
		}
	}
}
