// ABOUTME: Splits model output into the visible answer and the embedded reasoning block
// ABOUTME: Only the first <think>...</think> pair is honored; malformed markers are ignored

package thought

import "strings"

// Delimiters that wrap a reasoning segment inside assistant content.
const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

// Segments is the derived split of one message's content. It is never stored.
type Segments struct {
	VisibleText string
	HiddenText  string
	HasThought  bool
}

// Extract returns the visible and hidden parts of content.
//
// A thought is present only when OpenTag occurs and the first CloseTag after it
// also occurs. Otherwise the content comes back unchanged as VisibleText.
func Extract(content string) Segments {
	start := strings.Index(content, OpenTag)
	if start < 0 {
		return Segments{VisibleText: content}
	}
	end := strings.Index(content, CloseTag)
	if end < start+len(OpenTag) {
		return Segments{VisibleText: content}
	}

	hidden := content[start+len(OpenTag) : end]
	visible := content[:start] + content[end+len(CloseTag):]

	return Segments{
		VisibleText: strings.TrimSpace(visible),
		HiddenText:  strings.TrimSpace(hidden),
		HasThought:  true,
	}
}

// Visible reports whether a reasoning segment should be shown given the
// shared hidden flag.
func (s Segments) Visible(reasoningHidden bool) bool {
	return s.HasThought && !reasoningHidden
}
