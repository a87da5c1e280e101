package orchestrator

import (
	"fmt"
	"regexp"
)

// maxToolResultBytes bounds a tool result before it's persisted as a
// role=tool message — large blobs (dumped files, fetched pages) would
// otherwise dominate the Context Manager's token budget on the very next
// turn. 64 KB is generous for useful tool output while keeping a single
// call from crowding out everything else in the window.
const maxToolResultBytes = 65536

var (
	base64Pattern = regexp.MustCompile(`data:[a-zA-Z0-9+/=\-]+;base64,[A-Za-z0-9+/=]{64,}`)
	hexBlobPattern = regexp.MustCompile(`[0-9a-fA-F]{256,}`)
)

// truncateToolResult shrinks an oversized tool result to fit within
// maxBytes: first by stripping inline base64/hex blobs (usually the actual
// bulk, and useless to the model as text), then by keeping head and tail
// and dropping the middle.
func truncateToolResult(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}

	content = base64Pattern.ReplaceAllStringFunc(content, func(match string) string {
		return fmt.Sprintf("[base64 data removed, %d bytes]", len(match))
	})
	if len(content) <= maxBytes {
		return content
	}

	content = hexBlobPattern.ReplaceAllStringFunc(content, func(match string) string {
		return fmt.Sprintf("[hex data removed, %d bytes]", len(match))
	})
	if len(content) <= maxBytes {
		return content
	}

	headLen := maxBytes * 2 / 5
	tailLen := maxBytes * 2 / 5
	if headLen+tailLen >= len(content) {
		return content
	}

	removed := len(content) - headLen - tailLen
	return content[:headLen] +
		fmt.Sprintf("\n\n[... %d bytes truncated ...]\n\n", removed) +
		content[len(content)-tailLen:]
}
