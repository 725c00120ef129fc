package generator

import (
	"regexp"
	"strings"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// Extractor turns raw model text into structured code. Adapters use it as
// a fallback when the backend answers with plain content instead of the
// forced tool call. ok is false when no code could be recovered.
type Extractor interface {
	Extract(content string) (code *task.GeneratedCode, ok bool)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(content string) (*task.GeneratedCode, bool)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(content string) (*task.GeneratedCode, bool) {
	return f(content)
}

var fenceRe = regexp.MustCompile("```python\n|```")

// FenceExtractor strips Markdown code fences from the content and treats
// the remainder as the script body. It recovers code from models that
// ignore the tool schema and answer inline.
func FenceExtractor() Extractor {
	return ExtractorFunc(func(content string) (*task.GeneratedCode, bool) {
		code := strings.TrimSpace(fenceRe.ReplaceAllString(content, ""))
		if code == "" {
			return nil, false
		}
		return &task.GeneratedCode{Code: code}, true
	})
}
