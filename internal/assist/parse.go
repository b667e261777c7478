package assist

import (
	"encoding/json"
	"strings"
)

// stripFences срезает markdown-ограждение вокруг JSON-ответа модели
// ("```json\n...\n```" или просто "```").
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	}
	if i := strings.LastIndex(s, "\n```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func parseAnalysis(content string) (*Analysis, error) {
	// is_it_related по умолчанию true: старые модели поле опускают.
	a := &Analysis{IsITRelated: true}
	if err := json.Unmarshal([]byte(content), a); err != nil {
		return nil, err
	}
	if a.Confidence == "" {
		a.Confidence = "low"
	}
	return a, nil
}
