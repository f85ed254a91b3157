package email

import (
	"fmt"
	"strings"
)

func (s *Sender) formatOutcomeBody(level Level, message string) string {
	accent := "#1d9bf0"
	heading := "Tweet published"
	if level == LevelWarning {
		accent = "#e67e22"
		heading = "Nothing was published"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; }\n")
	b.WriteString(fmt.Sprintf(".header { border-bottom: 2px solid %s; padding-bottom: 10px; margin-bottom: 20px; }\n", accent))
	b.WriteString(".content { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; white-space: pre-wrap; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 1px solid #ecf0f1; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".content { background: #262626; }\n")
	b.WriteString(".footer { color: #a0a0a0; border-top-color: #444; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", heading))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"content\">\n")
	b.WriteString(escapeHTML(message))
	b.WriteString("\n</div>\n")

	if s.account != "" {
		b.WriteString("<div class=\"footer\">\n")
		b.WriteString(fmt.Sprintf("Account: %s\n", escapeHTML(s.account)))
		b.WriteString("</div>\n")
	}

	b.WriteString("</body>\n</html>")
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
