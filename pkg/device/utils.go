package device

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocTextWidth is the line width used by FormatDocText.
const DocTextWidth = 99

// StrictUpdate copies update into base, but only if every key of update
// already exists in base. Nothing is copied when a key is missing.
func StrictUpdate[K comparable, V any](base, update map[K]V) error {
	var extra []string
	for k := range update {
		if _, ok := base[k]; !ok {
			extra = append(extra, fmt.Sprint(k))
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("update contains keys that are not part of the base: %v", extra)
	}

	for k, v := range update {
		base[k] = v
	}
	return nil
}

// SecondsSince returns the seconds elapsed since start.
func SecondsSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// FormatDocText wraps text to DocTextWidth columns with a four space indent.
// Common leading indentation is removed first and every input line is
// wrapped on its own, so manual line breaks survive.
func FormatDocText(text string) string {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")

	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}

	var out []string
	for _, line := range lines {
		if len(line) >= indent && indent > 0 {
			line = line[indent:]
		}
		out = append(out, wrapLine(strings.TrimRight(line, " \t"), DocTextWidth, "    "))
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int, prefix string) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	cur := prefix
	for _, w := range words {
		if cur != prefix && len(cur)+1+len(w) > width {
			b.WriteString(cur)
			b.WriteByte('\n')
			cur = prefix
		}
		if cur != prefix {
			cur += " "
		}
		cur += w
	}
	b.WriteString(cur)
	return b.String()
}
