package populate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/siherrmann/docpipe/model"
)

// Render assembles the final document text from the populated template
// fields and the generated narrative. The field block is sorted by field
// name so rendering the same inputs always produces the same document.
func Render(docType model.DocumentType, program string, generatedAt time.Time, fields map[string]string, narrative string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %v\n\n", docType.DisplayName())
	fmt.Fprintf(&b, "Program: %v\n", program)
	fmt.Fprintf(&b, "Generated: %v\n\n", generatedAt.UTC().Format("2006-01-02"))

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		b.WriteString("## Key Data\n\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %v: %v\n", fieldLabel(name), fields[name])
		}
		b.WriteString("\n")
	}

	if narrative != "" {
		b.WriteString("## Narrative\n\n")
		b.WriteString(strings.TrimSpace(narrative))
		b.WriteString("\n")
	}

	return b.String()
}

// fieldLabel turns a snake_case field name into a title for the rendered
// document.
func fieldLabel(name string) string {
	words := strings.Split(name, "_")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}
