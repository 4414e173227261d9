package aiextract

import (
	"fmt"
	"strings"

	"github.com/sells-group/bill-advisor/internal/model"
)

// SystemPrompt instructs the vendor to answer with the bill JSON only.
var SystemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You read Italian electricity and gas bills (bollette luce e gas) and return one JSON object, nothing else.\n")
	b.WriteString("Use exactly these keys; use null when the bill does not state a value:\n")
	for _, f := range model.Fields() {
		b.WriteString("- ")
		b.WriteString(string(f.Name))
		switch f.Kind {
		case model.KindNumber:
			fmt.Fprintf(&b, ": number in %s, plain decimal with a dot, no thousands separator", f.Unit)
		case model.KindIdentifier:
			b.WriteString(": string, the code exactly as printed without spaces")
		case model.KindEnum:
			b.WriteString(`: one of "electricity", "gas", "combined"`)
		case model.KindText:
			b.WriteString(": string, the supplier's commercial name")
		}
		b.WriteString("\n")
	}
	b.WriteString("Consumption and total cost are annual figures; if only a period figure is printed, use null.\n")
	b.WriteString(`Add a "confidence" object mapping each non-null key to a number between 0 and 1.` + "\n")
	return b.String()
}

// UserPrompt wraps the bill text.
func UserPrompt(text string) string {
	return "Bill text:\n<<<\n" + truncate(text) + "\n>>>"
}
