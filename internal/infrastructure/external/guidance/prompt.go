package guidance

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are HealthLoop AI, a helpful assistant for the HealthLoop app, which supports patients on weight loss medication.
A user is reporting a side effect and its severity.
Provide some practical, supportive, and non-prescriptive guidance.
The guidance should be reassuring and suggest simple home remedies or actions if appropriate.
**IMPORTANT**: Emphasize that this is not medical advice and they should contact their doctor for any serious or persistent concerns.
Format the response in Markdown. Use bullet points for tips.`

// BuildReport renders the patient's report sent as the user message.
func BuildReport(effect string, severity int) string {
	var b strings.Builder
	b.WriteString("Patient's report:\n")
	fmt.Fprintf(&b, "- Side Effect: %s\n", strings.TrimSpace(effect))
	fmt.Fprintf(&b, "- Severity: %d/10", severity)
	return b.String()
}
