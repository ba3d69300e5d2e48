package prompt

import "strings"

// Chat template markers.
const (
	turnOpen  = "<start_of_turn>"
	turnClose = "<end_of_turn>\n"

	modelRole = "model"
	userRole  = "user"
)

// Assemble renders the prompt. System instructions share the opening user turn
// with the first question. Retrieved context is placed in the same turn as the
// current query, never at the top, so the model ties it to that question only.
// history must be empty or start with a user turn (see Truncate).
func Assemble(retrievedContext string, history []Turn, query string) string {
	var sb strings.Builder
	sb.Grow(len(SystemInstructions) + len(retrievedContext) + len(query) + Size(history) + 64*(len(history)+2))

	openTurn(&sb, userRole)
	sb.WriteString(SystemInstructions)
	sb.WriteString("\n\n")

	if len(history) == 0 {
		writeQuestion(&sb, retrievedContext, query)
		sb.WriteString(turnClose)
	} else {
		sb.WriteString(history[0].Text)
		sb.WriteString(turnClose)
		for _, t := range history[1:] {
			openTurn(&sb, templateRole(t.Role))
			sb.WriteString(t.Text)
			sb.WriteString(turnClose)
		}
		openTurn(&sb, userRole)
		writeQuestion(&sb, retrievedContext, query)
		sb.WriteString(turnClose)
	}

	openTurn(&sb, modelRole)
	return sb.String()
}

// JoinPassages renders retrieved passages as one context block.
func JoinPassages(passages []string) string {
	return strings.Join(passages, "\n\n")
}

func openTurn(sb *strings.Builder, role string) {
	sb.WriteString(turnOpen)
	sb.WriteString(role)
	sb.WriteByte('\n')
}

func writeQuestion(sb *strings.Builder, retrievedContext, query string) {
	if retrievedContext == "" {
		sb.WriteString(query)
		return
	}
	sb.WriteString("Context:\n")
	sb.WriteString(retrievedContext)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
}

func templateRole(r Role) string {
	if r == RoleAssistant {
		return modelRole
	}
	return userRole
}
