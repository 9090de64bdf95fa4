package agent

import (
	"fmt"
	"strings"
)

// IngestShape describes the object the ingest call is asked for. It is not
// registered as a contract: ingest output is read leniently.
var IngestShape = Contract{
	Role: RoleIngest,
	Fields: append([]Field{{Name: "problem_statement", Type: FieldString}},
		stringArrays("success_criteria", "constraints", "assumptions", "artifacts_to_update")...),
}

// SystemPrompt returns the system prompt of role.
func SystemPrompt(role Role) string {
	c := CardFor(role)
	return fmt.Sprintf("%s\nYou are the %s agent (%s) in a multi-agent coding assistant. "+
		"Other agents work on the same problem in parallel; stay within your task. "+
		"Reply with exactly one JSON object and no other text.", c.Description, c.Name, role)
}

// TaskPrompt builds the user message for role from a JSON snapshot of the
// shared state. A nil contract asks for a free-form JSON object.
func TaskPrompt(role Role, snapshot string, contract *Contract) string {
	var sb strings.Builder
	sb.WriteString("## Shared state\n\n```json\n")
	sb.WriteString(snapshot)
	sb.WriteString("\n```\n\n## Task\n\n")
	sb.WriteString(CardFor(role).Task)
	sb.WriteString("\n\n## Output\n\n")
	if contract == nil {
		sb.WriteString("Respond with a single JSON object.")
		return sb.String()
	}
	sb.WriteString("Respond with a single JSON object with these fields:\n\n")
	sb.WriteString(contract.Describe())
	return sb.String()
}

// IngestPrompt builds the ingest request for the raw user input.
func IngestPrompt(input string) string {
	var sb strings.Builder
	sb.WriteString("## Request\n\n")
	sb.WriteString(input)
	sb.WriteString("\n\n## Task\n\n")
	sb.WriteString(CardFor(RoleIngest).Task)
	sb.WriteString("\n\n## Output\n\nRespond with a single JSON object with these fields:\n\n")
	sb.WriteString(IngestShape.Describe())
	return sb.String()
}

// CorrectionPrompt asks for a corrected answer after a contract violation.
// It lists every problem and restates the original task.
func CorrectionPrompt(task string, errs []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response did not match the required output.\n\nProblems:\n")
	for _, e := range errs {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	sb.WriteString("\nAnswer the original task again with one corrected JSON object that contains every required field.\n\n")
	sb.WriteString("Original task:\n\n")
	sb.WriteString(task)
	return sb.String()
}
