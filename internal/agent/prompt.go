package agent

import (
	"fmt"
	"os"
	"strings"
)

// appName is how the assistant introduces itself in its system message.
const appName = "Nviv"

// imageInstruction tells the model to surface generated images verbatim so
// downstream channels can extract and deliver them.
const imageInstruction = "IMPORTANT: When you generate an image using the " +
	"`generate_image` tool, the tool will return a markdown link (e.g. " +
	"`![Generated Image](...)`). You MUST include this EXACT markdown link " +
	"in your final response to the user. Do not just describe the image; " +
	"show it by including the link."

// BuildSystemPrompt assembles the assistant's system message, folding in an
// optional knowledge base file. A missing or unreadable file falls back to
// the bare prompt.
func BuildSystemPrompt(knowledgePath string) string {
	if knowledgePath != "" {
		if kb, err := os.ReadFile(knowledgePath); err == nil {
			return fmt.Sprintf(
				"You are %s, a helpful AI assistant.\n\n%s\n\nUse this knowledge to answer questions accurately.\n\n%s",
				appName, strings.TrimSpace(string(kb)), imageInstruction)
		}
	}
	return fmt.Sprintf("You are %s, a helpful AI assistant.\n\n%s", appName, imageInstruction)
}
