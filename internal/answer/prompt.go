package answer

import (
	"strings"

	"github.com/Aman-CERP/chatmydocs/internal/llm"
	"github.com/Aman-CERP/chatmydocs/internal/store"
)

// RefusalMessage is the exact reply required when the context does not
// hold the answer.
const RefusalMessage = "I'm sorry, but the answer to that question is not available in the provided documents."

const systemPrompt = "You are a specialized assistant for answering questions based ONLY on the provided context from a user's documents. " +
	"Your role is to find and present information found within that text. " +
	"Under no circumstances should you use your own general knowledge. " +
	"If the answer to the question cannot be found in the provided context, you MUST respond with the exact phrase: " +
	"'" + RefusalMessage + "' " +
	"Do not add any other information or explanation. " +
	"If the answer is in the context, provide it directly based on the text." +
	"\n\n" +
	"Context: "

// GenericPhrases mark an answer that does not come from specific sources.
var GenericPhrases = []string{
	"don't know",
	"do not know",
	"does not contain",
	"not found in the context",
	"not available in the provided documents",
	"cannot find",
	"no information",
	"not mentioned",
}

// IsGeneric reports whether answer contains any of GenericPhrases,
// ignoring case.
func IsGeneric(answer string) bool {
	lower := strings.ToLower(answer)
	// Curly apostrophes would otherwise slip past "don't know".
	lower = strings.ReplaceAll(lower, "’", "'")
	for _, p := range GenericPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// buildMessages assembles system prompt with context, the history window
// and the question.
func buildMessages(results []store.Result, history History, question string) []llm.Message {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleSystem,
		Content: systemPrompt + strings.Join(texts, "\n\n"),
	})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}
