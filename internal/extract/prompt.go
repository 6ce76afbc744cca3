package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const SystemPrompt = "You are a helpful assistant that generates question-answer pairs from given text."

const instructions = `Generate a list of 1-%d question-answer pairs based on the following text. Adhere to these guidelines:
1. Focus on quality over quantity.
2. Phrase questions so they could be used as search queries to find the source document.
3. Include a verbatim list of supporting quotations from the text for each answer.
4. Ensure answers are relevant to the questions and use only information from the given text.
5. If the text contains nothing worth asking about, respond with an empty array [].`

const responseShape = `Respond in JSON format like this:
[
    {
        "question": "Question text here",
        "answer": "Answer text here",
        "supporting_quotes": ["Quote 1", "Quote 2"]
    }
]`

// QASchema constrains generation to an array of QA objects.
var QASchema = json.RawMessage(`{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "question": {"type": "string"},
      "answer": {"type": "string"},
      "supporting_quotes": {"type": "array", "items": {"type": "string"}}
    },
    "required": ["question", "supporting_quotes", "answer"]
  }
}`)

// Prompt is the instruction and content payload for one chunk.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt assembles the prompt for a chunk. It is a pure function of its
// inputs; maxQuestions below 1 is treated as 1.
func BuildPrompt(chunkText string, maxQuestions int) Prompt {
	if maxQuestions < 1 {
		maxQuestions = 1
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(instructions, maxQuestions))
	sb.WriteString("\n\nText:\n---\n")
	sb.WriteString(chunkText)
	sb.WriteString("\n---\n\n")
	sb.WriteString(responseShape)
	return Prompt{System: SystemPrompt, User: sb.String()}
}
