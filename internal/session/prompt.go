package session

import "strings"

// FallbackMessage is the assistant reply for a fresh topic with no
// retrievable document.
const FallbackMessage = "Could not find any paper relevant to the question"

const systemPromptTemplate = `You are a medical researcher tasked with providing the best answer for the question from the provided medical research paper:
--- START PAPER ---
{paper_text}
--- END PAPER ---
[SEP]
## Instructions
You should provide accurate and informative responses to any question a human may ask about this paper. If you cannot find the relevant answer in the given paper, return saying CANNOT FIND THE ANSWER IN THE PROVIDED SET OF PAPERS.
DO NOT GENERATE ANSWERS BEYOND THE SCOPE OF THE PROVIDED PAPER. RESTRICT THE ANSWER TO A MAXIMUM OF 1000 TOKENS.`

// SystemPrompt grounds a conversation on paperText.
func SystemPrompt(paperText string) string {
	return strings.Replace(systemPromptTemplate, "{paper_text}", paperText, 1)
}
