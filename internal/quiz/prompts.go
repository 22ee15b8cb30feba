package quiz

import (
	"fmt"
	"strings"

	"studyhub/internal/models"
)

const questionPromptTemplate = `Generate a multiple-choice knowledge test based on the passage below. Follow these requirements exactly:

1. Write exactly %d questions covering the main ideas of the passage, ensuring no significant concept is omitted.
2. Write every question and every option in the same language as the passage.
3. Mix factual recall questions with questions that require understanding or applying the concepts.
4. Each question must have exactly 4 options with exactly one correct answer.
5. Make incorrect options plausible. Keep all options of a question about the same length and style.
6. "correctIndex" is the zero-based position of the correct option in "choices".

Format your response as a JSON object with the following structure and nothing else:
{
  "questions": [
    {"id": "q1", "prompt": "Question text here?", "choices": ["Option A", "Option B", "Option C", "Option D"], "correctIndex": 0},
    ...more questions...
  ]
}

PASSAGE:
%s
`

const remediationPromptTemplate = `A learner answered the multiple-choice questions below incorrectly. For EACH question, write a short, friendly explanation of why the correct option is right, grounded in the study notes. Don't say "This is correct". Just explain the idea, e.g. "Gravity was described by Isaac Newton".
Write the explanations in the same language as the questions.

Format your response as a JSON object with the following structure and nothing else:
{
  "justifications": [
    {"qId": "q1", "explanation": "Explanation here."}
  ]
}

QUESTIONS:
%s
STUDY NOTES:
%s
`

func questionPrompt(sourceText string, n int) string {
	return fmt.Sprintf(questionPromptTemplate, n, sourceText)
}

func remediationPrompt(questions []models.Question, notes string) string {
	var b strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&b, "- id: %s\n  prompt: %s\n", q.ID, q.Prompt)
		for i, c := range q.Choices {
			fmt.Fprintf(&b, "  [%d] %s\n", i, c)
		}
		fmt.Fprintf(&b, "  correctIndex: %d\n", q.CorrectIndex)
	}
	return fmt.Sprintf(remediationPromptTemplate, b.String(), notes)
}
