package agents

import (
	"context"
	"fmt"
	"strings"

	"certquiz/internal/llm"
)

const criticSystemPrompt = `You are a Senior Quality Assurance Specialist for a professional examination board. Your role is to critically evaluate multiple-choice questions.

Your evaluation criteria:

1. FACTUAL ACCURACY (CRITICAL)
   - Is the correct answer actually correct based on the research content?
   - Are all facts in the question and options accurate?
   - No hallucinations or external knowledge

2. DISTRACTOR QUALITY
   - Are distractors plausible but clearly wrong to knowledgeable candidates?
   - Do distractors test common misconceptions?
   - Is the answer count correct (1 for SINGLE_SELECT, >1 for MULTIPLE_SELECTION)?

3. NO ANSWER GIVEAWAY
   - Does the question structure accidentally reveal the answer?
   - Are there linguistic clues that point to the correct option?
   - Are options balanced in length and structure?

4. DIFFICULTY ALIGNMENT
   - Does the question match the stated difficulty level?
   - EASY: Direct recall, single-step
   - MEDIUM: Application, 2-3 step reasoning
   - HARD: Synthesis, multi-step reasoning

5. CLARITY
   - Is the question unambiguous?
   - Is the wording precise and clear?
   - Could multiple interpretations exist?

SCORING:
- 10: Perfect, no issues
- 8-9: Excellent, minor improvements possible
- 7: Good, acceptable with minor issues
- 5-6: Fair, needs revision
- 1-4: Poor, major issues or errors`

// Critic is the quality gate for drafted questions.
type Critic struct {
	caller   *llm.Caller
	minScore int
}

// NewCritic builds a critic. minScore is the approval floor on the 1-10
// quality scale.
func NewCritic(caller *llm.Caller, minScore int) *Critic {
	if minScore <= 0 {
		minScore = 7
	}
	return &Critic{caller: caller, minScore: minScore}
}

// Review evaluates a draft against its research brief. Approval is decided
// here, not by the model alone: a verdict below the score floor is always
// rejected regardless of the model's approved flag.
func (c *Critic) Review(ctx context.Context, question *DraftedQuestion, brief *ResearchBrief) (*CritiqueReview, error) {
	userPrompt := fmt.Sprintf(`Review this question critically.

%s

%s

Return a JSON object with this structure:
{
    "approved": true,
    "score": 7,
    "issues": ["Specific issue 1", "Specific issue 2"],
    "suggestions": ["Specific suggestion 1", "Specific suggestion 2"],
    "checks": {
        "factual_accuracy": {"passed": true, "notes": "Specific notes about accuracy"},
        "distractor_quality": {"passed": true, "notes": "Notes about distractor plausibility"},
        "no_answer_giveaway": {"passed": true, "notes": "Notes about potential giveaways"},
        "difficulty_alignment": {"passed": true, "notes": "Notes about difficulty match"},
        "clarity": {"passed": true, "notes": "Notes about question clarity"}
    }
}

APPROVE only if the score is %d or higher AND there are no critical factual errors.
Be specific and thorough in your evaluation. If a check fails, explain exactly why and suggest improvements.`,
		formatQuestionForReview(question), formatBriefForReview(brief), c.minScore)

	var review CritiqueReview
	if err := c.caller.CompleteJSON(ctx, criticSystemPrompt, userPrompt, &review); err != nil {
		return nil, fmt.Errorf("critic: %w", err)
	}

	if review.Score < 1 || review.Score > 10 {
		return nil, &llm.ParseError{Reason: fmt.Sprintf("critic score %d out of range", review.Score), Raw: question.Question}
	}
	// The score floor is binding even when the model says approved.
	if review.Approved && review.Score < c.minScore {
		review.Approved = false
		review.Issues = append(review.Issues,
			fmt.Sprintf("Quality score %d is below minimum %d", review.Score, c.minScore))
	}
	return &review, nil
}

func formatQuestionForReview(q *DraftedQuestion) string {
	var sb strings.Builder
	sb.WriteString("DRAFTED QUESTION:\n")
	fmt.Fprintf(&sb, "Question: %s\n", q.Question)
	fmt.Fprintf(&sb, "Type: %s\n", q.QuestionType)
	fmt.Fprintf(&sb, "Difficulty: %s\n", q.Difficulty)
	fmt.Fprintf(&sb, "Cognitive Level: %s\n\n", q.CognitiveLevel)

	correct := make(map[string]bool)
	for _, key := range q.AnswerKeys() {
		correct[key] = true
	}
	sb.WriteString("Options:\n")
	for _, key := range optionKeys {
		marker := ""
		if correct[key] {
			marker = " (CORRECT)"
		}
		fmt.Fprintf(&sb, "  %s. %s%s\n", key, q.Options[key], marker)
	}
	fmt.Fprintf(&sb, "\nCorrect Answer: %s\n\n", q.Answer)
	fmt.Fprintf(&sb, "Explanation: %s\n\n", q.Explanation)

	if len(q.DistractorReasoning) > 0 {
		sb.WriteString("Distractor Reasoning:\n")
		for _, dr := range q.DistractorReasoning {
			fmt.Fprintf(&sb, "  Option %s: %s\n", dr.Option, dr.Reason)
		}
	}
	return sb.String()
}

func formatBriefForReview(brief *ResearchBrief) string {
	var sb strings.Builder
	sb.WriteString("RESEARCH_BRIEF (for factual verification):\n")
	fmt.Fprintf(&sb, "Topic: %s\n", brief.Topic)
	fmt.Fprintf(&sb, "Summary: %s\n\n", brief.Summary)

	if len(brief.CoreFacts) > 0 {
		sb.WriteString("Core Facts:\n")
		for _, fact := range brief.CoreFacts {
			fmt.Fprintf(&sb, "  - %s\n", fact.Fact)
		}
		sb.WriteString("\n")
	}
	if len(brief.KeyDefinitions) > 0 {
		sb.WriteString("Key Definitions:\n")
		for _, def := range brief.KeyDefinitions {
			fmt.Fprintf(&sb, "  - %s: %s\n", def.Term, def.Definition)
		}
		sb.WriteString("\n")
	}
	if len(brief.FormulasAndRules) > 0 {
		sb.WriteString("Formulas and Rules:\n")
		for _, formula := range brief.FormulasAndRules {
			fmt.Fprintf(&sb, "  - %s: %s\n", formula.Name, formula.Expression)
		}
	}
	return sb.String()
}
