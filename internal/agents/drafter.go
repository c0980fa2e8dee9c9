package agents

import (
	"context"
	"fmt"
	"strings"

	"certquiz/internal/llm"
)

const drafterSystemPrompt = `You are a Senior Examiner and Psychometrician for a professional certification examination board. Your expertise includes:

1. QUESTION CRAFTING: Create exam-style multiple-choice questions that are challenging but fair
2. STYLE MIRRORING: Match the linguistic patterns, complexity, and tone of actual exam papers
3. PSYCHOMETRICS: Design distractors that test common misconceptions and partial understandings
4. COGNITIVE ALIGNMENT: Match questions to the appropriate cognitive level (recall, application, analysis, synthesis)

STRICT REQUIREMENTS:
- Use EXACTLY 4 options (A, B, C, D)
- Make distractors plausible but clearly wrong to knowledgeable candidates
- Distractors should reflect common student misconceptions
- Questions must be answerable from the provided RESEARCH_CONTENT
- Mirror the style of PAST_PAPER_EXAMPLES (sentence length, phrasing patterns, complexity)
- Include detailed explanation that references specific facts

DIFFICULTY GUIDELINES:
- EASY: Direct recall of facts, single-step reasoning, clear wording
- MEDIUM: Application of concepts, 2-3 step reasoning, some ambiguity
- HARD: Synthesis of multiple concepts, multi-step reasoning, nuanced distractors

CRITICAL: Never invent facts. Only use information from the RESEARCH_CONTENT.`

const reviserSystemPrompt = `You are a Senior Examiner revising a question based on feedback.

Your task:
1. Address each piece of feedback
2. Improve the question without changing its core intent
3. Maintain style consistency with exam papers
4. Ensure factual accuracy based on research content`

// Drafter writes and revises candidate exam questions from a research brief
// plus style guidance.
type Drafter struct {
	caller *llm.Caller
}

// NewDrafter builds a drafter.
func NewDrafter(caller *llm.Caller) *Drafter {
	return &Drafter{caller: caller}
}

// Draft produces one candidate question. questionType must be one of the
// question type constants; it is enforced structurally after parsing, not
// just requested in the prompt.
func (d *Drafter) Draft(ctx context.Context, brief *ResearchBrief, profile *StyleProfile, styleExamples []string, difficulty, questionType string) (*DraftedQuestion, error) {
	var sb strings.Builder
	sb.WriteString(formatResearchBrief(brief))
	sb.WriteString("\n")
	if p := formatStyleProfile(profile); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	if e := formatStyleExamples(styleExamples); e != "" {
		sb.WriteString(e)
		sb.WriteString("\n")
	}

	userPrompt := fmt.Sprintf(`Draft a %s difficulty multiple-choice question.

TOPIC: %s

%s
%s

Return a JSON object with this structure:
{
    "question": "The question text - use phrasing similar to past papers",
    "question_type": "%s",
    "options": {
        "A": "First option",
        "B": "Second option",
        "C": "Third option",
        "D": "Fourth option"
    },
    "answer": "%s",
    "explanation": "Detailed 3-5 sentence explanation. Reference specific facts from the research content. Explain why the answer is correct and why each distractor is wrong.",
    "difficulty": "%s",
    "distractor_reasoning": [
        {"option": "A", "reason": "What misconception this option tests"},
        {"option": "B", "reason": "What misconception this option tests"},
        {"option": "C", "reason": "What misconception this option tests"},
        {"option": "D", "reason": "What misconception this option tests"}
    ],
    "topic": "%s",
    "cognitive_level": "recall|application|analysis|synthesis"
}

Create ONE question that:
- Tests understanding of the research content
- Uses a question stem similar to past papers (e.g., "Which of the following...", "Identify the...", "What is the...")
- Has distractors based on common misconceptions mentioned in the research or style profile
- Is appropriate for %s difficulty`,
		difficulty, brief.Topic, sb.String(), typeInstructions(questionType),
		questionType, answerFormatHint(questionType), difficulty, brief.Topic, difficulty)

	var draft DraftedQuestion
	if err := d.caller.CompleteJSON(ctx, drafterSystemPrompt, userPrompt, &draft); err != nil {
		return nil, fmt.Errorf("drafter: %w", err)
	}

	draft.QuestionType = normalizeType(draft.QuestionType, questionType)
	if draft.Topic == "" {
		draft.Topic = brief.Topic
	}
	if draft.Difficulty == "" {
		draft.Difficulty = difficulty
	}
	if err := draft.Validate(); err != nil {
		return nil, &llm.ParseError{Reason: fmt.Sprintf("invalid draft: %v", err), Raw: draft.Question}
	}
	if draft.QuestionType != questionType {
		return nil, &llm.ParseError{Reason: fmt.Sprintf("drafted %s, wanted %s", draft.QuestionType, questionType), Raw: draft.Question}
	}
	return &draft, nil
}

// Revise rewrites a draft to address critic feedback, preserving the
// question type and topic.
func (d *Drafter) Revise(ctx context.Context, current *DraftedQuestion, feedback []string, brief *ResearchBrief) (*DraftedQuestion, error) {
	var fb strings.Builder
	for _, f := range feedback {
		fmt.Fprintf(&fb, "- %s\n", f)
	}

	var opts strings.Builder
	for _, key := range optionKeys {
		fmt.Fprintf(&opts, "        %q: %q,\n", key, current.Options[key])
	}

	userPrompt := fmt.Sprintf(`Revise this question based on the feedback.

CURRENT DRAFT:
{
    "question": %q,
    "question_type": %q,
    "options": {
%s    },
    "answer": %q,
    "explanation": %q
}

FEEDBACK TO ADDRESS:
%s
%s

Return the revised question as a JSON object in the same format as the original draft, including question_type, difficulty, distractor_reasoning, topic and cognitive_level.

Ensure the revision:
- Fixes all identified issues
- Maintains factual accuracy
- Keeps the question type (%s)
- Preserves the cognitive level
- Improves distractor quality`,
		current.Question, current.QuestionType, opts.String(), current.Answer, current.Explanation,
		fb.String(), formatResearchBrief(brief), current.QuestionType)

	var revised DraftedQuestion
	if err := d.caller.CompleteJSON(ctx, reviserSystemPrompt, userPrompt, &revised); err != nil {
		return nil, fmt.Errorf("drafter revision: %w", err)
	}

	revised.QuestionType = normalizeType(revised.QuestionType, current.QuestionType)
	if revised.Topic == "" {
		revised.Topic = current.Topic
	}
	if revised.Difficulty == "" {
		revised.Difficulty = current.Difficulty
	}
	if revised.CognitiveLevel == "" {
		revised.CognitiveLevel = current.CognitiveLevel
	}
	if len(revised.DistractorReasoning) == 0 {
		revised.DistractorReasoning = current.DistractorReasoning
	}
	if err := revised.Validate(); err != nil {
		return nil, &llm.ParseError{Reason: fmt.Sprintf("invalid revision: %v", err), Raw: revised.Question}
	}
	return &revised, nil
}

func typeInstructions(questionType string) string {
	if questionType == TypeMultipleSelection {
		return `QUESTION TYPE: MULTIPLE_SELECTION
This question must have TWO OR THREE correct answers. Phrase the stem accordingly (e.g., "Which TWO of the following...", "Select all that apply"). The "answer" field must list all correct option keys, comma-separated.`
	}
	return `QUESTION TYPE: SINGLE_SELECT
This question must have exactly ONE correct answer.`
}

func answerFormatHint(questionType string) string {
	if questionType == TypeMultipleSelection {
		return "A,C"
	}
	return "A|B|C|D"
}

// normalizeType maps model spelling variants onto the canonical constants,
// falling back to the requested type when the field is missing.
func normalizeType(got, requested string) string {
	switch strings.ToLower(strings.TrimSpace(got)) {
	case TypeSingleSelect, "single", "single-select":
		return TypeSingleSelect
	case TypeMultipleSelection, "multi_select", "multiple-selection", "multiple_select":
		return TypeMultipleSelection
	case "":
		return requested
	}
	return got
}

func formatStyleExamples(examples []string) string {
	if len(examples) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("PAST_PAPER_EXAMPLES:\n")
	for i, example := range examples {
		fmt.Fprintf(&sb, "\nEXAMPLE %d:\n%s\n", i+1, example)
	}
	return sb.String()
}

func formatStyleProfile(profile *StyleProfile) string {
	if profile == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("STYLE_PROFILE:\n")
	if len(profile.QuestionStems) > 0 {
		fmt.Fprintf(&sb, "Common Question Stems: %s\n", strings.Join(profile.QuestionStems, ", "))
	}
	if profile.AvgSentenceLength > 0 {
		fmt.Fprintf(&sb, "Average Sentence Length: %.1f words\n", profile.AvgSentenceLength)
	}
	if len(profile.DistractorPatterns) > 0 {
		fmt.Fprintf(&sb, "Distractor Patterns: %s\n", strings.Join(profile.DistractorPatterns, ", "))
	}
	if profile.Complexity != "" {
		fmt.Fprintf(&sb, "Typical Complexity: %s\n", profile.Complexity)
	}
	if profile.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", profile.Tone)
	}
	if len(profile.CommonMisconceptions) > 0 {
		sb.WriteString("Common Student Misconceptions:\n")
		for _, m := range profile.CommonMisconceptions {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}
	return sb.String()
}
