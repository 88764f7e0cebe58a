package tutor

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/store"
)

const classifyPrompt = `You are a message classifier for a programming tutor.
Classify the student's message into exactly one label:
  casual     - greeting, small talk, thanks, anything non-technical
  teach      - a technical question that wants a short, direct answer
  explain    - a request for a thorough, structured explanation
  comparison - asking to compare technologies or approaches

Respond with the single label only, no punctuation, no explanation.`

const extractConceptPrompt = `Extract the single programming concept or technology the student's
message is about. Answer with the concept name only, at most a few
words. If the message is not about any particular concept, answer
exactly NONE.`

const followupPrompt = `A tutor just offered the student a deeper explanation and is waiting
for a yes or no. Classify the student's reply:
  yes   - they accept the offer
  no    - they decline the offer
  other - the reply is a new question or unrelated

Respond with exactly one of: yes, no, other.`

const teachPrompt = `You are a friendly programming tutor. Give a short answer: two or
three sentences that directly answer the question, then stop. Do not
lecture. Match the student's level described below.

%s`

const explainPrompt = `You are a thorough programming tutor. Produce a structured
explanation of the concept: what it is, why it matters, how it works,
and one concrete example in code. Adapt depth and examples to the
student profile below. Use the reference passages when they help;
ignore them when they don't.

%s`

const comparisonPrompt = `You are a pragmatic programming tutor. Compare the things the
student asked about: what each is good at, where each falls down, and
when you would pick one over the other. Be concrete and opinionated.

%s`

const questionPrompt = `You write assessment questions for a programming tutor.
Write ONE question testing real understanding of the concept below,
at the student's level. Avoid yes/no questions.

Respond with JSON only, exactly this shape:
{"question": "...", "type": "conceptual|applied|debugging",
 "expected_points": ["point a good answer covers", "..."]}

%s`

const evaluatePrompt = `You grade a student's answer to an assessment question.
Score 0-100 for correctness and depth. Pass means the answer shows
working understanding, not perfection. If the answer reveals a specific
misunderstanding, name it in one short phrase; otherwise use "".

Respond with JSON only, exactly this shape:
{"score": 0, "passed": false, "misconception": ""}

Question: %s
%sStudent answer: %s`

const feedbackPrompt = `You deliver feedback to a student after a graded answer. Be honest
and encouraging. Open with the verdict, name what was right and what
was missing, and close by telling them the next step given below. Two
short paragraphs at most.

%s`

const recommendPrompt = `You are a programming mentor suggesting what to learn next. Ground
your suggestion in the student's progress summary below and keep it to
a few sentences.

%s`

// fallbackQuestion is the fixed question used when the generator's
// output cannot be parsed.
func fallbackQuestion(concept string) Question {
	return Question{
		Concept:        concept,
		Text:           fmt.Sprintf("Explain %s in your own words, including one example of when you would use it.", concept),
		Type:           "conceptual",
		ExpectedPoints: []string{"a correct description in the student's own words", "one concrete usage example"},
	}
}

// fallbackEvaluation is the ungraded verdict used when the grader's
// output cannot be parsed. It never passes and carries no score.
func fallbackEvaluation() Evaluation {
	return Evaluation{Score: 0, Passed: false, Ungraded: true}
}

func fallbackFeedbackText(passed bool, nextStep string) string {
	if passed {
		return "Nice work, that answer passes. " + nextStep
	}
	return "Not quite there yet, but that's part of learning. " + nextStep
}

// profileContext renders the student profile block shared by the
// teaching prompts.
func profileContext(p memory.StudentProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Student level: %s\n", p.CurrentLevel)
	fmt.Fprintf(&b, "Learning style: %s\n", p.LearningStyle)
	if p.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	}
	if len(p.WeakAreas) > 0 {
		fmt.Fprintf(&b, "Known weak areas: %s\n", strings.Join(p.WeakAreas, ", "))
	}
	if len(p.MasteredConcepts) > 0 {
		fmt.Fprintf(&b, "Already mastered: %s\n", strings.Join(p.MasteredConcepts, ", "))
	}
	return b.String()
}

func joinConceptNames(concepts []store.Concept) string {
	names := make([]string, 0, len(concepts))
	for _, c := range concepts {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

// conceptContext renders the concept plus its prerequisite standing.
func conceptContext(concept string, prereqs []store.Concept, unmet []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Concept: %s\n", concept)
	if len(prereqs) > 0 {
		names := make([]string, 0, len(prereqs))
		for _, p := range prereqs {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&b, "Prerequisites: %s\n", strings.Join(names, ", "))
	}
	if len(unmet) > 0 {
		fmt.Fprintf(&b, "Prerequisites the student has NOT mastered yet: %s\n", strings.Join(unmet, ", "))
	}
	return b.String()
}

func expectedPointsContext(points []string) string {
	if len(points) == 0 {
		return ""
	}
	return "Points a good answer covers: " + strings.Join(points, "; ") + "\n"
}

func passagesContext(passages []string) string {
	if len(passages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Reference passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
	}
	return b.String()
}
