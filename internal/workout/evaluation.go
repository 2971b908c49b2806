package workout

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/liftguard/internal/ai"
	"github.com/myrjola/liftguard/internal/errors"
	"github.com/myrjola/liftguard/internal/progression"
	"github.com/myrjola/liftguard/internal/safety"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Evaluation is the decision artifact returned for every plan request. Only Result.ClampedPlan may be shown to the
// user as a plan.
type Evaluation struct {
	ID        uuid.UUID            `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Profile   safety.UserProfile   `json:"profile"`
	Limits    *safety.SafetyLimits `json:"limits,omitempty"`
	// Suggestion is set for analyzer plans.
	Suggestion *progression.Suggestion `json:"suggestion,omitempty"`
	// Generation is set for generated plans.
	Generation *Generation             `json:"generation,omitempty"`
	Source     safety.PlanSource       `json:"source"`
	Result     safety.ValidationResult `json:"result"`
	Notice     Notice                  `json:"notice"`
}

// Generation describes how a generated plan was obtained.
type Generation struct {
	Attempts   int               `json:"attempts"`
	Reason     ai.FallbackReason `json:"fallback_reason,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	// Discarded holds the violations of a model plan that the validator rejected before the fallback was used.
	Discarded []safety.Violation `json:"discarded_violations,omitempty"`
}

// ReasonSafetyRejected marks a fallback used because the validator rejected the model plan.
const ReasonSafetyRejected ai.FallbackReason = "safety_rejected"

// Notice is the plain-language summary of an evaluation.
type Notice struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

//nolint:gochecknoglobals // goldmark instances are safe for concurrent use.
var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// renderMarkdownToHTML converts md to HTML. Raw HTML in md is omitted.
func renderMarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", errors.Wrap(err, "convert markdown")
	}
	return buf.String(), nil
}

//nolint:gochecknoglobals // immutable.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "{", `\{`, "}", `\}`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "#", `\#`, "+", `\+`, "-", `\-`, ".", `\.`, "!", `\!`, "<", `\<`,
	">", `\>`, "|", `\|`, "~", `\~`, "\n", " ", "\r", " ",
)

// escapeMarkdown makes s render as literal text. Violation messages embed user and model provided names.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// noticeMarkdown explains the verdict in plain language.
func noticeMarkdown(source safety.PlanSource, result safety.ValidationResult, generation *Generation) string {
	var b strings.Builder
	switch result.Verdict {
	case safety.VerdictAccepted:
		b.WriteString("**Plan accepted.** Every value is within your safe training limits.\n")
	case safety.VerdictClamped:
		b.WriteString("**Plan adjusted.** Some values were outside your safe training limits and were " +
			"brought back to the nearest allowed value:\n\n")
		writeViolations(&b, result.Violations)
	case safety.VerdictRejected:
		b.WriteString("**Plan rejected.** It cannot be used because it goes past these limits:\n\n")
		writeViolations(&b, result.Violations)
	}

	if source == safety.SourceFallback {
		b.WriteString("\n_")
		if generation != nil && generation.Reason == ReasonSafetyRejected {
			b.WriteString("The suggested plan went past your limits, so a standard plan is shown instead.")
		} else {
			b.WriteString("The AI coach is unavailable right now, so a standard plan is shown instead.")
		}
		b.WriteString("_\n")
	}
	return b.String()
}

func writeViolations(b *strings.Builder, violations []safety.Violation) {
	for _, v := range violations {
		b.WriteString("- ")
		b.WriteString(escapeMarkdown(v.Message))
		b.WriteString("\n")
	}
}

// newNotice renders the notice. A render failure keeps the markdown so that the user still gets the explanation.
func newNotice(source safety.PlanSource, result safety.ValidationResult, generation *Generation) (Notice, error) {
	md := noticeMarkdown(source, result, generation)
	html, err := renderMarkdownToHTML(md)
	return Notice{Markdown: md, HTML: html}, err
}
