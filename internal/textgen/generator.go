package textgen

import (
	"context"
	"fmt"
	"strings"

	"fission/internal/project"
	"fission/internal/services"
	"fission/internal/services/llm"
	"fission/internal/textutil"
)

var (
	// ErrServiceUnavailable marks a generation call that may succeed on retry.
	ErrServiceUnavailable = llm.ErrServiceUnavailable
	// ErrMalformedResponse marks model output that could not be used.
	ErrMalformedResponse = llm.ErrMalformedResponse
)

// platformLimits caps the quoted excerpt per social platform.
var platformLimits = map[string]int{
	"twitter":   280,
	"linkedin":  200,
	"instagram": 150,
}

// PlatformLimit returns the caption length limit for platform, 0 if none.
func PlatformLimit(platform string) int {
	return platformLimits[strings.ToLower(strings.TrimSpace(platform))]
}

// Request describes one text asset.
type Request struct {
	Kind     project.AssetKind
	Platform string
	Moment   project.Moment
	Category project.ContentCategory
}

// Generator produces the content of a text asset.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Template renders fixed copy from the moment.
type Template struct{}

// Generate renders req without external calls.
func (Template) Generate(_ context.Context, req Request) (string, error) {
	quote := textutil.CollapseSpace(req.Moment.Quotable)
	if quote == "" {
		quote = textutil.CollapseSpace(req.Moment.Text)
	}
	if quote == "" {
		return "", services.Wrap(services.ErrValidation, "textgen", string(req.Kind), "moment has no quotable text", nil)
	}
	summary := strings.TrimSpace(req.Moment.Summary)

	switch req.Kind {
	case project.AssetQuoteCard:
		return quote, nil
	case project.AssetEmail:
		return fmt.Sprintf(`Subject: See what our clients are saying

Hi [First Name],

I wanted to share a quick note from one of our clients:

"%s"

%s

If you're ready to experience similar results, let's talk.

Best regards,
[Your Name]`, quote, summary), nil
	case project.AssetSocialPost:
		return socialTemplate(req.Platform, quote)
	case project.AssetBlogOutline:
		return blogTemplate(req, quote, summary), nil
	default:
		return "", services.Wrap(services.ErrValidation, "textgen", "generate", fmt.Sprintf("unsupported kind %q", req.Kind), nil)
	}
}

func socialTemplate(platform, quote string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "twitter":
		return textutil.Truncate(quote, 280), nil
	case "linkedin":
		return fmt.Sprintf("Client feedback:\n\n\"%s\"\n\nRead the full story [link]", textutil.Truncate(quote, 200)), nil
	case "instagram":
		return fmt.Sprintf("\"%s\"\n\n#testimonial #clientlove #results", textutil.Truncate(quote, 150)), nil
	default:
		return "", services.Wrap(services.ErrValidation, "textgen", "social post", fmt.Sprintf("unsupported platform %q", platform), nil)
	}
}

func blogTemplate(req Request, quote, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", blogHeading(req.Category))
	b.WriteString("## The challenge\n- Where the client started and what was at stake\n\n")
	b.WriteString("## The turning point\n")
	if summary != "" {
		fmt.Fprintf(&b, "- %s\n", summary)
	}
	b.WriteString("\n## In their words\n")
	fmt.Fprintf(&b, "> %s\n\n", quote)
	b.WriteString("## Results\n- Outcomes and numbers worth highlighting\n\n")
	b.WriteString("## Next step\n- Invite readers to get in touch\n")
	return b.String()
}

func blogHeading(category project.ContentCategory) string {
	switch category {
	case project.CategoryCaseStudy:
		return "Case Study Outline"
	case project.CategoryFounderStory:
		return "Founder Story Outline"
	default:
		return "Customer Story Outline"
	}
}

// TextCompleter is the subset of the LLM client the generator needs.
type TextCompleter interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLM generates copy with a chat model.
type LLM struct {
	client TextCompleter
}

// NewLLM wraps client.
func NewLLM(client TextCompleter) *LLM {
	return &LLM{client: client}
}

const copywriterPrompt = "You are a marketing copywriter. Write concise, authentic copy grounded only in the customer's own words. Answer with the copy alone."

// Generate asks the model for req's copy. Quote cards use the verbatim quote.
func (g *LLM) Generate(ctx context.Context, req Request) (string, error) {
	if req.Kind == project.AssetQuoteCard {
		return Template{}.Generate(ctx, req)
	}
	prompt, err := promptFor(req)
	if err != nil {
		return "", err
	}
	content, err := g.client.CompleteText(ctx, copywriterPrompt, prompt)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", services.Wrap(ErrMalformedResponse, "textgen", string(req.Kind), "model returned empty copy", nil)
	}
	if req.Kind == project.AssetSocialPost {
		if limit := PlatformLimit(req.Platform); limit > 0 {
			content = textutil.Truncate(content, limit)
		}
	}
	return content, nil
}

func promptFor(req Request) (string, error) {
	quote := textutil.CollapseSpace(req.Moment.Quotable)
	brief := fmt.Sprintf("Quote: %q\nSummary: %s\nMoment type: %s\nVideo type: %s\n",
		quote, strings.TrimSpace(req.Moment.Summary), req.Moment.Category, req.Category)
	switch req.Kind {
	case project.AssetEmail:
		return brief + "\nWrite a short outreach email (subject line first) that shares this quote and invites the reader to a conversation. Use [First Name] and [Your Name] placeholders.", nil
	case project.AssetSocialPost:
		limit := PlatformLimit(req.Platform)
		if limit == 0 {
			return "", services.Wrap(services.ErrValidation, "textgen", "social post", fmt.Sprintf("unsupported platform %q", req.Platform), nil)
		}
		return brief + fmt.Sprintf("\nWrite a %s caption of at most %d characters featuring this quote.", textutil.Title(req.Platform), limit), nil
	case project.AssetBlogOutline:
		return brief + "\nWrite a markdown blog post outline with 4-6 headed sections built around this quote.", nil
	default:
		return "", services.Wrap(services.ErrValidation, "textgen", "generate", fmt.Sprintf("unsupported kind %q", req.Kind), nil)
	}
}
