// Package textgen implements the GenerateTextAssets stage.
//
// The top textgen.max_moments moments by quotability each yield a quote
// card; the single best moment also yields an email draft, one social
// caption per configured platform and, optionally, a blog outline. Every
// asset is its own fan-out unit keyed by kind (and moment or platform), so
// a failed caption never blocks the email.
//
// Two generators exist. Template fills fixed copy from the moment and
// never calls out. LLM asks the chat model for each piece and falls back to
// the template when the model's answer is unusable.
package textgen
