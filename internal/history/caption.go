package history

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fluxboom/internal/domain"
)

// maxExcerptWords bounds how much of the prompt appears in a caption.
const maxExcerptWords = 6

// Caption builds a gallery caption from the model and prompt, for example
// "Flux Pro: A Cat Wearing Sunglasses".
func Caption(model domain.Model, prompt string) string {
	excerpt := Excerpt(prompt)
	if excerpt == "" {
		return model.DisplayName()
	}
	return fmt.Sprintf("%s: %s", model.DisplayName(), excerpt)
}

// Excerpt title-cases the leading words of a prompt.
func Excerpt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return ""
	}
	if len(words) > maxExcerptWords {
		words = words[:maxExcerptWords]
	}
	c := cases.Title(language.Und)
	return c.String(strings.Join(words, " "))
}
