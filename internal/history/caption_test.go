package history

import (
	"testing"

	"fluxboom/internal/domain"
)

func TestCaption(t *testing.T) {
	got := Caption(domain.ModelFluxPro, "a cat wearing sunglasses")
	want := "Flux Pro: A Cat Wearing Sunglasses"
	if got != want {
		t.Fatalf("caption = %q, want %q", got, want)
	}
}

func TestCaptionTruncatesLongPrompts(t *testing.T) {
	got := Caption(domain.ModelFluxSchnell, "one two three four five six seven eight")
	want := "Flux Schnell: One Two Three Four Five Six"
	if got != want {
		t.Fatalf("caption = %q, want %q", got, want)
	}
}

func TestCaptionEmptyPromptFallsBackToModelName(t *testing.T) {
	if got := Caption(domain.ModelFluxDevInpainting, "   "); got != "Flux Dev Inpainting" {
		t.Fatalf("caption = %q", got)
	}
}
