package telephony

import (
	"strings"
	"testing"
)

func TestRenderConferenceInstruction(t *testing.T) {
	markup, err := RenderInstruction(Instruction{
		Kind:           InstructionConference,
		Greeting:       "Please hold.",
		ConferenceRoom: "conf-abc",
		HoldMusicURL:   "https://cdn.example.com/hold.mp3",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, want := range []string{"<Say>Please hold.</Say>", "conf-abc", `waitUrl="https://cdn.example.com/hold.mp3"`, "<Dial>"} {
		if !strings.Contains(markup, want) {
			t.Fatalf("expected %q in markup:\n%s", want, markup)
		}
	}
}

func TestRenderConferenceRequiresRoom(t *testing.T) {
	if _, err := RenderInstruction(Instruction{Kind: InstructionConference}); err == nil {
		t.Fatalf("expected error for missing room")
	}
}

func TestRenderHangupFallback(t *testing.T) {
	markup, err := RenderInstruction(Instruction{
		Kind:    InstructionHangup,
		Message: "All agents are busy. Please try again later.",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(markup, "<Hangup></Hangup>") && !strings.Contains(markup, "<Hangup/>") {
		t.Fatalf("expected hangup verb:\n%s", markup)
	}
	if !strings.Contains(markup, "All agents are busy") {
		t.Fatalf("expected busy message:\n%s", markup)
	}
}

func TestRenderUnknownKind(t *testing.T) {
	if _, err := RenderInstruction(Instruction{Kind: "dance"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
