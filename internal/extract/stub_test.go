package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ppiankov/tributeguard/internal/schema"
)

func TestFlagPolicyExamples(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"I fucking miss you so much", nil},
		{"Fuck cancer for taking you", nil},
		{"Fuck cancer for taking you from us", nil},
		{"You were a fucking idiot and nobody liked you", []string{"fucking idiot", "nobody liked you"}},
		{"Rest in peace you stupid bitch", []string{"stupid bitch"}},
		{"Why the hell did this happen to someone so good", nil},
		{"Damn I wish you were still here", nil},
		{"Go to hell, you deserved this", []string{"Go to hell, you deserved this"}},
		{"Go to hell, cancer. You were the best dad.", nil},
		{"Cancer can go to hell for taking you", nil},
		{"ALS, burn in hell", nil},
		{"Rot in hell, COVID-19. We love you, Mum.", nil},
		{"Go to hell, cancer. You deserved it though.", []string{"You deserved it though"}},
		{"God has judged them", []string{"God has judged them"}},
		{"They're paying for their sins now", []string{"paying for their sins"}},
		{"God punished them for their choices", []string{"God punished them for their choices"}},
		{"They're with God now, at peace", nil},
		{"Heaven gained an angel today", nil},
		{"Rest in peace, beautiful soul", nil},
		{"I'm so fucking sad", nil},
		{"This is so damn unfair", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Flag(tt.text)
			if got == nil {
				t.Fatal("Flag must never return nil")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestFlagObfuscatedInsults(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"rest easy you stupid b1tch", "stupid b1tch"},
		{"you were always a f@ggot", "f@ggot"},
		{"what a r3tard", "r3tard"},
		{"rest easy you 5pic", "5pic"},
		{"you were a $lut", "$lut"},
		{"n1ggers, all of them", "n1ggers"},
	}
	for _, tt := range tests {
		got := Flag(tt.text)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("%q: expected [%q], got %q", tt.text, tt.want, got)
		}
	}
}

func TestFlagSentenceScopedJudgment(t *testing.T) {
	got := Flag("We will miss her laugh. She deserved it, honestly! Rest well.")
	if len(got) != 1 || got[0] != "She deserved it, honestly" {
		t.Fatalf("expected the judging sentence only, got %q", got)
	}
}

func TestFlagSpamAndThreats(t *testing.T) {
	got := Flag("So sorry for your loss. Buy now at https://example.com/deal")
	if len(got) != 2 || got[0] != "Buy now" || got[1] != "https://example.com/deal" {
		t.Fatalf("unexpected spam spans %q", got)
	}

	got = Flag("I'm going to find you and your family")
	if len(got) != 1 || got[0] != "I'm going to find you" {
		t.Fatalf("unexpected threat spans %q", got)
	}
}

func TestFoldLeetPreservesLength(t *testing.T) {
	for _, in := range []string{"b1tch", "hell!", "4 years", "n1gg3r", "a$$hole", "100%", "über"} {
		out := foldLeet(in)
		if len(out) != len(in) {
			t.Errorf("%q: length changed to %d", in, len(out))
		}
	}
	if foldLeet("hell!") != "hell!" {
		t.Error("trailing punctuation must not be folded")
	}
	if foldLeet("4 years") != "4 years" {
		t.Error("standalone digits must not be folded")
	}
	for in, want := range map[string]string{
		"b1tch":  "bitch",
		"5pic":   "spic",
		"$lut":   "slut",
		"hell0":  "hello",
		"sh!t":   "shit",
		"wow!!":  "wow!!",
		"2020":   "2020",
		"@ 9:30": "@ 9:30",
	} {
		if got := foldLeet(in); got != want {
			t.Errorf("foldLeet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStubExtractConformsToSchema(t *testing.T) {
	s := NewStub()
	for _, text := range []string{"I fucking miss you so much", "You were a fucking idiot and nobody liked you"} {
		raw, err := s.Extract(context.Background(), NewCall("stub", "any policy", text))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := schema.Decode(raw); err != nil {
			t.Fatalf("stub output does not conform: %v (%s)", err, raw)
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatal(err)
		}
		if string(m["flaggedContent"]) == "null" {
			t.Fatal("flaggedContent must be [] rather than null")
		}
	}
}

func TestStubHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStub().Extract(ctx, NewCall("stub", "p", "text")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestStubIsDeterministic(t *testing.T) {
	s := NewStub()
	call := NewCall("stub", "p", "You were a fucking idiot and nobody liked you")
	first, err := s.Extract(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Extract(context.Background(), call)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(first) {
			t.Fatalf("call %d differs: %s vs %s", i, again, first)
		}
	}
}
