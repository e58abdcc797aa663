package content

import (
	"testing"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

func TestTokenizerStreamingCodeScenario(t *testing.T) {
	tok := NewTokenizer()

	first := tok.Feed("Intro line\n")
	if len(first) != 1 || first[0].Text != "Intro line\n" {
		t.Fatalf("unexpected first block: %+v", first)
	}

	second := tok.Feed("```go\nfmt.")
	if len(second) != 0 {
		t.Fatalf("expected no block yet, got %+v", second)
	}

	third := tok.Feed("Println(\"hi\")\n```\n")
	if len(third) != 1 {
		t.Fatalf("expected exactly one block, got %+v", third)
	}
	want := "```go\nfmt.Println(\"hi\")\n```"
	if third[0].Text != want {
		t.Fatalf("got %q, want %q", third[0].Text, want)
	}
}

func TestTokenizerStreamingEquivalence(t *testing.T) {
	full := "prose before\nsome more prose\n```py\nprint(1)\nprint(2)\n```\nprose after\n"

	oneShot := NewTokenizer()
	var wholeBlocks []acptypes.ContentBlock
	wholeBlocks = append(wholeBlocks, oneShot.Feed(full)...)
	wholeBlocks = append(wholeBlocks, oneShot.Finalize()...)

	chunked := NewTokenizer()
	var chunkedBlocks []acptypes.ContentBlock
	for _, r := range full {
		chunkedBlocks = append(chunkedBlocks, chunked.Feed(string(r))...)
	}
	chunkedBlocks = append(chunkedBlocks, chunked.Finalize()...)

	joinText := func(blocks []acptypes.ContentBlock) string {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}

	if joinText(wholeBlocks) != joinText(chunkedBlocks) {
		t.Fatalf("streaming text diverged:\n one-shot: %q\n chunked:  %q", joinText(wholeBlocks), joinText(chunkedBlocks))
	}
}

func TestValidateBase64Guard(t *testing.T) {
	errs := Validate([]acptypes.ContentBlock{{Type: acptypes.BlockImage, Data: "not-base64!!"}})
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if !contains(errs[0], "valid base64") {
		t.Fatalf("expected message to mention valid base64, got %q", errs[0])
	}
}

func TestValidateResourceLinkRequiresURIAndName(t *testing.T) {
	errs := Validate([]acptypes.ContentBlock{{Type: acptypes.BlockResourceLink}})
	if len(errs) == 0 {
		t.Fatal("expected a validation error")
	}
}

func TestNormalizeTextCollapsesCRLF(t *testing.T) {
	got, sanitized := normalizeText("a\r\nb\rc\x00d")
	if got != "a\nb\ncd" {
		t.Fatalf("got %q", got)
	}
	if !sanitized {
		t.Fatal("expected sanitized=true")
	}
}

func TestFormatBigSizeExactForHugeValues(t *testing.T) {
	huge := acptypes.NewBigSize(0)
	huge.Int.SetString("99999999999999999999999999", 10)
	got := formatBigSize(huge)
	if got[len(got)-6:] != " bytes" {
		t.Fatalf("expected exact bytes suffix, got %q", got)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
