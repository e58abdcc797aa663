package content

import (
	"regexp"
	"strings"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// maxLineBuffer is the length threshold past which an unbroken run of
// text is flushed even without a newline, per spec section 4.4 rule 4.
const maxLineBuffer = 100

var imageRefPattern = regexp.MustCompile(`\[Image data: [^\]]*\]`)

// Tokenizer is the single-threaded, cooperative streaming state machine
// that converts arbitrary text chunks into content blocks at chunk
// boundaries. One Tokenizer serves exactly one stream at a time.
type Tokenizer struct {
	inCodeBlock bool
	language    string
	buffer      string
}

// NewTokenizer returns a Tokenizer ready to accept its first chunk.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Feed appends chunk to the internal buffer and applies the first
// matching rule from spec section 4.4, returning the blocks (zero, one,
// or -- for the image-reference rule -- two) produced by that single
// rule application.
func (t *Tokenizer) Feed(chunk string) []acptypes.ContentBlock {
	t.buffer += chunk

	if !t.inCodeBlock {
		if idx := strings.Index(t.buffer, "```"); idx >= 0 {
			return t.openCodeBlock(idx)
		}
		if hasPartialFenceSuffix(t.buffer) {
			return nil
		}
		if loc := imageRefPattern.FindStringIndex(t.buffer); loc != nil {
			return t.emitImageReference(loc)
		}
		if strings.ContainsRune(t.buffer, '\n') || len(t.buffer) > maxLineBuffer {
			return t.flushText()
		}
		return nil
	}

	if idx := t.findClosingFence(); idx >= 0 {
		return t.closeCodeBlock(idx)
	}
	return nil
}

// Finalize flushes whatever remains in the buffer at end of stream: a
// fenced code block if still inside one (and non-empty after trimming),
// else a trailing text block.
func (t *Tokenizer) Finalize() []acptypes.ContentBlock {
	if t.inCodeBlock {
		body := strings.TrimSpace(t.buffer)
		t.buffer = ""
		t.inCodeBlock = false
		if body == "" {
			return nil
		}
		return []acptypes.ContentBlock{codeBlock(t.language, body)}
	}

	body := strings.TrimSpace(t.buffer)
	t.buffer = ""
	if body == "" {
		return nil
	}
	return []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: body}}
}

func (t *Tokenizer) openCodeBlock(fenceIdx int) []acptypes.ContentBlock {
	rest := t.buffer[fenceIdx+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		// The language line hasn't fully arrived yet; wait for more data
		// before committing to entering code state.
		return nil
	}

	pre := t.buffer[:fenceIdx]
	lang := rest[:nl]
	if !isWordToken(lang) {
		lang = ""
	}

	t.inCodeBlock = true
	t.language = lang
	t.buffer = rest[nl+1:]

	if trimmed := strings.TrimSpace(pre); trimmed != "" {
		return []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: trimmed}}
	}
	return nil
}

// findClosingFence returns the index of a "```" that is preceded by
// newline-or-start and followed by newline-or-end-or-whitespace, or -1.
func (t *Tokenizer) findClosingFence() int {
	buf := t.buffer
	search := 0
	for {
		rel := strings.Index(buf[search:], "```")
		if rel < 0 {
			return -1
		}
		idx := search + rel
		precededOK := idx == 0 || buf[idx-1] == '\n'
		followedOK := true
		if idx+3 < len(buf) {
			c := buf[idx+3]
			followedOK = c == '\n' || c == ' ' || c == '\t'
		}
		if precededOK && followedOK {
			return idx
		}
		search = idx + 3
	}
}

func (t *Tokenizer) closeCodeBlock(fenceIdx int) []acptypes.ContentBlock {
	body := strings.TrimSuffix(t.buffer[:fenceIdx], "\n")
	rest := t.buffer[fenceIdx+3:]

	lang := t.language
	t.inCodeBlock = false
	t.language = ""
	t.buffer = rest

	return []acptypes.ContentBlock{codeBlock(lang, body)}
}

func (t *Tokenizer) emitImageReference(loc []int) []acptypes.ContentBlock {
	pre := strings.TrimSpace(t.buffer[:loc[0]])
	ref := t.buffer[loc[0]:loc[1]]
	t.buffer = t.buffer[loc[1]:]

	var blocks []acptypes.ContentBlock
	if pre != "" {
		blocks = append(blocks, acptypes.ContentBlock{Type: acptypes.BlockText, Text: pre})
	}
	blocks = append(blocks, acptypes.ContentBlock{
		Type: acptypes.BlockText,
		Text: ref,
		Annotations: &acptypes.Annotations{
			Meta: map[string]any{"isImageReference": true},
		},
	})
	return blocks
}

func (t *Tokenizer) flushText() []acptypes.ContentBlock {
	if idx := strings.LastIndexByte(t.buffer, '\n'); idx >= 0 {
		emitted := t.buffer[:idx+1]
		t.buffer = t.buffer[idx+1:]
		return []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: emitted}}
	}
	// No newline at all but past the length threshold: there is nothing
	// to truncate at, so the whole buffer goes out.
	emitted := t.buffer
	t.buffer = ""
	return []acptypes.ContentBlock{{Type: acptypes.BlockText, Text: emitted}}
}

func codeBlock(lang, body string) acptypes.ContentBlock {
	return acptypes.ContentBlock{
		Type: acptypes.BlockText,
		Text: "```" + lang + "\n" + body + "\n```",
	}
}

func hasPartialFenceSuffix(s string) bool {
	return strings.HasSuffix(s, "``") || strings.HasSuffix(s, "`")
}

func isWordToken(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
