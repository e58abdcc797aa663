// Package content implements the content processor: block validation and
// serialization into a single prompt string, and a stateful streaming
// tokenizer that converts raw CLI output chunks back into content blocks.
//
// No teacher file does stateful text tokenization; this is new code,
// grounded on the shape of m4xw311-compell's content-block representation
// (type/text/uri/name/mimeType) and on spec section 4.4's own
// chunk-boundary rules for behavior.
package content

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spjoes/cursor-agent-acp/internal/acptypes"
)

// SerializeResult is the output of Serialize: the joined prompt string
// plus a per-block metadata record.
type SerializeResult struct {
	Prompt string
	Blocks []acptypes.BlockMeta
}

// Validate checks every block's variant invariants and returns the list of
// "Block N: <message>" violations, in order. It is total: every block is
// checked even after the first failure.
func Validate(blocks []acptypes.ContentBlock) []string {
	var errs []string
	for i, b := range blocks {
		if err := validateBlock(b); err != "" {
			errs = append(errs, fmt.Sprintf("Block %d: %s", i, err))
		}
	}
	return errs
}

func validateBlock(b acptypes.ContentBlock) string {
	switch b.Type {
	case acptypes.BlockText, acptypes.BlockCode:
		return ""
	case acptypes.BlockImage, acptypes.BlockAudio:
		if b.Data == "" {
			return "missing data"
		}
		if !isValidBase64(b.Data) {
			return "data must be valid base64"
		}
		return ""
	case acptypes.BlockResource:
		if b.Text == "" && b.Data == "" {
			return "resource must carry either text or blob"
		}
		if b.Data != "" && !isValidBase64(b.Data) {
			return "blob must be valid base64"
		}
		return ""
	case acptypes.BlockResourceLink:
		if b.URI == "" {
			return "resource_link must carry uri"
		}
		if b.Name == "" {
			return "resource_link must carry name"
		}
		return ""
	default:
		return fmt.Sprintf("unknown content block type %q", b.Type)
	}
}

func isValidBase64(s string) bool {
	_, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return true
	}
	_, err = base64.RawStdEncoding.DecodeString(s)
	return err == nil
}

// Serialize validates then renders blocks into a single prompt string,
// joined with a blank line between blocks.
func Serialize(blocks []acptypes.ContentBlock) (*SerializeResult, error) {
	if errs := Validate(blocks); len(errs) > 0 {
		return nil, fmt.Errorf("%s", errs[0])
	}

	rendered := make([]string, 0, len(blocks))
	meta := make([]acptypes.BlockMeta, 0, len(blocks))
	for i, b := range blocks {
		text, sanitized := renderBlock(b)
		rendered = append(rendered, text)
		meta = append(meta, acptypes.BlockMeta{
			Index:       i,
			Type:        b.Type,
			EmittedSize: len(text),
			Sanitized:   sanitized,
			Annotations: b.Annotations,
		})
	}

	return &SerializeResult{
		Prompt: strings.Join(rendered, "\n\n"),
		Blocks: meta,
	}, nil
}

func renderBlock(b acptypes.ContentBlock) (rendered string, sanitized bool) {
	switch b.Type {
	case acptypes.BlockText:
		return normalizeText(b.Text)
	case acptypes.BlockCode:
		body, _ := normalizeText(b.Text)
		var sb strings.Builder
		if b.Filename != "" {
			sb.WriteString("# File: ")
			sb.WriteString(b.Filename)
			sb.WriteString("\n")
		}
		sb.WriteString("```")
		sb.WriteString(b.Language)
		sb.WriteString("\n")
		sb.WriteString(body)
		sb.WriteString("\n```")
		return sb.String(), false
	case acptypes.BlockImage:
		var sb strings.Builder
		if b.URI != "" {
			fmt.Fprintf(&sb, "# Image: %s\n", b.URI)
		} else if b.Filename != "" {
			fmt.Fprintf(&sb, "# Image: %s\n", b.Filename)
		} else {
			fmt.Fprintf(&sb, "# Image (%s)\n", b.MimeType)
		}
		fmt.Fprintf(&sb, "[Image data: %s, %s base64]", b.MimeType, formatSize(int64(len(b.Data))))
		return sb.String(), false
	case acptypes.BlockAudio:
		return fmt.Sprintf("[Audio: %s, %s, format: %s]", b.MimeType, formatSize(int64(len(b.Data))), audioSubtype(b.MimeType)), false
	case acptypes.BlockResource:
		var sb strings.Builder
		fmt.Fprintf(&sb, "# Resource: %s\n", b.URI)
		if b.MimeType != "" {
			fmt.Fprintf(&sb, "%s\n", b.MimeType)
		}
		if b.Text != "" {
			body, _ := normalizeText(b.Text)
			sb.WriteString(body)
		} else {
			fmt.Fprintf(&sb, "[Binary data: %s]", formatSize(int64(len(b.Data))))
		}
		return sb.String(), false
	case acptypes.BlockResourceLink:
		var sb strings.Builder
		fmt.Fprintf(&sb, "# Resource Link: %s\n", b.URI)
		if b.Name != "" {
			fmt.Fprintf(&sb, "Title: %s\n", b.Name)
		}
		if b.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", b.Description)
		}
		if b.MimeType != "" {
			fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
		}
		if b.Size != nil {
			fmt.Fprintf(&sb, "Size: %s", formatBigSize(b.Size))
		}
		return strings.TrimRight(sb.String(), "\n"), false
	default:
		return "", false
	}
}

func audioSubtype(mime string) string {
	if idx := strings.Index(mime, "/"); idx >= 0 {
		return mime[idx+1:]
	}
	return mime
}

// normalizeText strips null bytes and collapses CRLF/CR to LF, per the
// content round-trip testable property (spec section 8).
func normalizeText(s string) (result string, sanitized bool) {
	if strings.Contains(s, "\x00") {
		s = strings.ReplaceAll(s, "\x00", "")
		sanitized = true
	}
	if strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		sanitized = true
	}
	if strings.Contains(s, "\r") {
		s = strings.ReplaceAll(s, "\r", "\n")
		sanitized = true
	}
	return s, sanitized
}

// binaryUnits are applied with 1024-ary division, one decimal place.
var binaryUnits = []string{"B", "KB", "MB", "GB"}

func formatSize(n int64) string {
	return formatBigSize(acptypes.NewBigSize(n))
}

func formatBigSize(b *acptypes.BigSize) string {
	if b.ExceedsSafeInteger() {
		return b.Int.String() + " bytes"
	}
	value := b.Int.Int64()
	unit := 0
	f := float64(value)
	for f >= 1024 && unit < len(binaryUnits)-1 {
		f /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f%s", f, binaryUnits[unit])
}
