package acptypes

// ContentBlock is a tagged union over {text, image, audio, resource,
// resource_link, code}. Fields are duck-typed: the wire shape is a flat
// object and unknown keys are preserved under Meta rather than rejected,
// since external callers may deliver fields this adapter doesn't know
// about yet.
type ContentBlock struct {
	Type string `json:"type"`

	// text, and the rendered body of code blocks
	Text string `json:"text,omitempty"`

	// code (internal-only; never appears on the wire as "code", only as
	// a rendered text block -- kept here for the content processor's
	// internal representation before serialization)
	Language string `json:"language,omitempty"`
	Filename string `json:"filename,omitempty"`

	// image / audio / resource (embedded blob)
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`

	// resource (embedded text)
	ResourceText string `json:"-"`

	// resource_link
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *BigSize `json:"size,omitempty"`

	Annotations *Annotations   `json:"annotations,omitempty"`
	Meta        map[string]any `json:"_meta,omitempty"`
}

// Content block type discriminants.
const (
	BlockText         = "text"
	BlockImage        = "image"
	BlockAudio        = "audio"
	BlockResource     = "resource"
	BlockResourceLink = "resource_link"
	BlockCode         = "code"
)

// Annotations carries optional per-block presentation hints.
type Annotations struct {
	Audience     []string       `json:"audience,omitempty"`
	LastModified string         `json:"lastModified,omitempty"`
	Priority     *float64       `json:"priority,omitempty"`
	Meta         map[string]any `json:"_meta,omitempty"`
}

// BlockMeta is the per-block record produced alongside serialization.
type BlockMeta struct {
	Index       int          `json:"index"`
	Type        string       `json:"type"`
	EmittedSize int          `json:"emittedSize"`
	Sanitized   bool         `json:"sanitized"`
	Annotations *Annotations `json:"annotations,omitempty"`
}
