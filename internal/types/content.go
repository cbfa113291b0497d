package types

import (
	"encoding/json"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/anthropic"
)

// BlockKind tags a ContentBlock variant.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockDocument   BlockKind = "document"
	BlockToolCall   BlockKind = "tool_call"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a message body. The set of variants is closed:
// TextBlock, ImageBlock, DocumentBlock, ToolCallBlock and ToolResultBlock.
type ContentBlock interface {
	Kind() BlockKind
	Cache() map[string]any
	isContentBlock()
}

type TextBlock struct {
	Text         string
	CacheControl map[string]any
}

type ImageBlock struct {
	Source       Source
	CacheControl map[string]any
}

type DocumentBlock struct {
	Source       Source
	CacheControl map[string]any
}

type ToolCallBlock struct {
	ID           string
	Name         string
	Arguments    any
	CacheControl map[string]any
}

type ToolResultBlock struct {
	ToolCallID   string
	Content      string
	IsError      bool
	CacheControl map[string]any
}

func (TextBlock) Kind() BlockKind       { return BlockText }
func (ImageBlock) Kind() BlockKind      { return BlockImage }
func (DocumentBlock) Kind() BlockKind   { return BlockDocument }
func (ToolCallBlock) Kind() BlockKind   { return BlockToolCall }
func (ToolResultBlock) Kind() BlockKind { return BlockToolResult }

func (b TextBlock) Cache() map[string]any       { return b.CacheControl }
func (b ImageBlock) Cache() map[string]any      { return b.CacheControl }
func (b DocumentBlock) Cache() map[string]any   { return b.CacheControl }
func (b ToolCallBlock) Cache() map[string]any   { return b.CacheControl }
func (b ToolResultBlock) Cache() map[string]any { return b.CacheControl }

func (TextBlock) isContentBlock()       {}
func (ImageBlock) isContentBlock()      {}
func (DocumentBlock) isContentBlock()   {}
func (ToolCallBlock) isContentBlock()   {}
func (ToolResultBlock) isContentBlock() {}

// SourceKind distinguishes inline payloads from remote references.
type SourceKind string

const (
	SourceBase64 SourceKind = "base64"
	SourceURL    SourceKind = "url"
)

// Source is the payload of an image or document block.
type Source struct {
	Kind      SourceKind
	MediaType string
	Data      string
	URL       string
}

// DecodedSize approximates the decoded byte size of an inline payload.
func (s Source) DecodedSize() int {
	if s.Kind != SourceBase64 {
		return 0
	}
	return len(s.Data) * 3 / 4
}

// ParseSource turns a data URL into an inline source and anything else into a
// remote reference.
func ParseSource(raw string) Source {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return Source{Kind: SourceURL, URL: raw}
	}
	header, data, _ := strings.Cut(raw, ",")
	mediaType := strings.TrimPrefix(header, "data:")
	mediaType, _, _ = strings.Cut(mediaType, ";")
	return Source{Kind: SourceBase64, MediaType: strings.ToLower(strings.TrimSpace(mediaType)), Data: data}
}

type rawBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	ImageURL     json.RawMessage `json:"image_url"`
	PDFURL       json.RawMessage `json:"pdf_url"`
	CacheControl map[string]any  `json:"cache_control"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Input        any             `json:"input"`
	Arguments    any             `json:"arguments"`
	Parameters   any             `json:"parameters"`
	Args         any             `json:"args"`
	Function     *struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"function"`
	ToolCallID string          `json:"tool_call_id"`
	ToolUseID  string          `json:"tool_use_id"`
	Content    json.RawMessage `json:"content"`
	IsError    bool            `json:"is_error"`
}

func (rb rawBlock) toBlock() (ContentBlock, bool) {
	switch strings.ToLower(strings.TrimSpace(rb.Type)) {
	case "", "text":
		return TextBlock{Text: rb.Text, CacheControl: rb.CacheControl}, true
	case "image_url", "image":
		return ImageBlock{Source: ParseSource(urlField(rb.ImageURL)), CacheControl: rb.CacheControl}, true
	case "pdf_url", "document":
		return DocumentBlock{Source: ParseSource(urlField(rb.PDFURL)), CacheControl: rb.CacheControl}, true
	case "tool_calls", "tool_call", "tool_use":
		block := ToolCallBlock{ID: rb.ID, Name: rb.Name, CacheControl: rb.CacheControl}
		var fnArgs any
		if rb.Function != nil {
			if rb.Function.Name != "" {
				block.Name = rb.Function.Name
			}
			fnArgs = rb.Function.Arguments
		}
		block.Arguments = anthropic.FirstToolInput(fnArgs, rb.Input, rb.Arguments, rb.Parameters, rb.Args)
		return block, true
	case "tool_results", "tool_result":
		id := rb.ToolCallID
		if id == "" {
			id = rb.ToolUseID
		}
		return ToolResultBlock{ToolCallID: id, Content: rawText(rb.Content), IsError: rb.IsError, CacheControl: rb.CacheControl}, true
	default:
		if rb.Text != "" {
			return TextBlock{Text: rb.Text, CacheControl: rb.CacheControl}, true
		}
		return nil, false
	}
}

// urlField reads either "url" or {"url": "..."}.
func urlField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// rawText flattens a string or a list of text blocks into plain text.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out strings.Builder
		for _, b := range blocks {
			if b.Type == "" || b.Type == "text" {
				out.WriteString(b.Text)
			}
		}
		return out.String()
	}
	return strings.TrimSpace(string(raw))
}
