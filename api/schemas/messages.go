package schemas

import (
	"encoding/json"
)

// -- Conversation Schemas --

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates the block variants inside a message.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
	ContentImage      ContentType = "image"
)

// ContentBlock is the wire representation of one message fragment. Exactly
// the fields relevant to its Type are populated; the rest stay zero and are
// omitted on the wire.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Tool-use blocks: identifier assigned by the model, action name, and
	// the raw parameter object. Input is kept raw so the exact bytes are
	// echoed back into history unchanged.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool-result blocks: the id of the tool_use being answered plus nested
	// text/image blocks describing the outcome.
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`

	// Image blocks.
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is a base64-encoded raster payload.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Message is one conversation turn: a role plus ordered content blocks.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewTextMessage builds a single-text-block message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// NewToolResultMessage builds the user message that answers a tool-use
// request. The tool-use identifier must be echoed verbatim.
func NewToolResultMessage(toolUseID string, blocks ...ContentBlock) Message {
	return Message{
		Role: RoleUser,
		Content: []ContentBlock{{
			Type:      ContentToolResult,
			ToolUseID: toolUseID,
			Content:   blocks,
		}},
	}
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ImageBlock builds an image content block from base64 PNG data.
func ImageBlock(data string) ContentBlock {
	return ContentBlock{
		Type: ContentImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: "image/png",
			Data:      data,
		},
	}
}

// -- Tool Advertisement --

// ComputerToolType is the versioned tool identifier understood by the
// computer-use beta endpoint.
const ComputerToolType = "computer_20241022"

// ComputerToolName is the fixed tool name the model addresses requests to.
const ComputerToolName = "computer"

// ToolDefinition advertises the computer tool and its display geometry.
type ToolDefinition struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	DisplayWidthPx  int    `json:"display_width_px"`
	DisplayHeightPx int    `json:"display_height_px"`
	DisplayNumber   int    `json:"display_number"`
}

// NewComputerTool builds the tool definition for a logical display size and
// 1-based display number.
func NewComputerTool(widthPx, heightPx, displayNumber int) ToolDefinition {
	return ToolDefinition{
		Type:            ComputerToolType,
		Name:            ComputerToolName,
		DisplayWidthPx:  widthPx,
		DisplayHeightPx: heightPx,
		DisplayNumber:   displayNumber,
	}
}
