package history

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/soyeahso/zueira/internal/domain"
)

// Record is the plain JSON shape of one persisted message.
//
// New documents only use Role, Content, ToolCallID and Metadata. Type and
// Kwargs are read so that documents written by earlier versions of the bot
// (LangChain-serialized messages and the flat {type, content} layout) stay
// loadable.
type Record struct {
	Role       string                     `json:"role,omitempty"`
	Content    json.RawMessage            `json:"content,omitempty"`
	ToolCallID string                     `json:"tool_call_id,omitempty"`
	Metadata   map[string]json.RawMessage `json:"metadata,omitempty"`

	Type   string        `json:"type,omitempty"`
	Kwargs *legacyKwargs `json:"kwargs,omitempty"`
}

type legacyKwargs struct {
	Content          json.RawMessage            `json:"content,omitempty"`
	ToolCallID       string                     `json:"tool_call_id,omitempty"`
	AdditionalKwargs map[string]json.RawMessage `json:"additional_kwargs,omitempty"`
}

// roleAliases maps every tag ever written to disk to a role.
var roleAliases = map[string]domain.Role{
	"system":    domain.RoleSystem,
	"user":      domain.RoleUser,
	"human":     domain.RoleUser,
	"assistant": domain.RoleAssistant,
	"ai":        domain.RoleAssistant,
	"tool":      domain.RoleTool,
}

// Encode converts a message to its persisted form. It reports false when the
// message cannot be represented: an unknown role or metadata that is not
// valid JSON.
func Encode(m domain.Message) (Record, bool) {
	if !m.Role.Valid() {
		return Record{}, false
	}
	for _, v := range m.Metadata {
		if !json.Valid(v) {
			return Record{}, false
		}
	}
	content, err := json.Marshal(m.Content)
	if err != nil {
		return Record{}, false
	}
	rec := Record{
		Role:     string(m.Role),
		Content:  content,
		Metadata: m.Metadata,
	}
	if m.Role == domain.RoleTool {
		rec.ToolCallID = m.ToolCallID
	}
	return rec, true
}

// Decode converts a persisted record back to a message. Unrecognised tags
// yield a message with RoleUnknown, which callers drop. A tool result with no
// recoverable call id decodes with an empty id.
func Decode(r Record) domain.Message {
	tag := r.Role
	if tag == "" {
		tag = r.Type
	}
	role, ok := roleAliases[strings.ToLower(tag)]
	if !ok {
		return domain.Message{Role: domain.RoleUnknown}
	}

	content := r.Content
	toolCallID := r.ToolCallID
	metadata := r.Metadata
	if r.Kwargs != nil {
		if len(content) == 0 {
			content = r.Kwargs.Content
		}
		if toolCallID == "" {
			toolCallID = r.Kwargs.ToolCallID
		}
		if len(metadata) == 0 && len(r.Kwargs.AdditionalKwargs) > 0 {
			metadata = r.Kwargs.AdditionalKwargs
		}
	}

	msg := domain.Message{
		Role:     role,
		Content:  decodeContent(content),
		Metadata: compactMetadata(metadata),
	}
	if role == domain.RoleTool {
		msg.ToolCallID = toolCallID
	}
	return msg
}

// compactMetadata strips the indentation documents are written with, so a
// decoded value matches what was encoded.
func compactMetadata(md map[string]json.RawMessage) map[string]json.RawMessage {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(md))
	for k, v := range md {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			out[k] = v
			continue
		}
		out[k] = buf.Bytes()
	}
	return out
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// decodeContent accepts a plain string or an array of text parts.
// Anything else decodes as empty content.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
