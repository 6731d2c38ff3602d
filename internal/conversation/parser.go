package conversation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
)

const (
	maxLineBytes = 10 * 1024 * 1024
	maxErrors    = 10
	titleRunes   = 80
)

// jsonlLine is one record of a Claude Code session file.
type jsonlLine struct {
	UUID      string          `json:"uuid"`
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Summary   string          `json:"summary,omitempty"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Parser reads session files. The zero value is ready to use.
type Parser struct {
	// Now dates messages without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// NewParser returns a Parser.
func NewParser() *Parser { return &Parser{Now: time.Now} }

// ParseFile parses the session at path. The session id defaults to the file
// name without its extension.
func (p *Parser) ParseFile(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()
	return p.Parse(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// Parse reads JSONL records from r. Only user and assistant records with text
// or tool calls become messages.
func (p *Parser) Parse(r io.Reader, sessionID string) (*Transcript, error) {
	t := &Transcript{SessionID: sessionID}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var line jsonlLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.skip(lineNum, fmt.Sprintf("invalid json: %v", err))
			continue
		}
		if line.Type == "summary" && t.Title == "" {
			t.Title = line.Summary
			continue
		}
		if line.Type != string(RoleUser) && line.Type != string(RoleAssistant) {
			continue
		}

		msg, err := p.message(line)
		if err != nil {
			t.skip(lineNum, err.Error())
			continue
		}
		if msg == nil {
			continue
		}
		if t.SessionID == "" {
			t.SessionID = msg.SessionID
		}
		t.Messages = append(t.Messages, *msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	t.render()
	return t, nil
}

func (t *Transcript) skip(line int, msg string) {
	t.Skipped++
	if len(t.Errors) < maxErrors {
		t.Errors = append(t.Errors, ParseError{Line: line, Err: msg})
	}
}

func (p *Parser) message(line jsonlLine) (*Message, error) {
	msg := &Message{
		UUID:      line.UUID,
		SessionID: line.SessionID,
		Role:      Role(line.Type),
		Timestamp: p.timestamp(line.Timestamp),
	}

	if len(line.Message) == 0 {
		return nil, nil
	}

	// User records sometimes carry the message as a bare string.
	var plain string
	if err := json.Unmarshal(line.Message, &plain); err == nil {
		msg.Content = strings.TrimSpace(plain)
	} else {
		var body messageBody
		if err := json.Unmarshal(line.Message, &body); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		text, calls, err := content(body.Content)
		if err != nil {
			return nil, err
		}
		msg.Content, msg.ToolCalls = text, calls
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return nil, nil
	}
	return msg, nil
}

func content(raw json.RawMessage) (string, []ToolCall, error) {
	if len(raw) == 0 {
		return "", nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil, nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, fmt.Errorf("invalid content: %w", err)
	}

	var (
		parts []string
		calls []ToolCall
	)
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if s := strings.TrimSpace(b.Text); s != "" {
				parts = append(parts, s)
			}
		case "tool_use":
			calls = append(calls, ToolCall{Name: b.Name, Path: toolPath(b.Input)})
		}
	}
	return strings.Join(parts, "\n"), calls, nil
}

func toolPath(input json.RawMessage) string {
	var params map[string]any
	if err := json.Unmarshal(input, &params); err != nil {
		return ""
	}
	for _, k := range []string{"file_path", "path", "notebook_path"} {
		if s, ok := params[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (p *Parser) timestamp(s string) time.Time {
	if s != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC()
		}
	}
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// render builds Text and Marks from Messages. Tool calls with a path are
// listed after the message text so file references survive extraction.
func (t *Transcript) render() {
	var b strings.Builder
	t.Marks = make([]extraction.TimeMark, 0, len(t.Messages))
	for i, m := range t.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		t.Marks = append(t.Marks, extraction.TimeMark{Offset: b.Len(), Time: m.Timestamp})

		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(m.Content)
		for _, c := range m.ToolCalls {
			if c.Path == "" {
				continue
			}
			fmt.Fprintf(&b, "\n(%s %s)", c.Name, c.Path)
		}
	}
	t.Text = b.String()

	if t.Title == "" {
		for _, m := range t.Messages {
			if m.Role == RoleUser && m.Content != "" {
				t.Title = firstLine(m.Content, titleRunes)
				break
			}
		}
	}
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) > max {
		return string(r[:max]) + "..."
	}
	return string(r)
}
