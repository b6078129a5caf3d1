package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a flag value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", errors.New("invalid --output format (expected text|json|yaml)")
	}
}

// Printer renders command results.
type Printer struct {
	w      io.Writer
	format Format
	query  string
}

// NewPrinter creates a printer. A non-empty query forces structured output.
func NewPrinter(w io.Writer, format Format, query string) *Printer {
	if query != "" && format == FormatText {
		format = FormatJSON
	}
	return &Printer{w: w, format: format, query: query}
}

// Print writes data in the configured format; text falls back to the given
// renderer.
func (p *Printer) Print(data any, text func(io.Writer) error) error {
	if p.format == FormatText {
		return text(p.w)
	}

	values := []any{data}
	if p.query != "" {
		var err error
		if values, err = runQuery(p.query, data); err != nil {
			return err
		}
	}

	for _, v := range values {
		if err := p.encode(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) encode(v any) error {
	if p.format == FormatYAML {
		normalized, err := normalize(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(normalized)
	}

	enc := json.NewEncoder(p.w)
	enc.SetEscapeHTML(false)
	if p.query == "" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// normalize round-trips v through JSON so jq and YAML see the wire field names.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func runQuery(query string, data any) ([]any, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}
	input, err := normalize(data)
	if err != nil {
		return nil, err
	}

	var out []any
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("query error: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// printMessage prints a status line in text mode and a {"message": ...}
// object otherwise.
func (p *Printer) printMessage(msg string, extra map[string]any) error {
	data := map[string]any{"message": msg}
	for k, v := range extra {
		data[k] = v
	}
	return p.Print(data, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, msg)
		return err
	})
}
