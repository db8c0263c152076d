package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sszokoly/sbctail/internal/model"
)

// Renderer writes Message values to an output stream.
type Renderer interface {
	Render(msg model.Message) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleIn     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // cyan
	styleOut    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	styleMethod = lipgloss.NewStyle().Bold(true)
	styleProto  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true) // gray
)

// TextRenderer prints messages to the terminal with direction-based colors.
type TextRenderer struct {
	w       io.Writer
	verbose bool
}

// NewTextRenderer returns a Renderer that writes colorized text to stdout.
// With verbose set, the full message body is printed under each header.
func NewTextRenderer(verbose bool) *TextRenderer {
	return &TextRenderer{w: os.Stdout, verbose: verbose}
}

func (r *TextRenderer) Render(msg model.Message) error {
	dir := styleDirectionTag(msg.Direction)
	ts := msg.Timestamp.Format("15:04:05.000000")

	line := fmt.Sprintf("%s %s %s:%d --> %s:%d %s %s",
		ts, dir,
		msg.SrcIP, msg.SrcPort, msg.DstIP, msg.DstPort,
		styleProto.Render("("+msg.Proto+")"),
		styleMethod.Render(msg.Method))

	if _, err := fmt.Fprintln(r.w, line); err != nil {
		return err
	}
	if r.verbose && msg.Body != "" {
		if _, err := fmt.Fprintln(r.w, msg.Body); err != nil {
			return err
		}
	}
	return nil
}

func styleDirectionTag(dir model.Direction) string {
	padded := fmt.Sprintf("%-3s", string(dir))
	switch dir {
	case model.DirIn:
		return styleIn.Render(padded)
	case model.DirOut:
		return styleOut.Render(padded)
	default:
		return styleProto.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each message as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to stdout.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(os.Stdout)}
}

func (r *JSONRenderer) Render(msg model.Message) error {
	return r.enc.Encode(msg)
}
