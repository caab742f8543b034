package ui

import (
	"strings"

	"threadchat/internal/models"

	"github.com/charmbracelet/glamour"
)

// TimeFormat is how message times are shown.
const TimeFormat = "3:04 PM"

const welcome = "Welcome to the AI Chat Interface!\nStart typing to begin a conversation.\n\n"

var helpLines = []string{
	"Controls:",
	"• Tab - Switch between sidebar and chat",
	"• Ctrl+N - New conversation",
	"• Enter - Send message / Select conversation",
	"• Ctrl+D - Clear conversation",
	"• Ctrl+C - Quit",
}

// renderer turns assistant markdown into terminal text, falling back to the
// raw content when glamour fails.
type renderer struct {
	width int
	md    *glamour.TermRenderer
}

func newRenderer(width int) *renderer {
	r := &renderer{width: width}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.md = md
	}
	return r
}

func (r *renderer) markdown(content string) string {
	if r == nil || r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// renderMessages lays out the conversation for the viewport.
func renderMessages(r *renderer, messages []models.Message, busy bool, spin string) string {
	var content strings.Builder

	if len(messages) == 0 {
		content.WriteString(welcome)
		for _, line := range helpLines {
			content.WriteString(HelpStyle.Render(line) + "\n")
		}
		content.WriteString("\n")
	}

	for _, msg := range messages {
		stamp := TimeStyle.Render("[" + msg.Time.Format(TimeFormat) + "]")
		if msg.Role == models.RoleUser {
			content.WriteString(MessageStyle.Render(
				UserStyle.Render("You") + " " + stamp + "\n" + msg.Content,
			))
		} else {
			content.WriteString(MessageStyle.Render(
				AssistantStyle.Render("Assistant") + " " + stamp + "\n" + r.markdown(msg.Content),
			))
		}
		content.WriteString("\n")
	}

	if busy {
		content.WriteString(MessageStyle.Render(spin + BusyStyle.Render(" Assistant is typing...")))
		content.WriteString("\n")
	}
	return content.String()
}
