package ui

import (
	"context"
	"fmt"
	"strings"

	"threadchat/internal/chat"
	"threadchat/internal/models"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type FocusState int

const (
	FocusSidebar FocusState = iota
	FocusChat
)

const previewLength = 40

// threadItem shows a thread in the sidebar list.
type threadItem struct {
	thread models.Thread
}

func (i threadItem) Title() string { return i.thread.Title }

func (i threadItem) Description() string {
	preview := i.thread.Preview(previewLength)
	if i.thread.Timestamp.IsZero() {
		return preview
	}
	return preview + " · " + i.thread.Timestamp.Format("Jan 2")
}

func (i threadItem) FilterValue() string { return i.thread.Title }

type (
	sendDoneMsg      struct{}
	newThreadDoneMsg struct{ err error }
	clearDoneMsg     struct{}
)

type chatModel struct {
	state      *chat.State
	syncer     *chat.Synchronizer
	dispatcher *chat.Dispatcher

	viewport viewport.Model
	textarea textarea.Model
	threads  list.Model
	spinner  spinner.Model
	renderer *renderer

	view         chat.View
	focus        FocusState
	confirmClear bool
	err          string
	ready        bool
	width        int
	height       int
	sidebarWidth int
}

func newChatModel(state *chat.State, syncer *chat.Synchronizer, dispatcher *chat.Dispatcher) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.Focus()

	threads := list.New(nil, list.NewDefaultDelegate(), 30, 20)
	threads.Title = "Conversations"
	threads.SetShowStatusBar(false)
	threads.SetFilteringEnabled(false)
	threads.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = BusyStyle

	return chatModel{
		state:        state,
		syncer:       syncer,
		dispatcher:   dispatcher,
		viewport:     viewport.New(50, 20),
		textarea:     ta,
		threads:      threads,
		spinner:      sp,
		focus:        FocusChat,
		sidebarWidth: 30,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m *chatModel) resize(width, height int) {
	m.width = width
	m.height = height
	chatWidth := width - m.sidebarWidth - 2
	chatHeight := height - 6
	if chatWidth < 10 {
		chatWidth = 10
	}
	if chatHeight < 3 {
		chatHeight = 3
	}

	m.viewport.Width = chatWidth
	m.viewport.Height = chatHeight
	m.textarea.SetWidth(chatWidth - 2)
	m.threads.SetSize(m.sidebarWidth-2, chatHeight+3)
	m.renderer = newRenderer(chatWidth - 4)
	m.ready = true
	m.render()
}

// refresh pulls the shared state into the widgets.
func (m *chatModel) refresh() {
	m.view = m.state.Snapshot()

	items := make([]list.Item, len(m.view.Threads))
	selected := -1
	for i, t := range m.view.Threads {
		items[i] = threadItem{thread: t}
		if t.ID == m.view.ActiveID {
			selected = i
		}
	}
	m.threads.SetItems(items)
	if selected >= 0 && m.focus == FocusChat {
		m.threads.Select(selected)
	}

	// the dispatcher clears the input when a send starts
	if m.view.Input != m.textarea.Value() {
		m.textarea.SetValue(m.view.Input)
	}
	m.render()
}

func (m *chatModel) render() {
	spin := ""
	if m.view.Busy {
		spin = m.spinner.View()
	}
	content := renderMessages(m.renderer, m.view.Messages, m.view.Busy, spin)
	if m.err != "" {
		content += MessageStyle.Render(ErrorStyle.Render("Error: " + m.err))
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m chatModel) Update(ctx context.Context, msg tea.Msg) (chatModel, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
		tlCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.view.Busy {
			m.render()
		}
		return m, cmd

	case newThreadDoneMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("failed to create conversation: %v", msg.err)
		}
		m.render()
		return m, nil

	case sendDoneMsg, clearDoneMsg:
		return m, nil

	case tea.KeyMsg:
		if m.confirmClear {
			m.confirmClear = false
			if msg.String() == "y" || msg.String() == "Y" {
				return m, m.clear(ctx)
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyTab:
			if m.focus == FocusSidebar {
				m.focus = FocusChat
				m.textarea.Focus()
			} else {
				m.focus = FocusSidebar
				m.textarea.Blur()
			}
			return m, nil

		case tea.KeyCtrlN:
			m.err = ""
			m.focus = FocusChat
			m.textarea.Focus()
			return m, m.newThread(ctx)

		case tea.KeyCtrlD:
			if m.view.ActiveID != "" && len(m.view.Messages) > 0 {
				m.confirmClear = true
			}
			return m, nil

		case tea.KeyEnter:
			if m.focus == FocusSidebar {
				if item, ok := m.threads.SelectedItem().(threadItem); ok {
					m.syncer.Select(item.thread.ID)
					m.focus = FocusChat
					m.textarea.Focus()
				}
				return m, nil
			}
			text := m.textarea.Value()
			if m.view.Busy || strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.err = ""
			return m, m.send(ctx, text)
		}
	}

	if m.focus == FocusChat {
		before := m.textarea.Value()
		m.textarea, taCmd = m.textarea.Update(msg)
		if after := m.textarea.Value(); after != before {
			m.state.SetInput(after)
		}
	} else {
		m.threads, tlCmd = m.threads.Update(msg)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(taCmd, vpCmd, tlCmd)
}

func (m chatModel) send(ctx context.Context, text string) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		d.Send(ctx, text)
		return sendDoneMsg{}
	}
}

func (m chatModel) newThread(ctx context.Context) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		return newThreadDoneMsg{err: d.NewThread(ctx)}
	}
}

func (m chatModel) clear(ctx context.Context) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		d.Clear(ctx)
		return clearDoneMsg{}
	}
}

func (m chatModel) View(email string) string {
	if !m.ready {
		return "\n  Initializing..."
	}

	sidebarContent := m.threads.View()
	var sidebar string
	if m.focus == FocusSidebar {
		sidebar = SidebarFocusedStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	} else {
		sidebar = SidebarStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	}

	chatWidth := m.width - m.sidebarWidth - 2
	header := "AI Chat Interface"
	if email != "" {
		header += " · " + email
	}
	footer := m.textarea.View()
	if m.confirmClear {
		footer = NoticeStyle.Render("Are you sure you want to clear this chat? This cannot be undone. (y/n)")
	}

	chatArea := ChatStyle.Width(chatWidth).Render(
		fmt.Sprintf("%s\n%s\n%s", TitleStyle.Width(chatWidth).Render(header), m.viewport.View(), footer),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chatArea)
}
