package ui

import (
	"context"

	"threadchat/internal/auth"
	"threadchat/internal/chat"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

const expiredNotice = "Your session expired. Please sign in again."

type screen int

const (
	screenLogin screen = iota
	screenChat
)

type (
	stateChangedMsg   struct{}
	sessionExpiredMsg struct{}
	syncStoppedMsg    struct{ err error }
)

// Deps are the services the UI drives.
type Deps struct {
	Auth       Authenticator
	Keeper     *auth.Keeper
	State      *chat.State
	Syncer     *chat.Synchronizer
	Dispatcher *chat.Dispatcher
	Logger     zerolog.Logger
}

// Model represents the main application state
type Model struct {
	ctx    context.Context
	deps   Deps
	logger zerolog.Logger

	screen screen
	login  loginModel
	chat   chatModel

	// session scopes the synchronizer and the state watchers of one sign-in
	session       context.Context
	endSession    context.CancelFunc
	width, height int
}

// NewModel creates the UI, starting on the login screen.
func NewModel(ctx context.Context, deps Deps) Model {
	return Model{
		ctx:    ctx,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "ui").Logger(),
		screen: screenLogin,
		login:  newLoginModel(deps.Auth),
		chat:   newChatModel(deps.State, deps.Syncer, deps.Dispatcher),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

// Update handles UI events and state changes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chat.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stopSession()
			m.deps.Keeper.SignOut()
			return m, tea.Quit
		}

	case authResultMsg:
		if msg.err != nil || msg.session == nil {
			if msg.err != nil {
				m.logger.Warn().Err(msg.err).Msg("authentication failed")
			}
			break
		}
		return m, m.startSession(msg.session)

	case sessionExpiredMsg:
		m.logger.Info().Msg("session expired")
		m.stopSession()
		m.screen = screenLogin
		m.login.reset(expiredNotice)
		return m, textinput.Blink

	case stateChangedMsg:
		m.chat.refresh()
		return m, m.waitForChange()

	case syncStoppedMsg:
		if msg.err != nil {
			m.logger.Error().Err(msg.err).Msg("thread synchronizer stopped")
			m.chat.err = msg.err.Error()
			m.chat.render()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.screen == screenLogin {
		m.login, cmd = m.login.Update(msg)
	} else {
		m.chat, cmd = m.chat.Update(m.session, msg)
	}
	return m, cmd
}

func (m *Model) startSession(s *auth.Session) tea.Cmd {
	m.stopSession()
	m.deps.Keeper.Start(s)
	m.logger.Info().Str("user_id", s.UserID).Time("expires_at", s.ExpiresAt).Msg("signed in")

	m.session, m.endSession = context.WithCancel(m.ctx)
	m.login.pending = false
	m.screen = screenChat
	m.chat.refresh()

	return tea.Batch(
		m.runSyncer(),
		m.waitForChange(),
		m.waitForExpiry(),
		m.chat.Init(),
	)
}

func (m *Model) stopSession() {
	if m.endSession != nil {
		m.endSession()
		m.endSession = nil
	}
}

func (m Model) runSyncer() tea.Cmd {
	ctx, syncer := m.session, m.deps.Syncer
	return func() tea.Msg {
		return syncStoppedMsg{err: syncer.Run(ctx)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	ctx, changes := m.session, m.deps.State.Changes()
	if ctx == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-changes:
			return stateChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForExpiry() tea.Cmd {
	ctx, expired := m.session, m.deps.Keeper.Expired()
	return func() tea.Msg {
		select {
		case <-expired:
			return sessionExpiredMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// View renders the UI
func (m Model) View() string {
	if m.screen == screenLogin {
		return m.login.View(m.width, m.height)
	}
	email := ""
	if s := m.deps.Keeper.Session(); s != nil {
		email = s.Email
	}
	return m.chat.View(email)
}
