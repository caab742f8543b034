package ui

import (
	"context"
	"strings"

	"threadchat/internal/auth"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Authenticator signs users in and up and checks the tokens it hands out.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// authResultMsg carries the outcome of a sign-in or sign-up attempt.
type authResultMsg struct {
	session *auth.Session
	err     error
}

type loginModel struct {
	auth     Authenticator
	email    textinput.Model
	password textinput.Model
	focus    int
	signUp   bool
	pending  bool
	err      string
	notice   string
}

func newLoginModel(a Authenticator) loginModel {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email:    "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "at least 6 characters"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginModel{auth: a, email: email, password: password}
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case authResultMsg:
		m.pending = false
		if msg.err != nil {
			m.err = auth.Describe(msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if m.pending {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
			m.setFocus(1 - m.focus)
			return m, nil
		case tea.KeyCtrlR:
			m.signUp = !m.signUp
			m.err = ""
			return m, nil
		case tea.KeyEnter:
			if m.focus == 0 {
				m.setFocus(1)
				return m, nil
			}
			m.pending = true
			m.err = ""
			m.notice = ""
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *loginModel) setFocus(i int) {
	m.focus = i
	if i == 0 {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.email.Blur()
		m.password.Focus()
	}
}

func (m loginModel) submit() tea.Cmd {
	email := strings.TrimSpace(m.email.Value())
	password := m.password.Value()
	signUp := m.signUp
	a := m.auth
	return func() tea.Msg {
		ctx := context.Background()
		var (
			s   *auth.Session
			err error
		)
		if signUp {
			s, err = a.SignUp(ctx, email, password)
		} else {
			s, err = a.SignIn(ctx, email, password)
		}
		if err != nil {
			return authResultMsg{err: err}
		}
		return authResultMsg{session: s, err: checkSession(a, s)}
	}
}

// checkSession rejects a session whose token does not verify or names a
// different user.
func checkSession(a Authenticator, s *auth.Session) error {
	if s == nil {
		return nil
	}
	claims, err := a.Verify(s.Token)
	if err != nil {
		return err
	}
	if claims.Subject != s.UserID {
		return &auth.Error{Code: auth.CodeInvalidToken}
	}
	return nil
}

// reset clears the form and shows notice, keeping the email.
func (m *loginModel) reset(notice string) {
	m.password.Reset()
	m.pending = false
	m.err = ""
	m.notice = notice
	m.setFocus(1)
}

func (m loginModel) View(width, height int) string {
	title := "Sign in"
	toggle := "ctrl+r: create an account"
	if m.signUp {
		title = "Sign up"
		toggle = "ctrl+r: use an existing account"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(title) + "\n\n")
	if m.notice != "" {
		b.WriteString(NoticeStyle.Render(m.notice) + "\n\n")
	}
	b.WriteString(m.email.View() + "\n")
	b.WriteString(m.password.View() + "\n\n")
	switch {
	case m.pending:
		b.WriteString(BusyStyle.Render("Please wait...") + "\n")
	case m.err != "":
		b.WriteString(ErrorStyle.Render(m.err) + "\n")
	}
	b.WriteString(HelpStyle.Render("tab: switch field • enter: submit • " + toggle + " • ctrl+c: quit"))

	box := LoginBoxStyle.Render(b.String())
	if width == 0 || height == 0 {
		return box
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
