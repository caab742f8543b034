package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"threadchat/internal/auth"
	"threadchat/internal/chat"
	"threadchat/internal/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	session   *auth.Session
	err       error
	verifyErr error
	subject   string
	signUps   int
	verified  []string
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	return f.session, f.err
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (*auth.Session, error) {
	f.signUps++
	return f.session, f.err
}

func (f *fakeAuth) Verify(token string) (*auth.Claims, error) {
	f.verified = append(f.verified, token)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	subject := f.subject
	if subject == "" && f.session != nil {
		subject = f.session.UserID
	}
	claims := &auth.Claims{}
	claims.Subject = subject
	return claims, nil
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestLogin_TogglesSignUp(t *testing.T) {
	m := newLoginModel(&fakeAuth{})
	assert.Contains(t, m.View(0, 0), "Sign in")

	m, _ = m.Update(key(tea.KeyCtrlR))
	assert.Contains(t, m.View(0, 0), "Sign up")
}

func TestLogin_SubmitUsesModeAndShowsErrors(t *testing.T) {
	fa := &fakeAuth{err: &auth.Error{Code: auth.CodeWeakPassword}}
	m := newLoginModel(fa)
	m, _ = m.Update(key(tea.KeyCtrlR))
	m, _ = m.Update(runes("ada@example.com"))
	m, _ = m.Update(key(tea.KeyTab))
	m, _ = m.Update(runes("123"))

	m, cmd := m.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.True(t, m.pending)

	msg := cmd()
	m, _ = m.Update(msg)
	assert.Equal(t, 1, fa.signUps)
	assert.False(t, m.pending)
	assert.Contains(t, m.View(0, 0), "Password should be at least 6 characters long.")
}

func submitLogin(t *testing.T, fa *fakeAuth) loginModel {
	t.Helper()
	m := newLoginModel(fa)
	m, _ = m.Update(runes("ada@example.com"))
	m, _ = m.Update(key(tea.KeyTab))
	m, _ = m.Update(runes("secret1"))
	m, cmd := m.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd())
	return m
}

func TestLogin_SignInVerifiesToken(t *testing.T) {
	session := &auth.Session{UserID: "u1", Email: "ada@example.com", Token: "tok-1"}

	t.Run("valid token", func(t *testing.T) {
		fa := &fakeAuth{session: session}
		m := newLoginModel(fa)
		m, _ = m.Update(runes("ada@example.com"))
		m, _ = m.Update(key(tea.KeyTab))
		m, _ = m.Update(runes("secret1"))
		_, cmd := m.Update(key(tea.KeyEnter))
		require.NotNil(t, cmd)

		res, ok := cmd().(authResultMsg)
		require.True(t, ok)
		assert.NoError(t, res.err)
		assert.Same(t, session, res.session)
		assert.Equal(t, []string{"tok-1"}, fa.verified)
	})

	t.Run("rejected token", func(t *testing.T) {
		fa := &fakeAuth{session: session, verifyErr: &auth.Error{Code: auth.CodeInvalidToken}}
		m := submitLogin(t, fa)
		assert.False(t, m.pending)
		assert.Contains(t, m.View(0, 0), "Your session is no longer valid. Please sign in again.")
	})

	t.Run("token for another user", func(t *testing.T) {
		fa := &fakeAuth{session: session, subject: "u2"}
		m := submitLogin(t, fa)
		assert.Contains(t, m.View(0, 0), "Your session is no longer valid. Please sign in again.")
	})

	t.Run("failed sign in skips verification", func(t *testing.T) {
		fa := &fakeAuth{err: &auth.Error{Code: auth.CodeWrongPassword}}
		m := submitLogin(t, fa)
		assert.Empty(t, fa.verified)
		assert.Contains(t, m.View(0, 0), "Invalid email or password.")
	})
}

func TestModel_UnverifiedSessionStaysOnLogin(t *testing.T) {
	keeper := auth.NewKeeper()
	defer keeper.Stop()
	var model tea.Model = NewModel(context.Background(), Deps{
		Auth:   &fakeAuth{},
		Keeper: keeper,
		State:  chat.NewState(),
		Logger: zerolog.Nop(),
	})

	session := &auth.Session{UserID: "u1", Email: "ada@example.com"}
	model, _ = model.Update(authResultMsg{session: session, err: &auth.Error{Code: auth.CodeInvalidToken}})
	m := model.(Model)
	assert.Equal(t, screenLogin, m.screen)
	assert.Nil(t, keeper.Session())
	assert.Contains(t, m.View(), "Your session is no longer valid. Please sign in again.")
}

func TestThreadItem_Description(t *testing.T) {
	item := threadItem{thread: models.Thread{
		Title:       "Budget",
		LastMessage: "Track every expense",
		Timestamp:   time.Date(2024, time.March, 5, 9, 0, 0, 0, time.Local),
	}}
	assert.Equal(t, "Budget", item.Title())
	assert.Equal(t, "Track every expense · Mar 5", item.Description())

	empty := threadItem{thread: models.Thread{Title: models.DefaultTitle}}
	assert.Equal(t, "New conversation", empty.Description())
}

func TestRenderMessages(t *testing.T) {
	out := renderMessages(nil, nil, false, "")
	assert.Contains(t, out, "Welcome to the AI Chat Interface!")

	at := time.Date(2024, time.March, 5, 15, 4, 0, 0, time.Local)
	out = renderMessages(nil, []models.Message{
		{Role: models.RoleUser, Content: "hello", Time: at},
		{Role: models.RoleAssistant, Content: "hi there", Time: at},
	}, true, "*")
	assert.Contains(t, out, "[3:04 PM]")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "hi there")
	assert.Contains(t, out, "Assistant is typing...")
	assert.NotContains(t, out, "Welcome")
}

func TestChat_ClearNeedsConfirmation(t *testing.T) {
	state := chat.NewState()
	m := newChatModel(state, nil, nil)
	m.resize(120, 40)

	m, _ = m.Update(context.Background(), key(tea.KeyCtrlD))
	assert.False(t, m.confirmClear, "nothing to clear")

	m.view = chat.View{ActiveID: "t1", Messages: []models.Message{{Role: models.RoleUser, Content: "x"}}}
	m, _ = m.Update(context.Background(), key(tea.KeyCtrlD))
	require.True(t, m.confirmClear)
	assert.Contains(t, m.View(""), "(y/n)")

	m, cmd := m.Update(context.Background(), runes("n"))
	assert.False(t, m.confirmClear)
	assert.Nil(t, cmd)
}

func TestChat_TypingMirrorsIntoState(t *testing.T) {
	state := chat.NewState()
	m := newChatModel(state, nil, nil)
	m.resize(120, 40)

	m, _ = m.Update(context.Background(), runes("hi"))
	assert.Equal(t, "hi", state.Snapshot().Input)

	state.SetInput("")
	m.refresh()
	assert.Equal(t, "", m.textarea.Value())
}

func TestModel_SignInThenExpire(t *testing.T) {
	now := time.Now()
	fa := &fakeAuth{session: &auth.Session{UserID: "u1", Email: "ada@example.com", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}}
	keeper := auth.NewKeeper()
	defer keeper.Stop()
	state := chat.NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var model tea.Model = NewModel(ctx, Deps{
		Auth:   fa,
		Keeper: keeper,
		State:  state,
		Syncer: chat.NewSynchronizer(nil, state, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	model, _ = model.Update(authResultMsg{session: fa.session})
	m := model.(Model)
	assert.Equal(t, screenChat, m.screen)
	assert.Same(t, fa.session, keeper.Session())
	assert.Contains(t, m.View(), "ada@example.com")

	model, _ = model.Update(sessionExpiredMsg{})
	m = model.(Model)
	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), expiredNotice)
	select {
	case <-m.session.Done():
	default:
		t.Fatal("session context should be cancelled")
	}
}

func TestModel_FailedSignInStaysOnLogin(t *testing.T) {
	state := chat.NewState()
	var model tea.Model = NewModel(context.Background(), Deps{
		Auth:   &fakeAuth{},
		Keeper: auth.NewKeeper(),
		State:  state,
		Logger: zerolog.Nop(),
	})

	model, _ = model.Update(authResultMsg{err: errors.New("offline")})
	m := model.(Model)
	assert.Equal(t, screenLogin, m.screen)
	assert.True(t, strings.Contains(m.View(), "Failed to sign in: offline"))
}
