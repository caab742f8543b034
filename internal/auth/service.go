// Package auth is the local identity provider: email and password accounts
// kept in SQLite and short-lived signed session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

// DefaultLifetime is how long a session stays valid after authentication.
const DefaultLifetime = 30 * time.Minute

// Session is an authenticated user.
type Session struct {
	UserID    string
	Email     string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the payload of a session token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies sessions.
type Service struct {
	db       *sql.DB
	secret   []byte
	lifetime time.Duration
	cost     int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLifetime sets the session lifetime.
func WithLifetime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the clock used to stamp tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Open opens the user database at path and prepares its schema. An empty
// secret gets a random one, so tokens only verify within this process.
func Open(path, secret string, opts ...Option) (*Service, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open user database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewService(db, secret, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewService creates a service over db, which it takes ownership of.
func NewService(db *sql.DB, secret string, opts ...Option) (*Service, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	s := &Service{
		db:       db,
		secret:   key,
		lifetime: DefaultLifetime,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// Close closes the user database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Lifetime reports how long issued sessions last.
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// SignUp registers a new account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, newError(CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		id, email, string(hash), s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, newError(CodeEmailInUse)
	}
	return s.issue(id, email)
}

// SignIn checks the credentials of an existing account.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var id, hash string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email,
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(CodeUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, newError(CodeWrongPassword)
	}
	return s.issue(id, email)
}

// Verify returns the claims of a token that is signed by this service and
// not yet expired.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tkn.Valid {
		return nil, newError(CodeInvalidToken)
	}
	return claims, nil
}

func (s *Service) issue(userID, email string) (*Session, error) {
	now := s.now()
	expires := now.Add(s.lifetime)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &Session{
		UserID:    userID,
		Email:     email,
		Token:     signed,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return "", newError(CodeInvalidEmail)
	}
	return email, nil
}
