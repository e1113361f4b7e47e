package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the credential storage the service needs
type UserStore interface {
	CreateUser(u *model.User) error
	GetUser(username string) (*model.User, error)
	UserExists(username string) (bool, error)
}

// Verifier checks a session token and returns the username it was issued to
type Verifier interface {
	ParseToken(token string) (string, error)
}

// Claims are carried in session tokens
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service registers users, checks passwords and issues session tokens
type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a service signing tokens with secret, valid for ttl
func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Register creates a user with a fresh salt
func (s *Service) Register(username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	exists, err := s.users.UserExists(username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Username:     username,
		Salt:         salt,
		PasswordHash: HashPassword(password, salt),
	}
	if err := s.users.CreateUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate reports whether the pair matches a stored user
func (s *Service) Authenticate(username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	u, err := s.users.GetUser(username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	want := []byte(u.PasswordHash)
	got := []byte(HashPassword(password, u.Salt))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// Login authenticates and returns a signed session token
func (s *Service) Login(username, password string) (string, error) {
	ok, err := s.Authenticate(username, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(strings.TrimSpace(username))
}

// IssueToken signs an HS256 token for username
func (s *Service) IssueToken(username string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies a token and returns its username
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// HashPassword is hex(sha256(salt + password))
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func newSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
