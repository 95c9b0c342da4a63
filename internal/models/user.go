package models

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/pypirun/pypirun/internal/db"
)

const (
	bcryptCost     = 10
	jwtExpiration  = 30 * 24 * time.Hour
	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	secretLength   = 64
)

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"` // bcrypt hash
	Active   bool   `json:"active"`
}

type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type UserStore struct {
	db *bolt.DB
}

func NewUserStore(database *bolt.DB) *UserStore {
	return &UserStore{db: database}
}

// FindByUsername returns the user or nil if not found.
func (s *UserStore) FindByUsername(username string) (*User, error) {
	var u *User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(db.BucketUsers).Get([]byte(username))
		if v == nil {
			return nil
		}
		u = &User{}
		return json.Unmarshal(v, u)
	})
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	if u != nil && !u.Active {
		return nil, nil
	}
	return u, nil
}

// Count returns the number of users in the database.
func (s *UserStore) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(db.BucketUsers).Stats().KeyN
		return nil
	})
	return count, err
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *UserStore) Create(username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Username: username, Password: string(hash), Active: true}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketUsers)
		if b.Get([]byte(username)) != nil {
			return fmt.Errorf("user %q already exists", username)
		}
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		u.ID = int(id)
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return b.Put([]byte(username), data)
	})
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ChangePassword updates the user's password.
func (s *UserStore) ChangePassword(username, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketUsers)
		v := b.Get([]byte(username))
		if v == nil {
			return fmt.Errorf("user %q not found", username)
		}
		var u User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		u.Password = string(hash)
		data, err := json.Marshal(&u)
		if err != nil {
			return err
		}
		return b.Put([]byte(username), data)
	})
}

// VerifyPassword checks a plaintext password against the stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateJWT creates an HS256 JWT token for the user.
func CreateJWT(user *User, secret string) (string, error) {
	claims := JWTClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyJWT parses and validates a JWT token. Returns claims or error.
func VerifyJWT(tokenString, secret string) (*JWTClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// GenSecret generates a cryptographically random alphanumeric string.
func GenSecret(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}
