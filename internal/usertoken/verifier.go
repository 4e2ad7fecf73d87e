package usertoken

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"shotreview/pkg/domain"
	"shotreview/pkg/permission"
)

const (
	defaultIssuer   = "shotreview"
	defaultAudience = "shotreview-review"
	defaultLeeway   = 30 * time.Second
	minSecretLength = 32
)

var (
	// ErrUnknownToken is returned for tokens that match no user.
	ErrUnknownToken = errors.New("unknown user token")
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("missing user token")
	// ErrTokensDisabled is returned by Issue when no secret is configured.
	ErrTokensDisabled = errors.New("review tokens not configured")
)

// StaticUser is one entry of the configured token table. Exactly one of
// Token (plain) or TokenHash (bcrypt) is set.
type StaticUser struct {
	Token     string `yaml:"token"`
	TokenHash string `yaml:"tokenHash"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
}

// Config configures token resolution.
type Config struct {
	Users             []StaticUser
	ReviewTokenSecret string
	Issuer            string
	Audience          string
	Leeway            time.Duration
}

// ReviewClaims are carried by HS256 review tokens.
type ReviewClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type hashedUser struct {
	hash []byte
	user domain.User
}

// Resolver maps a token to the user it identifies.
type Resolver struct {
	plain    map[string]domain.User
	hashed   []hashedUser
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewResolver validates the token table and builds a resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	r := &Resolver{
		plain:    make(map[string]domain.User, len(cfg.Users)),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		now:      time.Now,
	}

	secret := strings.TrimSpace(cfg.ReviewTokenSecret)
	if secret != "" {
		if len(secret) < minSecretLength {
			return nil, fmt.Errorf("review token secret must be at least %d characters", minSecretLength)
		}
		r.secret = []byte(secret)
	}

	for i, entry := range cfg.Users {
		user, err := toUser(entry.Name, entry.Role)
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		token := strings.TrimSpace(entry.Token)
		hash := strings.TrimSpace(entry.TokenHash)
		switch {
		case token != "" && hash != "":
			return nil, fmt.Errorf("users[%d]: set token or tokenHash, not both", i)
		case token != "":
			if _, dup := r.plain[token]; dup {
				return nil, fmt.Errorf("users[%d]: duplicate token", i)
			}
			r.plain[token] = user
		case hash != "":
			if _, err := bcrypt.Cost([]byte(hash)); err != nil {
				return nil, fmt.Errorf("users[%d]: invalid tokenHash: %w", i, err)
			}
			r.hashed = append(r.hashed, hashedUser{hash: []byte(hash), user: user})
		default:
			return nil, fmt.Errorf("users[%d]: token is required", i)
		}
	}
	return r, nil
}

// HashToken returns the bcrypt hash to place in a tokenHash entry.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Resolve returns the user for token.
func (r *Resolver) Resolve(token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrMissingToken
	}
	for candidate, user := range r.plain {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return user, nil
		}
	}
	for _, entry := range r.hashed {
		if bcrypt.CompareHashAndPassword(entry.hash, []byte(token)) == nil {
			return entry.user, nil
		}
	}
	if r.secret != nil && strings.Count(token, ".") == 2 {
		return r.parse(token)
	}
	return domain.User{}, ErrUnknownToken
}

// Issue signs a review token for name with role, valid for ttl.
func (r *Resolver) Issue(name, role string, ttl time.Duration) (string, error) {
	if r.secret == nil {
		return "", ErrTokensDisabled
	}
	user, err := toUser(name, role)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := r.now().UTC()
	claims := ReviewClaims{
		Name: user.Name,
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Audience:  jwt.ClaimStrings{r.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *Resolver) parse(token string) (domain.User, error) {
	claims := ReviewClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.issuer),
		jwt.WithAudience(r.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return domain.User{}, fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	return toUser(claims.Name, claims.Role)
}

func toUser(name, rawRole string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, errors.New("user name is required")
	}
	role, ok := permission.ParseRole(rawRole)
	if !ok {
		return domain.User{}, fmt.Errorf("unknown role %q", rawRole)
	}
	return domain.User{Name: name, Role: role, CanDelete: permission.CanDelete(role)}, nil
}

// TokenFromRequest reads the token from the `user` query parameter or a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("user")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
