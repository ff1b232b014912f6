// Package adminauth authenticates back-office operators and issues the
// bearer tokens that guard the admin session console.
package adminauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/qr-table-ordering/pkg/domain"
)

// TOTP parameters
const (
	totpPeriod = 30
	totpWindow = 1 // Allow 1 period before/after for clock skew
)

// Config holds admin authentication configuration.
type Config struct {
	Username     string
	PasswordHash string
	// TOTPSecret enables a second factor at login when set.
	TOTPSecret string
	JWTSecret  []byte
	Issuer     string
	TokenTTL   time.Duration
}

// Claims represents the claims in an admin token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RoleAdmin is the only role issued today.
const RoleAdmin = "admin"

// Service handles admin login and token validation.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new admin auth service.
func NewService(config Config) *Service {
	if config.TokenTTL == 0 {
		config.TokenTTL = 8 * time.Hour
	}
	return &Service{config: config, now: time.Now}
}

// TokenTTL returns the admin token TTL.
func (s *Service) TokenTTL() time.Duration {
	return s.config.TokenTTL
}

// RequiresTOTP reports whether login needs a TOTP code.
func (s *Service) RequiresTOTP() bool {
	return s.config.TOTPSecret != ""
}

// Login verifies the admin credentials and returns a signed token.
func (s *Service) Login(username, password, code string) (string, error) {
	if s.config.PasswordHash == "" || username != s.config.Username {
		return "", domain.ErrInvalidCredentials
	}
	if !VerifyPassword(password, s.config.PasswordHash) {
		return "", domain.ErrInvalidCredentials
	}

	if s.RequiresTOTP() {
		valid, err := totp.ValidateCustom(code, s.config.TOTPSecret, s.now(), totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      totpWindow,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !valid {
			return "", domain.ErrInvalidOTP
		}
	}

	return s.IssueToken(username)
}

// IssueToken signs an admin token for subject.
func (s *Service) IssueToken(subject string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
		},
		Role: RoleAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.JWTSecret)
}

// ValidateToken validates an admin token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return nil, domain.ErrInvalidToken
	}
	if s.config.Issuer != "" && claims.Issuer != s.config.Issuer {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}
