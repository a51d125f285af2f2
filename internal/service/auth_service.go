package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 签发与校验访问令牌。
// 没有用户体系，只有配置里的单个服务账号。
type AuthService struct {
	secretKey    string
	tokenTTL     time.Duration
	username     string
	passwordHash string
}

// APIClaims 令牌声明
type APIClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewAuthService(secretKey string, tokenTTL time.Duration, username, passwordHash string) *AuthService {
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		secretKey:    secretKey,
		tokenTTL:     tokenTTL,
		username:     username,
		passwordHash: passwordHash,
	}
}

// IssueToken 核对服务账号口令后签发JWT
func (s *AuthService) IssueToken(username, password string) (string, time.Time, error) {
	if username != s.username {
		return "", time.Time{}, NewValidationError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", time.Time{}, NewValidationError("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &APIClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyToken 校验签名与有效期
func (s *AuthService) VerifyToken(tokenString string) (*APIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*APIClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
