package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"todopro/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenName      = "auth_token"
	tokenAbilities = `["*"]`
	tokenIssuer    = "todopro"
)

var errInvalidToken = errors.New("invalid token")

// TokenIssuer 签发并解析 HS256 bearer token。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer 创建 token 签发器。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL 返回 token 有效期。
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue 为用户签发 token，返回 bearer 字符串与待保存的服务端记录。
func (t *TokenIssuer) Issue(userID uint) (string, *model.AccessToken, error) {
	now := t.now()
	id := uuid.NewString()
	expiresAt := now.Add(t.ttl)

	claims := jwt.RegisteredClaims{
		ID:        id,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	return signed, &model.AccessToken{
		ID:        id,
		UserID:    userID,
		Name:      tokenName,
		TokenHash: HashToken(signed),
		Abilities: tokenAbilities,
		ExpiresAt: expiresAt,
	}, nil
}

// tokenClaims 是解析后的身份信息。
type tokenClaims struct {
	TokenID string
	UserID  uint
}

// Parse 校验签名、算法与过期时间，返回 jti 与用户 ID。
func (t *TokenIssuer) Parse(bearer string) (*tokenClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(bearer, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errInvalidToken
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return nil, errInvalidToken
	}
	return &tokenClaims{TokenID: claims.ID, UserID: uint(uid)}, nil
}

// HashToken 返回 bearer 字符串的 SHA-256 十六进制摘要。
func HashToken(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(sum[:])
}
