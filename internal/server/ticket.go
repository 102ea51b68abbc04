package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// 票据有效期：拿到 Ready 后需要在这段时间内完成绑定
	TicketTTL = 2 * time.Minute

	ticketIssuer = "p2pg-rendezvous"
)

var (
	ErrTicketInvalid = errors.New("票据无效")
	ErrTicketUsed    = errors.New("票据已使用")
)

// TicketClaims 票据内容：哪个玩家进入哪场对局
type TicketClaims struct {
	MatchID string `json:"match_id"`
	PeerID  string `json:"peer_id"`
	jwt.RegisteredClaims
}

// TicketIssuer 签发并核销一次性票据
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration

	// 已核销的票据 id，过期时间与票据一致
	mu   sync.Mutex
	used *ristretto.Cache[string, struct{}]
}

func NewTicketIssuer(secret string, ttl time.Duration) (*TicketIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("票据密钥为空")
	}
	if ttl <= 0 {
		ttl = TicketTTL
	}
	used, err := ristretto.NewCache[string, struct{}](&ristretto.Config[string, struct{}]{
		NumCounters: 100000,
		MaxCost:     1 << 20, // 每张票据计 1
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("创建票据缓存失败: %w", err)
	}
	return &TicketIssuer{secret: []byte(secret), ttl: ttl, used: used}, nil
}

// Issue 签发票据
func (t *TicketIssuer) Issue(matchID, peerID string) (string, error) {
	now := time.Now()
	claims := TicketClaims{
		MatchID: matchID,
		PeerID:  peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ticketIssuer,
			Subject:   peerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify 校验签名和有效期，不核销
func (t *TicketIssuer) Verify(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(ticketIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.MatchID == "" || claims.PeerID == "" {
		return nil, ErrTicketInvalid
	}
	return claims, nil
}

// Redeem 校验并核销票据，同一张票据只能成功一次
func (t *TicketIssuer) Redeem(tokenString string) (*TicketClaims, error) {
	claims, err := t.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.used.Get(claims.ID); seen {
		return nil, ErrTicketUsed
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil, ErrTicketInvalid
	}
	if !t.used.SetWithTTL(claims.ID, struct{}{}, 1, ttl) {
		return nil, fmt.Errorf("%w: 核销记录写入失败", ErrTicketInvalid)
	}
	t.used.Wait()
	return claims, nil
}

func (t *TicketIssuer) Close() {
	t.used.Close()
}
