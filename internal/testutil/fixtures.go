package testutil

import (
	"testing"
	"time"

	"cryptofolio/internal/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/uuid"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NewTestUserID returns a fresh user id, standing in for the external
// identity provider's subject.
func NewTestUserID() string {
	return uuid.New()
}

// CreateTestHolding inserts a holding with the given name, average price,
// and amount. Worth is price*amount, the state of a single untouched add.
func CreateTestHolding(t *testing.T, db *gorm.DB, userID, name string, price, amount float64) *models.Holding {
	t.Helper()

	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(amount)
	holding := &models.Holding{
		UserID:      userID,
		Name:        name,
		DisplayName: name,
		Price:       p,
		Amount:      a,
		Worth:       p.Mul(a),
		LastUpdate:  time.Now(),
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// SignTestToken signs a JWT the way the external identity provider would,
// using the configured shared secret.
func SignTestToken(t *testing.T, userID, email string) string {
	t.Helper()

	claims := &jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":     jwt.NewNumericDate(time.Now()),
		"sub":     userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Get().JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}
