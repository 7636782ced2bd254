// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Coin identifiers are matched after trimming and lower-casing; callers may
// send any casing/whitespace variant of a catalog id.
var coinIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9 ._-]*$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("coin_id", validateCoinID)
	}
}

func validateCoinID(fl validator.FieldLevel) bool {
	normalized := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	return coinIDRegex.MatchString(normalized)
}
