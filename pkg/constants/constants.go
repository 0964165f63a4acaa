package constants

import "github.com/go-playground/validator/v10"

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	RequestStart contextKey = "request_start"
	RequestIDKey contextKey = "request_id"
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
)

// Validate checks request DTOs against their validate tags.
var Validate = validator.New(validator.WithRequiredStructEnabled())
