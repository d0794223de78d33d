package constants

type ContextKey string

const (
	TxKey       ContextKey = "tx"
	PoolKey     ContextKey = "pool"
	TenantIDKey ContextKey = "tenantID"
	LoggerKey   ContextKey = "logger"
	RequestID   ContextKey = "requestID"
)
