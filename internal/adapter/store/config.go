package store

// Config contains connection and behavior options for the Redis-backed
// index state store. The struct is validated via go-playground/validator tags.
type Config struct {
	Host               string `validate:"required,hostname|ip"`
	Port               string `validate:"required,numeric"`
	Password           string
	DB                 int `validate:"gte=0"`
	UseTLS             bool
	PoolSize           int `validate:"gte=0"`
	MaxRetries         int `validate:"gte=0"`
	DialTimeoutSeconds int `validate:"gte=0"`
	// KeyPrefix namespaces the state hash and block zset. Braces mark the
	// cluster hash tag, e.g. "{blockwatch}".
	KeyPrefix string `validate:"required"`
	// HistoryRetention is how many committed block hashes are kept below the
	// latest one. Zero keeps all of them.
	HistoryRetention uint64
	// WriteRetryAttempts bounds retries of each write. Zero means three.
	WriteRetryAttempts int `validate:"gte=0"`
}
