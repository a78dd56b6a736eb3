package redis

import "time"

type Config struct {
	ConnectionURL    string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"` // ConnectionURL in the format "redis://:password@localhost:6379/0"
	Password         string        `env:"REDIS_PASSWORD"`                                           // Password overrides the one in ConnectionURL when set.
	RetryAttempts    int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                      // RetryAttempts is the number of connection attempts.
	RetryInterval    time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`                     // RetryInterval is the pause between connection attempts.
	ConnectTimeout   time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`                   // ConnectTimeout bounds the whole connection procedure.
	OperationTimeout time.Duration `env:"REDIS_OPERATION_TIMEOUT" envDefault:"2s"`                  // OperationTimeout bounds every single store operation.
	ScanBatchSize    int64         `env:"REDIS_SCAN_BATCH_SIZE" envDefault:"500"`                   // ScanBatchSize is the COUNT hint passed to SCAN.

	BreakerFailureThreshold uint          `env:"REDIS_BREAKER_FAILURES" envDefault:"5"` // Consecutive failures that open the circuit.
	BreakerDelay            time.Duration `env:"REDIS_BREAKER_DELAY" envDefault:"30s"`  // Time the circuit stays open before probing.
}
