package config

import (
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
)

type PaymentConfig struct {
	frame.ConfigurationDefault

	// Daraja (M-Pesa) credentials and endpoints
	MpesaEnv                string        `envDefault:"https://sandbox.safaricom.co.ke" env:"MPESA_ENV"`
	MpesaConsumerKey        string        `envDefault:"" env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret     string        `envDefault:"" env:"MPESA_CONSUMER_SECRET"`
	MpesaShortCode          string        `envDefault:"174379" env:"MPESA_SHORTCODE"`
	MpesaPasskey            string        `envDefault:"" env:"MPESA_PASSKEY"`
	MpesaCallbackURL        string        `envDefault:"" env:"MPESA_CALLBACK_URL"`
	MpesaB2CShortCode       string        `envDefault:"600000" env:"MPESA_B2C_SHORTCODE"`
	MpesaB2CResultURL       string        `envDefault:"" env:"MPESA_B2C_RESULT_URL"`
	MpesaB2CTimeoutURL      string        `envDefault:"" env:"MPESA_B2C_TIMEOUT_URL"`
	MpesaInitiatorName      string        `envDefault:"testapi" env:"MPESA_INITIATOR_NAME"`
	MpesaInitiatorPassword  string        `envDefault:"" env:"MPESA_INITIATOR_PASSWORD"`
	MpesaCertificatePath    string        `envDefault:"" env:"MPESA_CERTIFICATE_PATH"`
	MpesaSecurityCredential string        `envDefault:"" env:"MPESA_SECURITY_CREDENTIAL"`
	MpesaRequestTimeout     time.Duration `envDefault:"30s" env:"MPESA_REQUEST_TIMEOUT"`

	TransactionFeeRate string `envDefault:"0.10" env:"TRANSACTION_FEE_RATE"`

	// Safety net
	SweepSchedule    string        `envDefault:"*/10 * * * *" env:"SWEEP_SCHEDULE"`
	SweepPendingAge  time.Duration `envDefault:"15m" env:"SWEEP_PENDING_AGE"`
	SweepExpireAfter time.Duration `envDefault:"24h" env:"SWEEP_EXPIRE_AFTER"`
	SweepConcurrency int           `envDefault:"4" env:"SWEEP_CONCURRENCY"`
	SweepBatchSize   int           `envDefault:"200" env:"SWEEP_BATCH_SIZE"`
	SweepLeaseTTL    time.Duration `envDefault:"5m" env:"SWEEP_LEASE_TTL"`

	NatsURL           string `envDefault:"nats://nats:4222" env:"NATS_URL"`
	NotificationTopic string `envDefault:"notification.enqueue" env:"NOTIFICATION_TOPIC"`

	// Leave empty to use an in-process sweep lock.
	RedisAddr     string `envDefault:"" env:"REDIS_ADDR"`
	RedisPassword string `envDefault:"" env:"REDIS_PASSWORD"`
	RedisDB       int    `envDefault:"0" env:"REDIS_DB"`
}

// FeeRate parses TransactionFeeRate, falling back to 10% when it is unset or invalid.
func (c *PaymentConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.TransactionFeeRate)
	if err != nil || rate.IsNegative() {
		return decimal.NewFromFloat(0.10)
	}
	return rate
}

func (c *PaymentConfig) UseRedisLease() bool {
	return c.RedisAddr != ""
}
