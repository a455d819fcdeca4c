package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pitabwire/frame"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/werachapchap/service-payments/config"
	"github.com/werachapchap/service-payments/service/business"
	"github.com/werachapchap/service-payments/service/coreapi"
	"github.com/werachapchap/service-payments/service/events"
	"github.com/werachapchap/service-payments/service/handlers"
	"github.com/werachapchap/service-payments/service/models"
	"github.com/werachapchap/service-payments/service/notification"
	"github.com/werachapchap/service-payments/service/router"
)

func main() {
	serviceName := "service_payments"
	ctx := context.Background()
	paymentConfig, err := frame.ConfigFromEnv[config.PaymentConfig]()
	if err != nil {
		fmt.Printf("could not load config: %v\n", err)
	}
	ctx, service := frame.NewServiceWithContext(ctx, serviceName, frame.Config(&paymentConfig))
	defer service.Stop(ctx)

	logger := service.L(ctx).WithField("type", "main")
	logger.Info("starting service...")

	serviceOptions := []frame.Option{frame.Datastore(ctx)}
	service.Init(serviceOptions...)

	if paymentConfig.DoDatabaseMigrate() {
		err = service.MigrateDatastore(ctx, paymentConfig.GetDatabaseMigrationPath(), models.AllModels()...)
		if err != nil {
			logger.WithError(err).Fatal("could not migrate successfully")
		}
		return
	}

	db := service.DB(ctx, false)
	if db == nil {
		logger.Fatal("Database connection is nil - check DATABASE_URL and database availability")
		return
	}
	if err = db.AutoMigrate(models.AllModels()...); err != nil {
		logger.WithError(err).Fatal("Failed to auto-migrate database tables - cannot continue")
		return
	}

	entry := service.L(ctx)

	client := coreapi.New(paymentConfig.MpesaEnv, paymentConfig.MpesaConsumerKey,
		paymentConfig.MpesaConsumerSecret, paymentConfig.MpesaRequestTimeout)
	client.ShortCode = paymentConfig.MpesaShortCode
	client.Passkey = paymentConfig.MpesaPasskey
	client.CallbackURL = paymentConfig.MpesaCallbackURL
	client.B2CShortCode = paymentConfig.MpesaB2CShortCode
	client.InitiatorName = paymentConfig.MpesaInitiatorName
	client.B2CResultURL = paymentConfig.MpesaB2CResultURL
	client.B2CTimeoutURL = paymentConfig.MpesaB2CTimeoutURL
	client.SecurityCredential = paymentConfig.MpesaSecurityCredential
	if client.SecurityCredential == "" && paymentConfig.MpesaCertificatePath != "" {
		client.SecurityCredential, err = coreapi.SecurityCredential(
			paymentConfig.MpesaInitiatorPassword, paymentConfig.MpesaCertificatePath)
		if err != nil {
			logger.WithError(err).Warn("could not build B2C security credential, payouts will be rejected")
		}
	}

	notificationTopic := paymentConfig.NotificationTopic
	notificationURL := "mem://" + notificationTopic
	maxRetries := 5
	for i := range maxRetries {
		logger.WithField("attempt", i+1).WithField("natsURL", paymentConfig.NatsURL).Info("Attempting to connect to NATS")
		nc, connErr := nats.Connect(paymentConfig.NatsURL)
		if connErr != nil {
			logger.WithError(connErr).WithField("attempt", i+1).Warn("Failed to connect to NATS, retrying after delay")
			time.Sleep(2 * time.Second)
			continue
		}
		nc.Close()
		notificationURL = paymentConfig.NatsURL + "?subject=" + notificationTopic
		break
	}
	logger.WithField("topic", notificationTopic).WithField("url", notificationURL).Info("Registering notification publisher")
	serviceOptions = append(serviceOptions, frame.RegisterPublisher(notificationTopic, notificationURL))

	publisher := notification.NewPublisher(notificationTopic, func(ctx context.Context, topic string, payload any) error {
		return service.Publish(ctx, topic, payload)
	})

	feeRate := paymentConfig.FeeRate()
	paymentBusiness, err := business.NewPaymentBusiness(ctx, service, client, publisher, entry, business.Options{
		FeeRate:          &feeRate,
		PendingAge:       paymentConfig.SweepPendingAge,
		ExpireAfter:      paymentConfig.SweepExpireAfter,
		SweepConcurrency: paymentConfig.SweepConcurrency,
		SweepBatchSize:   paymentConfig.SweepBatchSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("could not set up payment business")
	}

	lease := business.NewLocalLease()
	if paymentConfig.UseRedisLease() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     paymentConfig.RedisAddr,
			Password: paymentConfig.RedisPassword,
			DB:       paymentConfig.RedisDB,
		})
		defer func() { _ = redisClient.Close() }()
		lease = business.NewRedisLease(redisClient, paymentConfig.SweepLeaseTTL)
	}

	scheduler := cron.New()
	sweeper := business.NewSweeper(paymentBusiness, lease, paymentConfig.SweepLeaseTTL, entry)
	if _, err = sweeper.Register(scheduler, paymentConfig.SweepSchedule); err != nil {
		logger.WithError(err).Fatal("could not schedule stale payment sweep")
	}
	scheduler.Start()
	defer scheduler.Stop()

	implementation := &handlers.PaymentServer{
		Emitter:  service,
		Business: paymentBusiness,
		Logger:   entry,
	}

	serviceOptions = append(serviceOptions,
		frame.HttpHandler(router.NewRouter(implementation)),
		frame.RegisterEvents(
			&events.ChargeCallback{Reconciler: paymentBusiness, Logger: entry},
			&events.DisbursementCallback{Reconciler: paymentBusiness, Logger: entry},
		))

	service.Init(serviceOptions...)

	logger.WithField("server http port", paymentConfig.HttpServerPort).
		WithField("sweep schedule", paymentConfig.SweepSchedule).
		Info("Initiating server operations")

	err = service.Run(ctx, "")
	if err != nil {
		logger.WithError(err).Fatal("could not run Server")
	}
}
