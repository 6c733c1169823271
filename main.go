package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsgo_config "github.com/aws/aws-sdk-go-v2/config" // Alias để tránh trùng tên
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/pflag"

	"github.com/xrl111/smart-eparking-pi4/internal/api"
	"github.com/xrl111/smart-eparking-pi4/internal/api/handler"
	"github.com/xrl111/smart-eparking-pi4/internal/api/middleware"
	"github.com/xrl111/smart-eparking-pi4/internal/config"
	"github.com/xrl111/smart-eparking-pi4/internal/device"
	"github.com/xrl111/smart-eparking-pi4/internal/iot"
	"github.com/xrl111/smart-eparking-pi4/internal/logger"
	"github.com/xrl111/smart-eparking-pi4/internal/mode"
	"github.com/xrl111/smart-eparking-pi4/internal/repository/postgresql"
	"github.com/xrl111/smart-eparking-pi4/internal/service"
	"github.com/xrl111/smart-eparking-pi4/internal/state"
)

func main() {
	envFile := pflag.String("env-file", "", "đường dẫn file .env")
	simulate := pflag.Bool("simulate", false, "bắt buộc chạy bộ mô phỏng serial")
	serialPort := pflag.String("serial-port", "", "cổng serial của ESP32, ghi đè SERIAL_PORT")
	pflag.Parse()

	base := *logger.GetLogger()
	log := logger.Component("main")

	// 1. Load Configuration
	var cfg *config.Config
	if *envFile != "" {
		cfg = config.Load(*envFile)
	} else {
		cfg = config.Load()
	}
	if pflag.CommandLine.Changed("serial-port") {
		cfg.SerialPort = *serialPort
	}
	if pflag.CommandLine.Changed("simulate") {
		cfg.Simulate = simulate
	}
	logger.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Cấu hình không hợp lệ")
	}
	log.Info().Int("total_slots", cfg.TotalSlots).Str("mode", string(cfg.DefaultMode)).
		Bool("simulate", cfg.SimulationEnabled()).Msg("Cấu hình đã được tải.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Setup Database Connection
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := postgresql.NewDB(dbCtx, cfg)
	dbCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Không thể kết nối database")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := postgresql.EnsureSchema(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Không thể tạo schema")
		}
	}
	log.Info().Msg("Đã kết nối database thành công!")

	// 3. Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	sessionRepo := postgresql.NewPgParkingSessionRepository(db)
	ruleRepo := postgresql.NewPgPricingRuleRepository(db)
	logRepo := postgresql.NewPgSystemLogRepository(db)

	// 4. Core services
	audit := service.NewAuditService(logRepo)
	fees := service.NewFeeEngine(ruleRepo, cfg.PricingLocation, base)
	parkingService := service.NewParkingService(sessionRepo, fees, audit, cfg.PricingLocation, base)
	pricingService := service.NewPricingService(ruleRepo, audit, base)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours, base)
	deriver := service.NewSessionDeriver(parkingService, base)

	store := state.NewStore(cfg.TotalSlots, cfg.DefaultMode)
	arbiter := mode.NewArbiter(store, audit, base)

	// 5. Device link
	if !cfg.SimulationEnabled() {
		if ports, err := device.ListPorts(); err == nil {
			log.Debug().Strs("ports", ports).Msg("Các cổng serial hiện có")
		}
	}
	link := device.NewLink(device.SerialDialer{
		Path:        cfg.SerialPort,
		BaudRate:    cfg.SerialBaudRate,
		ReadTimeout: cfg.SerialReadTimeout,
	}, device.Options{
		Simulate:          cfg.SimulationEnabled(),
		PortName:          cfg.SerialPort,
		ReconnectInterval: cfg.ReconnectInterval,
		SimulationPeriod:  cfg.SimulationPeriod,
		SimulationSeed:    cfg.SimulationSeed,
		TotalSlots:        cfg.TotalSlots,
	}, base)
	controller := service.NewController(store, arbiter, link, deriver, audit, cfg.CommandRetries, base)
	link.AddListener(controller.HandleFrame)

	// init websocket manager
	wsManager := handler.NewWebSocketManager(controller.Snapshot, base)
	controller.AddObserver(wsManager.BroadcastStatus)
	parkingService.AddObserver(wsManager.BroadcastSession)

	// 6. AWS (tùy chọn)
	var (
		publisher service.IoTPublisher
		detector  service.TextDetector
		sqsClient *sqs.Client
	)
	if cfg.AWSEnabled {
		awsSDKCfg, err := awsgo_config.LoadDefaultConfig(ctx, awsgo_config.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal().Err(err).Msg("Không thể tải AWS SDK config")
		}
		log.Info().Str("region", cfg.AWSRegion).Msg("Đã tải AWS SDK config thành công")

		if cfg.IoTMQTTEndpoint != "" {
			publisher = iotdataplane.NewFromConfig(awsSDKCfg, func(o *iotdataplane.Options) {
				endpoint := cfg.IoTMQTTEndpoint
				if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
					endpoint = "https://" + endpoint
				}
				o.BaseEndpoint = aws.String(endpoint)
			})
		} else {
			log.Warn().Msg("IOT_MQTT_ENDPOINT chưa được cấu hình. Không mirror trạng thái lên IoT Core.")
		}
		if cfg.SQSCommandQueueURL != "" {
			sqsClient = sqs.NewFromConfig(awsSDKCfg)
		} else {
			log.Warn().Msg("SQS_COMMAND_QUEUE_URL chưa được cấu hình. SQS Consumer sẽ không chạy.")
		}
		if cfg.LPREnabled {
			detector = rekognition.NewFromConfig(awsSDKCfg)
		}
	}
	iotService := service.NewIoTService(publisher, cfg.IoTStatusTopic, controller, base)
	controller.AddObserver(iotService.ObserveStatus)
	lprService := service.NewLPRService(detector, base)

	// 7. Background workers
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Info().Str("worker", name).Msg("Worker đã dừng")
		}()
	}
	run("websocket", wsManager.Start)
	run("heartbeat", func(ctx context.Context) { controller.RunHeartbeat(ctx, cfg.HeartbeatInterval) })
	run("iot_mirror", iotService.Run)
	if sqsClient != nil {
		consumer := iot.NewSQSCommandConsumer(sqsClient, cfg.SQSCommandQueueURL, iotService, base)
		run("sqs_consumer", consumer.Start)
	}

	link.Start()
	controller.SyncMode()

	// 8. HTTP
	authMiddleware := middleware.NewAuthMiddleware(authService, base)
	router := api.SetupRouter(api.Services{
		Auth:       authService,
		Controller: controller,
		Link:       link,
		Sessions:   parkingService,
		Pricing:    pricingService,
		Logs:       audit,
		LPR:        lprService,
	}, authMiddleware, wsManager, base)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("Server đang chạy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Lỗi ListenAndServe()")
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Đang tắt server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server buộc phải tắt")
	}

	cancel()
	link.Stop()

	log.Info().Msg("Đang chờ các worker dừng (tối đa 5 giây)...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Một số worker không dừng trong thời gian chờ.")
	}

	log.Info().Msg("Server đã tắt.")
}
