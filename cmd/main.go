package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruit-go/internal/api/handler"
	"recruit-go/internal/api/router"
	"recruit-go/internal/batch"
	"recruit-go/internal/bootstrap"
	"recruit-go/internal/config"
	appLogger "recruit-go/internal/logger"
	"recruit-go/internal/outbox"
	"recruit-go/internal/service"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"
	"recruit-go/internal/tracing"
	"recruit-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app/server"
	serverconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"      //nolint:gochecknoglobals
	serviceName = "recruit-go" //nolint:gochecknoglobals
)

// @title Recruit API
// @version 1.0
// @BasePath /api/v1
func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置不合法: %v", err)
	}

	logCloser, err := appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	glog.Infof("%s %s 配置加载成功, 存储后端: %s", serviceName, version, cfg.Store.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing.Enabled, cfg.Tracing.OTLPEndpoint, cfg.Tracing.ServiceName)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	st := store.New(storageManager.KV, cfg.Store.KeyPrefix)

	var locker storage.Locker
	if storageManager.Redis != nil {
		locker = storageManager.Redis
	}
	if err := bootstrap.NewBootstrapper(st, locker).EnsureInitialized(ctx, bootstrap.DefaultLockWait); err != nil {
		glog.Fatalf("初始化集合数据失败: %v", err)
	}
	glog.Info("集合数据初始化完成")

	delay := service.RandomDelayer{
		Min: config.GetDuration(cfg.Latency.Min, 100*time.Millisecond),
		Max: config.GetDuration(cfg.Latency.Max, time.Second),
	}

	// 批量上传事件: RabbitMQ 直发或经 outbox 转发，操作日志由队列消费者或直接写入
	var (
		sinks         []batch.EventSink
		messageRelay  *outbox.MessageRelay
		stopConsumer  func()
		activityLogs  = batch.NewActivityRecorder(st)
		eventExchange = cfg.RabbitMQ.BatchEventsExchange
	)
	if mq := storageManager.RabbitMQ; mq != nil {
		if cfg.RabbitMQ.UseOutbox && storageManager.SQL != nil {
			sinks = append(sinks, batch.NewOutboxSink(storageManager.SQL.DB(), eventExchange))
			messageRelay = outbox.NewMessageRelay(storageManager.SQL.DB(), mq,
				outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.OutboxPollInterval, 5*time.Second)),
				outbox.WithBatchSize(cfg.RabbitMQ.OutboxBatchSize),
			)
		} else {
			sinks = append(sinks, batch.NewRabbitMQSink(mq, eventExchange, config.GetDuration(cfg.RabbitMQ.PublishTimeout, 5*time.Second)))
		}
		if cfg.RabbitMQ.BatchEventsQueue != "" {
			stopConsumer, err = batch.StartActivityConsumer(mq, cfg.RabbitMQ.BatchEventsQueue, activityLogs)
			if err != nil {
				glog.Warnf("启动操作日志消费者失败, 改为直接写入: %v", err)
				stopConsumer = nil
			}
		}
	}
	if stopConsumer == nil {
		sinks = append(sinks, activityLogs)
	}

	batches := batch.NewService(st, batch.Config{
		ProcessingDelay: config.GetDuration(cfg.Batch.ProcessingDelay, batch.DefaultProcessingDelay),
		CompletionDelay: config.GetDuration(cfg.Batch.CompletionDelay, batch.DefaultCompletionDelay),
	}, batch.WithEventSinks(sinks...))
	if cfg.Batch.RestoreOnStart {
		n, err := batches.Restore(ctx)
		if err != nil {
			glog.Warnf("恢复批量上传失败: %v", err)
		} else {
			glog.Infof("恢复了 %d 个未完成的批量上传", n)
		}
	}

	if messageRelay != nil {
		messageRelay.Start(ctx)
		glog.Info("消息中继服务已启动")
	}

	var limiter *ratelimit.Registry
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRegistry(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	}

	var presigner handler.Presigner
	if storageManager.MinIO != nil && cfg.Resumes.Source == config.ResumeSourceMinIO {
		presigner = storageManager.MinIO
	}

	opts := []serverconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodySizeMB << 20),
	}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		var tracerOpt serverconfig.Option
		tracerOpt, tracerCfg = hertztracing.NewServerTracer()
		opts = append(opts, tracerOpt)
	}
	h := server.New(opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}

	router.RegisterRoutes(h, router.Deps{
		Companies:   service.NewCompanyService(st, delay),
		Users:       service.NewUserService(st, delay),
		Jobs:        service.NewJobService(st, delay),
		Candidates:  service.NewCandidateService(st, delay),
		Matches:     service.NewJobMatchService(st, delay, service.NewRandomScorer(uint64(time.Now().UnixNano()))),
		Batches:     batches,
		Reset:       bootstrap.NewResetService(st),
		Objects:     storageManager.Objects,
		Presigner:   presigner,
		AdminAPIKey: cfg.Admin.APIKey,
		RateLimiter: limiter,
	})
	if cfg.Admin.APIKey == "" {
		glog.Warn("未配置 admin.api_key, 管理接口将拒绝所有请求")
	}
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}

	batches.Close()
	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}
	if stopConsumer != nil {
		stopConsumer()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Warnf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
