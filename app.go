package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PPRealtime/global/config"
	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/api"
	"PPRealtime/module/chat/store"
	"PPRealtime/service/chat"
	"PPRealtime/service/chat/handlers"
	"PPRealtime/service/kafka"
	"PPRealtime/service/mgo"
	"PPRealtime/service/natsx"
	"PPRealtime/service/storage"
	redisx "PPRealtime/service/storage/redis"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	mongoReadyTimeout = 30 * time.Second
	relayIdemTTL      = 2 * time.Minute
)

// app owns every long-lived component of one realtime node.
type app struct {
	cfg *config.AppConfig
	log *zap.Logger

	mongo  *mgo.Manager
	rdb    *redis.Client
	mirror *storage.PresenceMirror
	nats   *natsx.Client
	events *kafka.EventPublisher
	rt     *chat.Server
	http   *http.Server
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (a *app, err error) {
	self := &app{cfg: cfg, log: log}
	a = self
	defer func() {
		if err != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = self.stop(sctx)
		}
	}()

	validator, err := security.NewJWTValidator(security.Options{
		Secret: []byte(cfg.JWT.Secret),
		Alg:    cfg.JWT.Alg,
		TTL:    cfg.JWT.TTL,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	a.mongo = mgo.NewManager(&cfg.Mongo, log)
	a.mongo.StartAsync(ctx)
	wctx, cancel := context.WithTimeout(ctx, mongoReadyTimeout)
	err = a.mongo.WaitReady(wctx)
	cancel()
	if err != nil {
		return nil, err
	}
	st := store.NewMongo(a.mongo)
	if err = st.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	reg := chat.NewRegistry()
	router := chat.NewRouter(log)
	presence := chat.NewPresence(reg, st, router, log)
	disp := chat.NewDispatcher(router, log)
	h := handlers.New(st, router, log)

	if cfg.Redis.Enabled {
		a.rdb, err = redisx.NewClient(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		a.mirror = storage.NewPresenceMirror(a.rdb, cfg.NodeID, cfg.Redis.PresenceTTL, log)
		presence.SetMirror(a.mirror)
	}

	if cfg.Nats.Enabled {
		a.nats, err = natsx.Connect(natsx.Config{Servers: cfg.Nats.Servers, Name: cfg.Nats.Name}, log)
		if err != nil {
			return nil, err
		}
		relay := natsx.NewRelay(a.nats, cfg.Nats.Subject, cfg.NodeID, router, natsx.NewMemIdem(ctx, relayIdemTTL), log)
		if err = relay.Start(); err != nil {
			return nil, err
		}
		router.SetForwarder(relay)
	}

	if cfg.Kafka.Enabled {
		a.events, err = kafka.Dial(kafka.Config{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			ClientID:    cfg.Kafka.ClientID,
			Compression: cfg.Kafka.Compression,
			Retries:     cfg.Kafka.Retries,
		}, log)
		if err != nil {
			return nil, err
		}
		h.SetPublisher(a.events)
	}
	h.Register(disp)

	rc := cfg.Realtime
	a.rt = chat.NewServer(validator, reg, presence, router, disp, chat.ServerOptions{
		Client: chat.ClientOptions{
			SendQueue:       rc.SendQueue,
			WriteWait:       rc.WriteWait,
			PongWait:        rc.PongWait,
			PingInterval:    rc.PingInterval,
			MaxMessageBytes: rc.MaxMessageBytes,
		},
		HandshakeTimeout: rc.HandshakeTimeout,
		AllowedOrigins:   rc.AllowedOrigins,
	}, log)

	a.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.routes(st, h, validator),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	return a, nil
}

func (a *app) routes(st store.Store, sender api.MessageSender, v security.Validator) *gin.Engine {
	if a.cfg.Server.GinMode != "" {
		gin.SetMode(a.cfg.Server.GinMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.NewManager(
		middleware.RequestID(),
		middleware.AccessLog(a.log),
	).Use())

	engine.GET(a.cfg.Realtime.Path, a.rt.HandleWS)

	rest := engine.Group("", middleware.Origin(a.cfg.Realtime.AllowedOrigins))
	api.NewServer(st, sender, func() any { return a.rt.Stats() }, a.log).
		Register(rest, midsec.Middleware(v, midsec.DefaultOptions()))
	return engine
}

func (a *app) run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.mirror != nil {
		g.Go(func() error { return a.mirror.Run(ctx, a.rt.Registry()) })
	}
}

// stop releases components in reverse dependency order. Safe on a partially
// built app.
func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.http != nil {
		errs = append(errs, a.http.Shutdown(ctx))
	}
	if a.rt != nil {
		errs = append(errs, a.rt.Shutdown(ctx))
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.mongo != nil {
		a.mongo.Close()
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Warn("shutdown incomplete", zap.Error(err))
	}
	return err
}
