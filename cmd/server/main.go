package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"dim_chat/internal/config"
	"dim_chat/internal/protocol/address"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/repository/directory"
	"dim_chat/internal/service/facebook"
	redisSvc "dim_chat/internal/service/redis"
	"dim_chat/internal/service/server"
	"dim_chat/internal/utils/log"
)

func main() {
	path := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	address.SetCacheSize(cfg.Cache.Addresses)
	identity.SetCacheSize(cfg.Cache.Identifiers)

	mongoDBClient, err := initMongo(cfg.Mongo.URI)
	if err != nil {
		log.Fatal("connect mongo failed", zap.Error(err))
	}
	defer mongoDBClient.Disconnect(context.Background())

	db := mongoDBClient.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	redis := redisSvc.NewRedis(rdb)

	fb := facebook.New(directory.NewDirectoryRepo(db))
	c := server.NewHttpServer(fb, server.NewRedisQueue(redis))
	go func() {
		if err := c.Run(cfg.Server.Listen); err != nil {
			log.Fatal("station stopped", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	log.Sync()
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
