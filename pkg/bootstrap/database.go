package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/migrations"
)

// Stores holds the optional backing stores. A field is nil when its section
// of the database config is empty.
type Stores struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Client
	MongoDB  *mongo.Database
}

// OpenStores connects every configured store. On failure the stores opened
// so far are closed again.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*Stores, error) {
	s := &Stores{}

	if cfg.Postgres.Host != "" {
		db, err := openPostgres(ctx, cfg.Postgres, cfg.RunMigrations)
		if err != nil {
			return nil, err
		}
		s.Postgres = db
		log.Infow("PostgreSQL connected", "host", cfg.Postgres.Host, "migrated", cfg.RunMigrations)
	}

	if cfg.Redis.Host != "" {
		rdb, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.Redis = rdb
		log.Infow("Redis connected", "host", cfg.Redis.Host)
	}

	if cfg.MongoDB.URI != "" {
		client, err := openMongo(ctx, cfg.MongoDB.URI)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		name := cfg.MongoDB.Database
		if name == "" {
			name = constants.DefaultMongoDBName
		}
		s.Mongo = client
		s.MongoDB = client.Database(name)
		log.Infow("MongoDB connected", "database", name)
	}

	return s, nil
}

func postgresDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig, migrate bool) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if migrate {
		if err := migrations.MigratePostgres(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return rdb, nil
}

func openMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Close releases every open store and is safe on a nil receiver.
func (s *Stores) Close(ctx context.Context) []error {
	if s == nil {
		return nil
	}
	var errs []error

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
		s.Redis = nil
	}

	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
		s.Postgres = nil
	}

	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
		s.Mongo, s.MongoDB = nil, nil
	}

	return errs
}
