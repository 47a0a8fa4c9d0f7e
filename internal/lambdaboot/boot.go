// Package lambdaboot wires configuration into the service graph at cold
// start. Both the Lambda entry point and the local CLI call Build, so the
// handler and stage graph is constructed once, explicitly, and injected.
package lambdaboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/config"
	"github.com/beanvault/wallpaper-ai/internal/logging"
)

// redisPingTimeout bounds the cold-start connectivity check.
const redisPingTimeout = 2 * time.Second

// InitAWS loads the default AWS config.
func InitAWS(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// InitS3 creates an S3 client. A custom endpoint (R2, MinIO) switches to
// path-style addressing.
func InitS3(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, s3Options(cfg))
}

func s3Options(cfg *config.Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
		// "auto" is only meaningful to S3-compatible stores.
		if cfg.S3Region != "" && (cfg.S3Endpoint != "" || cfg.S3Region != "auto") {
			o.Region = cfg.S3Region
		}
	}
}

// ssmAPI is the subset of the SSM client used for secret resolution.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecrets resolves every secret that is configured only as an SSM
// parameter path, decrypting SecureString values.
func LoadSecrets(ctx context.Context, client ssmAPI, cfg *config.Config) error {
	for key, param := range cfg.Secrets() {
		start := time.Now()
		name := param
		result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &name,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to read %s from SSM parameter %s: %w", key, param, err)
		}
		if result.Parameter == nil || result.Parameter.Value == nil {
			return fmt.Errorf("SSM parameter %s has no value", param)
		}
		cfg.SetSecret(key, *result.Parameter.Value)
		log.Debug().Str("key", key).Str("param", param).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	}
	return nil
}

// InitRedis connects to the catalog cache and verifies it responds.
func InitRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
