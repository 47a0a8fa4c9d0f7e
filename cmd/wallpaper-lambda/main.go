// Package main provides the Lambda entry point for the wallpaper pipeline.
//
// A single function behind API Gateway (HTTP API) serves the catalog API,
// the admin generation triggers and both provider callbacks. All wiring
// happens once in init(); configuration comes from WALLPAPER_* environment
// variables with secrets resolved from SSM Parameter Store.
//
// Endpoints:
//
//	GET      /health
//	POST     /api/download
//	GET      /api/top-downloads
//	GET      /api/latest
//	GET      /api/categories/{light,dark}
//	GET|POST /generate/{light,dark}
//	POST     /webhook/generated
//	POST     /webhook/upscale
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/config"
	"github.com/beanvault/wallpaper-ai/internal/lambdaboot"
	"github.com/beanvault/wallpaper-ai/internal/logging"
)

var router http.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	app, err := lambdaboot.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	router = app.Router

	app.StartupLogger(lambdaboot.StartupLog("wallpaper-lambda", initStart)).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(router)
	lambda.Start(adapter.ProxyWithContext)
}
