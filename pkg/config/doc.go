// Package config loads typed application configuration from environment
// variables, with optional .env file support.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
// LoadEnv reads one or more .env files into the process environment, and
// Load parses the environment into any struct via `env` field tags. Each
// configuration type is parsed once per process and cached, so packages
// can load their own config independently without re-reading the
// environment.
//
// # Usage
//
//	var cfg mongostore.Config
//	config.MustLoad(&cfg)
//
// Or with an explicit env file during development:
//
//	config.MustLoadEnv(".env.local")
//	var cfg redisusage.Config
//	if err := config.Load(&cfg); err != nil {
//	    // handle error
//	}
//
// Tests that mutate the environment between loads can call ResetCache.
package config
