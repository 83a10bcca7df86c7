package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	RemoteBaseURL string `env:"REMOTE_BASE_URL" envDefault:"http://localhost:4000/api"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"iron-accord-dev-secret"`

	AnswerCooldown time.Duration `env:"ANSWER_COOLDOWN" envDefault:"2m"`
	TargetPoll     time.Duration `env:"TARGET_POLL" envDefault:"5s"`
	StatusTTL      time.Duration `env:"STATUS_TTL" envDefault:"4s"`
	ConfirmTTL     time.Duration `env:"CONFIRM_TTL" envDefault:"30s"`

	AttackMilitaryFloor int `env:"ATTACK_MILITARY_FLOOR" envDefault:"5"`
	AidEconomyFloor     int `env:"AID_ECONOMY_FLOOR" envDefault:"2"`
	AttackTargetDamage  int `env:"ATTACK_TARGET_DAMAGE" envDefault:"3"`
	AidTargetBoost      int `env:"AID_TARGET_BOOST" envDefault:"1"`
	UpgradeCost         int `env:"UPGRADE_COST" envDefault:"2"`

	StoreDialect     string `env:"STORE_DIALECT" envDefault:"sqlite"`
	StoreSQLitePath  string `env:"STORE_SQLITE_PATH"`
	StorePostgresDSN string `env:"STORE_POSTGRES_DSN"`
}

// loadConfig reads .env if present, then the process environment.
func loadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AnswerCooldown <= 0 {
		return Config{}, fmt.Errorf("ANSWER_COOLDOWN must be positive, got %s", cfg.AnswerCooldown)
	}
	if cfg.TargetPoll <= 0 {
		return Config{}, fmt.Errorf("TARGET_POLL must be positive, got %s", cfg.TargetPoll)
	}
	return cfg, nil
}
