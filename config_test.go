package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AnswerCooldown != 2*time.Minute {
		t.Fatalf("AnswerCooldown = %s", cfg.AnswerCooldown)
	}
	if cfg.AttackMilitaryFloor != 5 || cfg.AidEconomyFloor != 2 {
		t.Fatalf("floors = %d %d", cfg.AttackMilitaryFloor, cfg.AidEconomyFloor)
	}
	if cfg.StoreDialect != "sqlite" {
		t.Fatalf("StoreDialect = %q", cfg.StoreDialect)
	}
}

func TestLoadConfigOverridesAndValidation(t *testing.T) {
	t.Setenv("ANSWER_COOLDOWN", "90s")
	t.Setenv("ATTACK_TARGET_DAMAGE", "7")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.AnswerCooldown != 90*time.Second {
		t.Fatalf("AnswerCooldown = %s", cfg.AnswerCooldown)
	}
	if cfg.AttackTargetDamage != 7 {
		t.Fatalf("AttackTargetDamage = %d", cfg.AttackTargetDamage)
	}

	t.Setenv("ANSWER_COOLDOWN", "-1s")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("negative cooldown accepted")
	}
}
