package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Symbol != "BTC/USD" {
		t.Errorf("Symbol = %q, want default BTC/USD", cfg.Symbol)
	}
	if cfg.Interval != "5min" {
		t.Errorf("Interval = %q, want default 5min", cfg.Interval)
	}
	if cfg.CandleCount != 100 {
		t.Errorf("CandleCount = %d, want 100", cfg.CandleCount)
	}
	if cfg.HiddenNodes != 12 || cfg.LearningRate != 0.05 || cfg.Epsilon != 0.1 {
		t.Errorf("learning defaults wrong: %+v", cfg)
	}
	if cfg.TargetConf != 70 || cfg.MaxIterations != 10 || cfg.BatchSize != 5 {
		t.Errorf("training defaults wrong: %+v", cfg)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SYMBOL", "EUR/USD")
	t.Setenv("CANDLE_COUNT", "200")
	t.Setenv("LEARNING_RATE", "0.1")
	t.Setenv("EPSILON", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Symbol != "EUR/USD" {
		t.Errorf("Symbol = %q, want EUR/USD", cfg.Symbol)
	}
	if cfg.CandleCount != 200 {
		t.Errorf("CandleCount = %d, want 200", cfg.CandleCount)
	}
	if cfg.LearningRate != 0.1 || cfg.Epsilon != 0.25 {
		t.Errorf("learning overrides wrong: lr=%v eps=%v", cfg.LearningRate, cfg.Epsilon)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CANDLE_COUNT", "plenty")
	t.Setenv("LEARNING_RATE", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CandleCount != 100 {
		t.Errorf("CandleCount = %d, want the default for malformed input", cfg.CandleCount)
	}
	if cfg.LearningRate != 0.05 {
		t.Errorf("LearningRate = %v, want the default for malformed input", cfg.LearningRate)
	}
}
