package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rl-arena/arena-match-engine/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ArenaConfig tier tables and AI difficulty profiles
type ArenaConfig struct {
	DefaultCategory   string
	DefaultDifficulty int
	Tiers             map[models.Tier]models.BetConfig
	Difficulties      map[int]models.AIProfile
}

// BetConfig returns the table for a tier
func (c *ArenaConfig) BetConfig(tier models.Tier) (models.BetConfig, bool) {
	bc, ok := c.Tiers[tier]
	return bc, ok
}

// AIProfile returns the opponent profile for a difficulty
func (c *ArenaConfig) AIProfile(difficulty int) (models.AIProfile, bool) {
	p, ok := c.Difficulties[difficulty]
	return p, ok
}

type arenaFile struct {
	DefaultCategory   string           `yaml:"default_category"`
	DefaultDifficulty int              `yaml:"default_difficulty"`
	Tiers             []tierFile       `yaml:"tiers"`
	Difficulties      []difficultyFile `yaml:"difficulties"`
}

type tierFile struct {
	Tier              string `yaml:"tier"`
	MinWager          int64  `yaml:"min_wager"`
	MaxWager          int64  `yaml:"max_wager"`
	WinMultiplier     string `yaml:"win_multiplier"`
	DrawMultiplier    string `yaml:"draw_multiplier"`
	LossMultiplier    string `yaml:"loss_multiplier"`
	DailyMatchLimit   int    `yaml:"daily_match_limit"`
	XPBase            int64  `yaml:"xp_base"`
	XPPerCorrect      int64  `yaml:"xp_per_correct"`
	XPMultiplier      string `yaml:"xp_multiplier"`
	MaxBookBonus      string `yaml:"max_book_bonus"`
	DefaultDifficulty int    `yaml:"default_difficulty"`
}

type difficultyFile struct {
	Difficulty    int     `yaml:"difficulty"`
	Accuracy      float64 `yaml:"accuracy"`
	MinResponseMs int     `yaml:"min_response_ms"`
	MaxResponseMs int     `yaml:"max_response_ms"`
}

// DefaultArenaConfig built-in tables used when no file is present.
// Payouts: win 1.8x stake scaled by book bonus, draw refunds, loss forfeits the stake.
func DefaultArenaConfig() *ArenaConfig {
	cfg, err := parseArenaConfig([]byte(defaultArenaYAML))
	if err != nil {
		panic("invalid built-in arena config: " + err.Error())
	}
	return cfg
}

// LoadArenaConfig reads the YAML tables from path, falling back to defaults when
// the file does not exist
func LoadArenaConfig(path string) (*ArenaConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultArenaConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read arena config: %w", err)
	}

	cfg, err := parseArenaConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid arena config %s: %w", path, err)
	}
	return cfg, nil
}

func parseArenaConfig(data []byte) (*ArenaConfig, error) {
	var f arenaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	cfg := &ArenaConfig{
		DefaultCategory:   f.DefaultCategory,
		DefaultDifficulty: f.DefaultDifficulty,
		Tiers:             make(map[models.Tier]models.BetConfig, len(f.Tiers)),
		Difficulties:      make(map[int]models.AIProfile, len(f.Difficulties)),
	}

	for _, t := range f.Tiers {
		bc, err := t.toBetConfig()
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", t.Tier, err)
		}
		if bc.DefaultDifficulty == 0 {
			bc.DefaultDifficulty = f.DefaultDifficulty
		}
		cfg.Tiers[bc.Tier] = bc
	}

	for _, d := range f.Difficulties {
		cfg.Difficulties[d.Difficulty] = models.AIProfile{
			Difficulty:      d.Difficulty,
			Accuracy:        d.Accuracy,
			MinResponseTime: time.Duration(d.MinResponseMs) * time.Millisecond,
			MaxResponseTime: time.Duration(d.MaxResponseMs) * time.Millisecond,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (t tierFile) toBetConfig() (models.BetConfig, error) {
	parse := func(name, s, fallback string) (decimal.Decimal, error) {
		if s == "" {
			s = fallback
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", name, err)
		}
		return d, nil
	}

	win, err := parse("win_multiplier", t.WinMultiplier, "1.8")
	if err != nil {
		return models.BetConfig{}, err
	}
	draw, err := parse("draw_multiplier", t.DrawMultiplier, "0")
	if err != nil {
		return models.BetConfig{}, err
	}
	loss, err := parse("loss_multiplier", t.LossMultiplier, "1")
	if err != nil {
		return models.BetConfig{}, err
	}
	xpMult, err := parse("xp_multiplier", t.XPMultiplier, "1")
	if err != nil {
		return models.BetConfig{}, err
	}
	maxBonus, err := parse("max_book_bonus", t.MaxBookBonus, "0.3")
	if err != nil {
		return models.BetConfig{}, err
	}

	return models.BetConfig{
		Tier:              models.Tier(t.Tier),
		MinWager:          t.MinWager,
		MaxWager:          t.MaxWager,
		WinMultiplier:     win,
		DrawMultiplier:    draw,
		LossMultiplier:    loss,
		DailyMatchLimit:   t.DailyMatchLimit,
		XPBase:            t.XPBase,
		XPPerCorrect:      t.XPPerCorrect,
		XPMultiplier:      xpMult,
		MaxBookBonus:      maxBonus,
		DefaultDifficulty: t.DefaultDifficulty,
	}, nil
}

// Validate checks table consistency. Difficulty profiles must get strictly harder:
// accuracy non-decreasing and latency bounds non-increasing.
func (c *ArenaConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.New("no tiers configured")
	}
	for tier, bc := range c.Tiers {
		if tier == "" {
			return errors.New("tier name is empty")
		}
		if bc.MinWager <= 0 || bc.MaxWager < bc.MinWager {
			return fmt.Errorf("tier %s: invalid wager bounds [%d,%d]", tier, bc.MinWager, bc.MaxWager)
		}
		if bc.DailyMatchLimit <= 0 {
			return fmt.Errorf("tier %s: daily match limit must be positive", tier)
		}
		if bc.WinMultiplier.IsNegative() || bc.DrawMultiplier.IsNegative() || bc.LossMultiplier.IsNegative() {
			return fmt.Errorf("tier %s: payout multipliers must not be negative", tier)
		}
	}

	if len(c.Difficulties) == 0 {
		return errors.New("no difficulties configured")
	}
	levels := make([]int, 0, len(c.Difficulties))
	for d := range c.Difficulties {
		levels = append(levels, d)
	}
	sort.Ints(levels)

	var prev *models.AIProfile
	for _, d := range levels {
		p := c.Difficulties[d]
		if p.Accuracy < 0 || p.Accuracy > 1 {
			return fmt.Errorf("difficulty %d: accuracy must be within [0,1]", d)
		}
		if p.MinResponseTime < models.MinAIResponseTime || p.MaxResponseTime > models.MaxAIResponseTime ||
			p.MinResponseTime > p.MaxResponseTime {
			return fmt.Errorf("difficulty %d: response time bounds must lie within [%v,%v]",
				d, models.MinAIResponseTime, models.MaxAIResponseTime)
		}
		if prev != nil {
			if p.Accuracy < prev.Accuracy || p.MaxResponseTime > prev.MaxResponseTime ||
				p.MinResponseTime > prev.MinResponseTime {
				return fmt.Errorf("difficulty %d must not be easier than difficulty %d", d, prev.Difficulty)
			}
		}
		prev = &p
	}

	if _, ok := c.Difficulties[c.DefaultDifficulty]; !ok {
		return fmt.Errorf("default difficulty %d is not configured", c.DefaultDifficulty)
	}
	for tier, bc := range c.Tiers {
		if _, ok := c.Difficulties[bc.DefaultDifficulty]; !ok {
			return fmt.Errorf("tier %s: default difficulty %d is not configured", tier, bc.DefaultDifficulty)
		}
	}
	return nil
}

const defaultArenaYAML = `
default_category: general
default_difficulty: 2
tiers:
  - tier: free
    min_wager: 10
    max_wager: 100
    win_multiplier: "1.8"
    draw_multiplier: "0"
    loss_multiplier: "1"
    daily_match_limit: 3
    xp_base: 20
    xp_per_correct: 5
    xp_multiplier: "1"
    max_book_bonus: "0.3"
  - tier: premium
    min_wager: 10
    max_wager: 500
    win_multiplier: "1.8"
    draw_multiplier: "0"
    loss_multiplier: "1"
    daily_match_limit: 10
    xp_base: 30
    xp_per_correct: 5
    xp_multiplier: "1.5"
    max_book_bonus: "0.5"
  - tier: pro
    min_wager: 10
    max_wager: 2000
    win_multiplier: "1.8"
    draw_multiplier: "0"
    loss_multiplier: "1"
    daily_match_limit: 50
    xp_base: 40
    xp_per_correct: 5
    xp_multiplier: "2"
    max_book_bonus: "0.5"
    default_difficulty: 3
difficulties:
  - difficulty: 1
    accuracy: 0.5
    min_response_ms: 3000
    max_response_ms: 10000
  - difficulty: 2
    accuracy: 0.6
    min_response_ms: 2500
    max_response_ms: 9000
  - difficulty: 3
    accuracy: 0.7
    min_response_ms: 2000
    max_response_ms: 8000
  - difficulty: 4
    accuracy: 0.8
    min_response_ms: 1500
    max_response_ms: 6500
  - difficulty: 5
    accuracy: 0.9
    min_response_ms: 1000
    max_response_ms: 5000
`
