package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// Config is the merged, immutable view of the three configuration documents
// (league, strategy, credentials). Loaded once at startup and passed by
// pointer; never mutated afterward.
type Config struct {
	// League
	LeagueName      string
	TeamCount       int
	StartingBudget  int
	MinimumBid      int
	RosterTemplate  []string
	MyTeamID        string
	CategoryWeights map[string]float64

	// Strategy
	HittingBudgetFraction float64
	ReplacementCushion    int
	DefaultHoldRate       float64
	AnalysisTopPlayers    int

	// LLM
	LLMModel           string
	LLMAnalysisTrigger string // "nomination" or "my_turn_only"
	LLMMaxTokens       int
	LLMTimeoutSeconds  int
	LLMBaseURL         string
	LLMAPIKey          string

	// Transport
	WebsocketPort int

	// Persistence
	DatabasePath       string
	CheckpointSchedule string

	// Data files
	HittersFile          string
	StartingPitchersFile string
	ReliefPitchersFile   string
	ADPFile              string
	HoldsFile            string

	Env string
}

// AnalysisTriggerMyTurnOnly is the trigger policy that only dispatches
// analysis when it is the operator's turn to act.
const AnalysisTriggerMyTurnOnly = "my_turn_only"

// AnalysisTriggerNomination dispatches analysis on every nomination change.
const AnalysisTriggerNomination = "nomination"

// LoadConfig reads league.yaml, strategy.yaml and credentials.yaml from the
// given directory and merges them. Missing strategy/credentials keys fall back
// to defaults; a missing league document is a startup error.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	// Defaults (strategy document is optional in its entirety)
	v.SetDefault("ENV", "development")
	v.SetDefault("league.name", "")
	v.SetDefault("league.teams", 10)
	v.SetDefault("league.budget", 260)
	v.SetDefault("league.minimum_bid", 1)
	v.SetDefault("league.roster", []string{
		"C", "1B", "2B", "3B", "SS", "OF", "OF", "OF", "UTIL", "UTIL",
		"SP", "SP", "SP", "RP", "RP", "BN", "BN", "BN",
	})
	v.SetDefault("league.my_team_id", "")
	v.SetDefault("budget.hitting_budget_fraction", 0.65)
	v.SetDefault("valuation.replacement_cushion", 2)
	v.SetDefault("valuation.default_hold_rate", 0.35)
	v.SetDefault("weights.SV", 0.7)
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.analysis_trigger", AnalysisTriggerNomination)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 30)
	v.SetDefault("llm.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("llm.top_players", 12)
	v.SetDefault("websocket.port", 9001)
	v.SetDefault("database.path", "draft.db")
	v.SetDefault("database.checkpoint_schedule", "@every 1m")
	v.SetDefault("data.hitters", "data/hitters.csv")
	v.SetDefault("data.starting_pitchers", "data/starting_pitchers.csv")
	v.SetDefault("data.relief_pitchers", "data/relief_pitchers.csv")
	v.SetDefault("data.adp", "data/adp.csv")
	v.SetDefault("data.holds", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// League document is required.
	v.SetConfigName("league")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading league config: %w", err)
	}

	// Strategy and credentials merge on top when present.
	for _, name := range []string{"strategy", "credentials"} {
		v.SetConfigName(name)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading %s config: %w", name, err)
			}
		}
	}

	cfg := &Config{
		LeagueName:            v.GetString("league.name"),
		TeamCount:             v.GetInt("league.teams"),
		StartingBudget:        v.GetInt("league.budget"),
		MinimumBid:            v.GetInt("league.minimum_bid"),
		RosterTemplate:        v.GetStringSlice("league.roster"),
		MyTeamID:              v.GetString("league.my_team_id"),
		CategoryWeights:       readWeights(v),
		HittingBudgetFraction: v.GetFloat64("budget.hitting_budget_fraction"),
		ReplacementCushion:    v.GetInt("valuation.replacement_cushion"),
		DefaultHoldRate:       v.GetFloat64("valuation.default_hold_rate"),
		AnalysisTopPlayers:    v.GetInt("llm.top_players"),
		LLMModel:              v.GetString("llm.model"),
		LLMAnalysisTrigger:    v.GetString("llm.analysis_trigger"),
		LLMMaxTokens:          v.GetInt("llm.max_tokens"),
		LLMTimeoutSeconds:     v.GetInt("llm.timeout_seconds"),
		LLMBaseURL:            v.GetString("llm.base_url"),
		LLMAPIKey:             v.GetString("llm.api_key"),
		WebsocketPort:         v.GetInt("websocket.port"),
		DatabasePath:          v.GetString("database.path"),
		CheckpointSchedule:    v.GetString("database.checkpoint_schedule"),
		HittersFile:           v.GetString("data.hitters"),
		StartingPitchersFile:  v.GetString("data.starting_pitchers"),
		ReliefPitchersFile:    v.GetString("data.relief_pitchers"),
		ADPFile:               v.GetString("data.adp"),
		HoldsFile:             v.GetString("data.holds"),
		Env:                   v.GetString("ENV"),
	}

	// The bearer credential may also live in a standalone secrets file pointed
	// at by the credentials document.
	if cfg.LLMAPIKey == "" {
		if path := v.GetString("llm.api_key_file"); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("error reading llm credential file: %w", err)
			}
			cfg.LLMAPIKey = strings.TrimSpace(string(raw))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readWeights(v *viper.Viper) map[string]float64 {
	weights := make(map[string]float64)
	for key, val := range v.GetStringMap("weights") {
		switch x := val.(type) {
		case float64:
			weights[strings.ToUpper(key)] = x
		case int:
			weights[strings.ToUpper(key)] = float64(x)
		}
	}
	return weights
}

func (c *Config) validate() error {
	if c.TeamCount < 2 {
		return fmt.Errorf("league.teams must be at least 2, got %d", c.TeamCount)
	}
	if c.StartingBudget < 1 {
		return fmt.Errorf("league.budget must be positive, got %d", c.StartingBudget)
	}
	if len(c.RosterTemplate) == 0 {
		return fmt.Errorf("league.roster must not be empty")
	}
	if c.HittingBudgetFraction <= 0 || c.HittingBudgetFraction >= 1 {
		return fmt.Errorf("budget.hitting_budget_fraction must be in (0, 1), got %v", c.HittingBudgetFraction)
	}
	switch c.LLMAnalysisTrigger {
	case AnalysisTriggerNomination, AnalysisTriggerMyTurnOnly:
	default:
		return fmt.Errorf("llm.analysis_trigger must be %q or %q, got %q",
			AnalysisTriggerNomination, AnalysisTriggerMyTurnOnly, c.LLMAnalysisTrigger)
	}
	return nil
}

// LeagueSettings converts the config into the runtime league definition.
func (c *Config) LeagueSettings() models.LeagueSettings {
	template := make([]models.SlotKind, 0, len(c.RosterTemplate))
	for _, s := range c.RosterTemplate {
		template = append(template, models.SlotKind(strings.ToUpper(strings.TrimSpace(s))))
	}
	return models.LeagueSettings{
		TeamCount:      c.TeamCount,
		StartingBudget: c.StartingBudget,
		MinimumBid:     c.MinimumBid,
		RosterTemplate: template,
		MyTeamID:       c.MyTeamID,
	}
}

// IsDevelopment reports whether the engine runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
