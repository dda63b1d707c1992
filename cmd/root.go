package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "bid-reviewer"
)

type Config struct {
	Inputs    *InputsConfig `mapstructure:"inputs"`
	ResultsDB string        `mapstructure:"results-db"`
	Review    *ReviewConfig `mapstructure:"review"`
	AI        *AIConfig     `mapstructure:"ai"`
}

type InputsConfig struct {
	RequirementsFile string `mapstructure:"requirements-file"`
	ResponsesFile    string `mapstructure:"responses-file"`
	SegmentsDB       string `mapstructure:"segments-db"`
}

// ReviewConfig tunes the pipeline. The float knobs are pointers so that an
// explicit zero in the config file (e.g. price-tolerance: 0) is distinguishable
// from an absent key and reaches the pipeline instead of its default.
type ReviewConfig struct {
	ConfidenceThreshold *float64 `mapstructure:"confidence-threshold"`
	PriceTolerance      *float64 `mapstructure:"price-tolerance"`
	DurationTolerance   *float64 `mapstructure:"duration-tolerance"`
	MaxEvidencePerItem  int      `mapstructure:"max-evidence-per-item"`
	QuoteMaxChars       int      `mapstructure:"quote-max-chars"`
	SemanticWorkers     int      `mapstructure:"semantic-workers"`
	JudgeTimeoutSeconds int      `mapstructure:"judge-timeout-seconds"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "bid-reviewer evaluates structured bidder responses against tender requirements",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is bid-reviewer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for the run command. If there is no config, we can skip initialization.
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
