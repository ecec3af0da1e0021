package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivalscope/rivalscope/internal/utils"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `        _            _
   _ __(_)_   ____ _| |___  ___ ___  _ __   ___
  | '__| \ \ / / _' | / __|/ __/ _ \| '_ \ / _ \
  | |  | |\ V / (_| | \__ \ (_| (_) | |_) |  __/
  |_|  |_| \_/ \__,_|_|___/\___\___/| .__/ \___|
                                    |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rivalscope",
	Short: "Competitor pricing intelligence for telecom operators.",
	Long: LOGO + `rivalscope scrapes competitor mobile and fixed-line offerings, normalizes them,
tracks price changes over time and compares them against your own catalog.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rivalscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "rivalscope.db", "Path to SQLite DB file")

	viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))
	viper.BindPFlag("dbpath", rootCmd.PersistentFlags().Lookup("dbpath"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".rivalscope")
		viper.SetConfigType("yaml")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with the credentials left empty.
			home, _ := homedir.Dir()
			configPath := home + "/.rivalscope.yaml"
			viper.SetDefault("extraction.api_key", "")
			viper.SetDefault("notify.webhook_url", "")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %s", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
			os.Exit(1)
		}
	}

	// Init log library
	if err := utils.SetLogLevel(viper.GetString("loglevel")); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
