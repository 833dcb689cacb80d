package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "catalogd",
	Short:   "Rate-limited anime catalog daemon",
	Long:    `Catalogd serves cached anime metadata over HTTP, fetching misses from the AniDB catalog API under a strict rate limit.`,
	Version: version,
}

// Execute runs the root command. Called once from main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("listen-addr", ":8080", "HTTP listen address")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address")
	rootCmd.PersistentFlags().String("client-name", "", "registered catalog client name")
	rootCmd.PersistentFlags().Int("client-version", 1, "catalog client version")
	rootCmd.PersistentFlags().String("titles-path", "", "path to the anime-titles dataset")

	viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr"))
	viper.BindPFlag("redis_addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag("client_name", rootCmd.PersistentFlags().Lookup("client-name"))
	viper.BindPFlag("client_version", rootCmd.PersistentFlags().Lookup("client-version"))
	viper.BindPFlag("titles_path", rootCmd.PersistentFlags().Lookup("titles-path"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("CATALOGD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
