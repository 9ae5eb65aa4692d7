package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/playlake/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "playlake",
		Short: "Build a star schema of song plays from raw JSON logs",
		Long: `playlake turns a song catalog and an activity log, both line-delimited
JSON, into a star schema of Hive-partitioned Parquet tables: songs,
artists, users and time dimensions around a songplays fact table.

Runs are recorded in a local SQLite ledger alongside a JSONL event log.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/playlake.yaml)")
	rootCmd.PersistentFlags().String("db", "playlake-state.db", "run ledger database file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 8)
	v.SetDefault("partitions", 8)
	v.SetDefault("events_dir", "artifacts")
	v.SetDefault("staging_dir", "")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("playlake")
		viper.SetConfigType("yaml")
	}

	// aws.region is read from PLAYLAKE_AWS_REGION
	viper.SetEnvPrefix("PLAYLAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func main() {
	err := rootCmd.Execute()
	util.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
