// Package cmd wires the collab CLI: a root command carrying shared flags
// plus the host and join subcommands.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	debug   bool

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "collab",
	Short: "collab synchronizes a project directory between a host and one or more clients",
	Long: `collab mirrors a project directory over a LAN or VPN. One machine runs
"collab host" to expose a directory; other machines run "collab join" to
mirror it bidirectionally.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vasc-collab/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func initConfig() {
	viper.SetEnvPrefix("collab")
	viper.AutomaticEnv()
}
