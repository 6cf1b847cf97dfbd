package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vasc-collab/collab/internal/config"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/pathutil"
	"github.com/vasc-collab/collab/internal/syncclient"
)

var (
	joinTargetDir string
	joinToken     string
	joinIgnore    []string
	joinBackup    bool
)

var joinCmd = &cobra.Command{
	Use:   "join <host:port>",
	Short: "mirror a remote host's project directory locally",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&joinTargetDir, "dir", "d", "", "local directory to mirror into (default: current directory)")
	joinCmd.Flags().StringVar(&joinToken, "token", "", "shared secret the host expects")
	joinCmd.Flags().StringArrayVar(&joinIgnore, "ignore", nil, "extra ignore pattern (preset, literal, or *.ext), repeatable")
	joinCmd.Flags().BoolVar(&joinBackup, "backup", true, "back up the target directory before wiping it")
}

func runJoin(cmd *cobra.Command, args []string) error {
	hostAddr := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if joinTargetDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving current directory: %w", err)
		}
		joinTargetDir = cwd
	}
	targetDir, err := pathutil.ExpandUser(joinTargetDir)
	if err != nil {
		return fmt.Errorf("resolving target directory: %w", err)
	}

	token := firstNonEmpty(joinToken, viper.GetString("token"), cfg.Token)
	backup := joinBackup
	if !cmd.Flags().Changed("backup") {
		backup = cfg.ShouldBackup()
	}

	ignore := ignorelist.Parse(ignorelist.ClientMandatory, append(cfg.ExtraIgnore, joinIgnore...))

	client := syncclient.New(syncclient.Options{
		BaseURL:   "http://" + hostAddr,
		Token:     token,
		TargetDir: targetDir,
		Ignore:    ignore,
		Logger:    log,
	})

	log.WithField("host", hostAddr).Info("connecting")
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	log.Info("bootstrapping project snapshot")
	if err := client.Bootstrap(backup); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	log.Info("entering steady-state sync loop")
	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("sync loop failed: %w", err)
	}

	syncclient.PrintSummary(os.Stdout, client.Stats())
	return nil
}
