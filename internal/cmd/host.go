package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vasc-collab/collab/internal/collabstate"
	"github.com/vasc-collab/collab/internal/config"
	"github.com/vasc-collab/collab/internal/hostserver"
	"github.com/vasc-collab/collab/internal/ignorelist"
	"github.com/vasc-collab/collab/internal/snapshotio"
)

var (
	hostProjectDir string
	hostBind       string
	hostPort       int
	hostToken      string
	hostIgnore     []string
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "expose a project directory for other machines to join",
	RunE:  runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVarP(&hostProjectDir, "project", "p", "", "project directory to share (default: current directory)")
	hostCmd.Flags().StringVar(&hostBind, "bind", "", "address to bind (default from config, else 0.0.0.0)")
	hostCmd.Flags().IntVar(&hostPort, "port", 0, "port to listen on (default from config, else 7420)")
	hostCmd.Flags().StringVar(&hostToken, "token", "", "shared secret clients must present (empty disables auth)")
	hostCmd.Flags().StringArrayVar(&hostIgnore, "ignore", nil, "extra ignore pattern (preset, literal, or *.ext), repeatable")
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if hostProjectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving current directory: %w", err)
		}
		hostProjectDir = cwd
	}

	bind := firstNonEmpty(hostBind, viper.GetString("bind"), cfg.Bind)
	port := hostPort
	if port == 0 {
		if p := viper.GetInt("port"); p != 0 {
			port = p
		} else {
			port = cfg.Port
		}
	}
	token := firstNonEmpty(hostToken, viper.GetString("token"), cfg.Token)

	ignore := ignorelist.Parse(ignorelist.HostMandatory, append(cfg.ExtraIgnore, hostIgnore...))

	state := collabstate.New()
	log.Info("scanning project directory")
	if err := snapshotio.BuildFromDir(hostProjectDir, state, ignore); err != nil {
		return fmt.Errorf("building initial snapshot: %w", err)
	}

	srv := hostserver.New(hostserver.Options{
		State:      state,
		Token:      token,
		ProjectDir: hostProjectDir,
		Ignore:     ignore,
		Logger:     log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	go srv.WatchProjectDir(ctx)

	addr := fmt.Sprintf("%s:%d", bind, port)
	log.WithField("addr", addr).Info("starting collab host")
	return srv.ListenAndServe(ctx, addr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
