package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arlert/devmon"
)

var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// RunFlags holds flags for the run (root) command.
type RunFlags struct {
	Fullscreen bool
	APIListen  string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	rf := &RunFlags{}

	root := &cobra.Command{
		Use:     "devmon <script>",
		Short:   "Run a configured script and restart it on file changes",
		Args:    cobra.ExactArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, gf, rf, args[0])
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to config file (default ./devmon.toml)")
	root.PersistentFlags().BoolVar(&gf.Debug, "debug", false, "enable debug logging")
	root.Flags().BoolVar(&rf.Fullscreen, "fullscreen", false, "clear the screen on every reload")
	root.Flags().StringVar(&rf.APIListen, "api", "", "serve the status API on this address")

	root.AddCommand(newListCommand(gf))
	return root
}

func loadConfig(gf *GlobalFlags) (*devmon.Config, error) {
	if gf.ConfigPath != "" {
		return devmon.LoadConfig(gf.ConfigPath)
	}
	return devmon.LoadDefaultConfig()
}

func newLogger(gf *GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	if gf.Debug {
		level = slog.LevelDebug
	}
	return devmon.NewLogger(level)
}

func runScript(cmd *cobra.Command, gf *GlobalFlags, rf *RunFlags, name string) error {
	fc, err := loadConfig(gf)
	if err != nil {
		return err
	}
	if rf.Fullscreen {
		fc.Fullscreen = true
	}
	if rf.APIListen != "" {
		fc.API.Listen = rf.APIListen
	}

	logger := newLogger(gf)
	sup, err := devmon.NewSupervisor(fc, name, logger)
	if err != nil {
		return err
	}
	defer sup.Stop()

	events, err := sup.Events()
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case devmon.EventStart:
			logger.Info("watching for changes", "script", name)
		case devmon.EventReload:
			logger.Debug("reload", "changes", len(ev.Change))
		case devmon.EventExit:
			logger.Debug("supervision ended", "script", name)
		}
	}
	return nil
}

func newListCommand(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(gf)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(fc.Scripts))
			for n := range fc.Scripts {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				def := fc.Scripts[n]
				mark := " "
				if def.Watch {
					mark = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s %s\n", mark, n, def.Cmd)
			}
			return nil
		},
	}
}
