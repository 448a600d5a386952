package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowdesk/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the viper instance and config path shared by every command.
type app struct {
	v          *viper.Viper
	configFile string
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.v, a.configFile)
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:          "flowdesk",
		Short:        "Multi-tenant business workflow service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCmd(a), newMigrateCmd(a))
	return root
}
