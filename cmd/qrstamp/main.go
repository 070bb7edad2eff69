package main

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/yuval/qrstamp/internal/config"
	"github.com/yuval/qrstamp/internal/form"
	applog "github.com/yuval/qrstamp/internal/log"
)

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

func main() {
	if err := newRootCmd(systemClipboard{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(clip form.Clipboard) *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:          "qrstamp",
		Short:        "Stamp codes with a date and time into QR codes, and read them back",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			applog.SetupLogging(cfg.App.LogLevel, cfg.App.LogFormat)
			return nil
		},
	}
	root.AddCommand(
		newGenerateCmd(func() *config.Config { return cfg }, clip),
		newScanCmd(),
	)
	return root
}
