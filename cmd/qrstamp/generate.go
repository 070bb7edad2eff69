package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/yuval/qrstamp/internal/api"
	"github.com/yuval/qrstamp/internal/config"
	"github.com/yuval/qrstamp/internal/form"
	"github.com/yuval/qrstamp/internal/payload"
	"github.com/yuval/qrstamp/internal/qrcode"
)

type generateOptions struct {
	code       string
	date       string
	time       string
	policy     string
	out        string
	copy       bool
	digitsOnly string
}

func newGenerateCmd(cfg func() *config.Config, clip form.Clipboard) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build the payload text and print it with a QR code",
		Example: `  qrstamp generate --code 12345 --date 2024-06-01 --time 14:30
  qrstamp generate --policy machine --code 'ABC|0000000000' --date today --out code.png --copy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, cfg(), opts, clip)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.code, "code", "", "code to stamp")
	f.StringVar(&opts.date, "date", "", "date as YYYY-MM-DD, or today")
	f.StringVar(&opts.time, "time", "", "time as HH:MM (default DEFAULT_TIME)")
	f.StringVar(&opts.policy, "policy", "", "payload policy: human or machine (default PAYLOAD_POLICY)")
	f.StringVar(&opts.out, "out", "", "write the QR code PNG to this file")
	f.BoolVar(&opts.copy, "copy", false, "copy the payload text to the clipboard")
	f.StringVar(&opts.digitsOnly, "digits-only", "", "strip non-digits from the code: true or false (default PAYLOAD_DIGITS_ONLY, else true for human and false for machine)")
	return cmd
}

func runGenerate(cmd *cobra.Command, cfg *config.Config, opts *generateOptions, clip form.Clipboard) error {
	settings := cfg.Payload
	if opts.policy != "" {
		settings = settings.WithPolicy(opts.policy)
	}
	switch opts.digitsOnly {
	case "":
	case "true":
		settings.DigitsOnly = true
	case "false":
		settings.DigitsOnly = false
	default:
		return fmt.Errorf("--digits-only must be true or false, got %q", opts.digitsOnly)
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	formatter, err := payload.ForPolicy(settings.Policy, settings.Delimiter)
	if err != nil {
		return err
	}

	defaultTime, err := payload.ParseClock(settings.DefaultTime)
	if err != nil {
		return fmt.Errorf("DEFAULT_TIME: %w", err)
	}

	encoder, err := api.NewEncoder(cfg.QR)
	if err != nil {
		return err
	}

	ctrl := form.NewController(form.Options{
		Formatter:   formatter,
		Renderer:    encoder,
		DigitsOnly:  settings.DigitsOnly,
		DefaultTime: defaultTime,
	})
	ctrl.SetCode(opts.code)

	date, err := parseDateFlag(opts.date)
	if err != nil {
		return err
	}
	ctrl.SetDate(date)

	if opts.time != "" {
		if err := ctrl.SetTime(opts.time); err != nil {
			return err
		}
	}

	if n := ctrl.Generate(cmd.Context()); n.IsError() {
		return noticeError(n)
	}
	text := ctrl.Snapshot().Text

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, text)
	fmt.Fprint(out, qrcode.Terminal(text))

	if opts.out != "" {
		png, err := encoder.PNG(text)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.out, png, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", opts.out)
	}

	if opts.copy {
		n := ctrl.Copy(cmd.Context(), clip)
		// a failed copy is reported but does not fail the command
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", n.Title, n.Description)
	}
	return nil
}

func parseDateFlag(s string) (civil.Date, error) {
	if s == "today" {
		return civil.DateOf(time.Now()), nil
	}
	return payload.ParseDate(s)
}

func noticeError(n form.Notice) error {
	return errors.New(n.Description)
}
