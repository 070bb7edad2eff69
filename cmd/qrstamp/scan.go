package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuval/qrstamp/internal/relay"
	"github.com/yuval/qrstamp/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var (
		remote  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Decode a QR code from image files",
		Long: "Feeds the images to the scanner as camera frames and prints the first decoded text.\n" +
			"With --remote the frames are streamed to a running server instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				text string
				err  error
			)
			if remote != "" {
				text, err = scanRemote(remote, args, timeout)
			} else {
				text, err = scanLocal(cmd.Context(), args, timeout)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "server base URL, e.g. ws://localhost:8080")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

func scanLocal(ctx context.Context, paths []string, timeout time.Duration) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var text string
	cam := scanner.Exclusive(scanner.FileCamera{Paths: paths})
	err := scanner.New(nil).Scan(ctx, cam, func(t string) { text = t })
	if errors.Is(err, scanner.ErrNoCode) {
		return "", errors.New("no QR code found in the given images")
	}
	return text, err
}

func scanRemote(baseURL string, paths []string, timeout time.Duration) (string, error) {
	frames := make([][]byte, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		frames = append(frames, b)
	}

	client, err := relay.NewClient(baseURL)
	if err != nil {
		return "", err
	}
	if err := client.Connect(timeout); err != nil {
		return "", err
	}
	defer client.Close()

	return client.Scan(frames, timeout)
}
