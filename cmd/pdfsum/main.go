package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/client"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/speech"
)

func main() {
	app := &cli.App{
		Name:  "pdfsum",
		Usage: "Summarize PDF files with the smart-pdf-summarizer server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a JSON or YAML config file",
				EnvVars: []string{"PDFSUM_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log request details to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "summarize",
				Usage:     "Upload a PDF and print its summary",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server",
						Aliases: []string{"s"},
						Usage:   "Server base URL (default from config)",
					},
					&cli.StringFlag{
						Name:  "html",
						Usage: "Write the sanitized HTML rendering to `FILE`",
					},
					&cli.BoolFlag{
						Name:  "copy",
						Usage: "Copy the summary to the clipboard",
					},
					&cli.BoolFlag{
						Name:    "read-aloud",
						Aliases: []string{"r"},
						Usage:   "Read the summary aloud, highlighting each word",
					},
					&cli.Float64Flag{
						Name:  "rate",
						Usage: "Read-aloud rate multiplier (default from config)",
					},
					&cli.IntFlag{
						Name:  "wpm",
						Usage: "Read-aloud pace in words per minute (default from config)",
					},
					&cli.StringFlag{
						Name:  "audio-out",
						Usage: "Download the summary audio into `DIR` when the server provides one",
					},
				},
				Action: summarizeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func summarizeAction(cliCtx *cli.Context) error {
	if cliCtx.NArg() != 1 {
		return cli.Exit("usage: pdfsum summarize [options] FILE", 2)
	}
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if cliCtx.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	serverURL := cfg.Client.ServerURL
	if s := cliCtx.String("server"); s != "" {
		serverURL = s
	}
	rate := cfg.Client.Rate
	if cliCtx.IsSet("rate") {
		rate = cliCtx.Float64("rate")
	}
	wpm := cfg.Client.SpeechWPM
	if cliCtx.IsSet("wpm") {
		wpm = cliCtx.Int("wpm")
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := newTerminal(os.Stdout, os.Stderr)
	c := client.New(serverURL, term, client.WithLogger(log), client.WithUploadField(cfg.Server.UploadField))

	if err := c.SelectFile(cliCtx.Args().First()); err != nil {
		return err
	}
	res, err := c.Submit(ctx)
	if err != nil {
		return cli.Exit("", 1)
	}

	if path := cliCtx.String("html"); path != "" {
		markup, err := c.RenderHTML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(markup), 0o644); err != nil {
			return fmt.Errorf("write html: %w", err)
		}
		term.Info(fmt.Sprintf("HTML written to %s", path))
	}
	if cliCtx.Bool("copy") {
		// the notifier already reported the outcome
		_ = c.Copy()
	}
	if dir := cliCtx.String("audio-out"); dir != "" {
		path, err := c.DownloadAudio(ctx, dir)
		switch {
		case errors.Is(err, client.ErrNoAudio):
			term.Info("Server returned no audio")
		case err != nil:
			term.Error(fmt.Sprintf("Audio download failed: %v", err))
		default:
			term.Success(fmt.Sprintf("Audio saved to %s", path))
		}
	}

	if !cliCtx.Bool("read-aloud") {
		term.PrintSummary(res.Summary)
		return nil
	}
	narrator := speech.NewNarrator(speech.PacedSynthesizer{WPM: wpm}, rate, term.Highlighter(res.Summary), log)
	narrator.Start(ctx, res.Summary)
	narrator.Wait()
	term.EndNarration()
	return nil
}
