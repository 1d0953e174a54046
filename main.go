package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"invoice_nft_receipt/app"
	"invoice_nft_receipt/config"
	"invoice_nft_receipt/extractor"
	"invoice_nft_receipt/logging"
	"invoice_nft_receipt/pinning"
	"invoice_nft_receipt/render"
	"invoice_nft_receipt/server"
	"invoice_nft_receipt/telegram"
)

var (
	configPath string
	verbose    bool
	listenAddr string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "invoice-assistant",
	Short: "Turn a description of work into an approved, pinned invoice record",
	Long: `invoice-assistant extracts invoice details from a free-text description,
lets you revise the draft in a few rounds and, once approved, pins the record
to IPFS so it can back an invoice NFT.

Run "invoice-assistant chat" for a terminal conversation or "serve" for the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Create one invoice interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return runChat(cmd.Context(), a.NewSession("cli"), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	RunE:  runTelegram,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Show whether a message allows the assistant to estimate missing details",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := strings.Join(args, " ")
		if extractor.MatchesKeyword(msg) {
			fmt.Fprintln(cmd.OutOrStdout(), "allow assumptions: true (keyword)")
			return nil
		}
		llm, err := app.BuildLLM(cmd.Context(), cfg.LLM)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLMTimeout())
		defer cancel()
		allow := extractor.NewClassifier(llm, logger).AllowAssumptions(ctx, msg)
		fmt.Fprintf(cmd.OutOrStdout(), "allow assumptions: %t (model)\n", allow)
		return nil
	},
}

var pinImageCmd = &cobra.Command{
	Use:   "pin-image <path>",
	Short: "Pin an image to IPFS and print the URI to use as invoice.image_uri",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := pinning.New(pinning.Config{
			JWT:        cfg.Pinata.JWT,
			UploadURL:  cfg.Pinata.UploadURL,
			GatewayURL: cfg.Pinata.GatewayURL,
			Network:    cfg.Pinata.Network,
		}, nil, logger)
		if err != nil {
			return err
		}
		cid, err := client.PinFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), client.GatewayURL(cid))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides server_addr)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(telegramCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(pinImageCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.NewSession, a.Records, logger)
	if err != nil {
		return err
	}
	listen := cfg.ServerAddr
	if listenAddr != "" {
		listen = listenAddr
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting web server", zap.String("addr", listen))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down web server")
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func runTelegram(cmd *cobra.Command, args []string) error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token missing; set telegram.token or TELEGRAM_BOT_TOKEN")
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	bot, err := telegram.New(api, a.NewSession, logger)
	if err != nil {
		return err
	}
	return bot.Run(cmd.Context())
}

// runChat drives one session from line-oriented input until it closes or
// the input ends.
func runChat(ctx context.Context, sess *extractor.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Describe the work you did (amount, payer, what was done). Type /cancel to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var (
			snap extractor.Snapshot
			err  error
		)
		switch {
		case line == "/cancel":
			snap, err = sess.Cancel()
		case line == "/retry":
			snap, err = sess.Retry(ctx)
		case sess.State().State == extractor.StateAwaitingInput:
			snap, err = sess.Start(ctx, line)
		default:
			snap, err = sess.Reply(ctx, line)
		}
		if err != nil {
			if errors.Is(err, extractor.ErrSessionClosed) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, render.Conversation(snap))
		if snap.Closed {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}
