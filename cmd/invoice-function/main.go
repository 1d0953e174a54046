// Command invoice-function serves the assistant's HTTP API as a Cloud
// Function. Configuration comes from INVOICE_CONFIG and the environment.
package main

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"go.uber.org/zap"

	"invoice_nft_receipt/app"
	"invoice_nft_receipt/config"
	"invoice_nft_receipt/logging"
	"invoice_nft_receipt/server"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("InvoiceAssistant", handleInvoice)
}

// main is required by the Go Functions Framework.
func main() {}

func handleInvoice(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		handler, initErr = build(context.Background())
	})
	if initErr != nil {
		zap.L().Error("invoice function initialization failed", zap.Error(initErr))
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	handler.ServeHTTP(w, r)
}

func build(ctx context.Context) (http.Handler, error) {
	path := os.Getenv("INVOICE_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging, false)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv, err := server.New(a.NewSession, a.Records, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return srv.Routes(), nil
}
