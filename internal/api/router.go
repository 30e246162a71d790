package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"stealthpay/internal/handler"
	"stealthpay/internal/settlement"
)

// SetupRouter sets up router with handlers
func SetupRouter(queue *settlement.Queue, log *zap.Logger) http.Handler {
	settlementHandler := handler.NewSettlementHandler(queue, log)

	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	mux.HandleFunc("/healthz", settlementHandler.Healthz)
	mux.HandleFunc("/settlements", settlementHandler.Submit)

	return mux
}
