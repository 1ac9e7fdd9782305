package httpapi

import (
	"net/http"
	"time"

	"github.com/Marcusng88/FraudGuard/shared/logging"
	"github.com/Marcusng88/FraudGuard/shared/metrics"
	"github.com/Marcusng88/FraudGuard/shared/recovery"
	"github.com/Marcusng88/FraudGuard/shared/timeout"
)

// NewRouter wires every spec §6 endpoint onto a stdlib ServeMux using
// Go 1.22's method+path patterns, then wraps the whole mux in the same
// outermost-to-innermost middleware order the teacher's API gateway
// uses: correlation IDs, then panic recovery, then metrics, then a
// hard request timeout.
func NewRouter(h *Handlers, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/nft/create", h.CreateNFT)
	mux.HandleFunc("PUT /api/nft/{id}/confirm-mint", h.ConfirmMint)
	mux.HandleFunc("PUT /api/nft/{id}/list", h.List)
	mux.HandleFunc("PUT /api/nft/{id}/unlist", h.Unlist)
	mux.HandleFunc("PUT /api/nft/{id}/update-listing", h.UpdateListing)
	mux.HandleFunc("POST /api/nft/bulk-list", h.BulkList)
	mux.HandleFunc("POST /api/nft/{id}/auto-relist", h.AutoRelist)
	mux.HandleFunc("GET /api/nft/{id}", h.GetNFT)
	mux.HandleFunc("GET /api/nft/{id}/analysis", h.GetAnalysis)
	mux.HandleFunc("GET /api/nft/{id}/similar", h.GetSimilar)
	mux.HandleFunc("GET /api/nft/{id}/listing-analytics", h.GetListingAnalytics)
	mux.HandleFunc("GET /api/nft/{id}/listing-history", h.GetListingHistory)
	mux.HandleFunc("GET /api/nft/user/{wallet}", h.GetByWallet)
	mux.HandleFunc("GET /api/marketplace/nfts", h.ListMarketplace)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", metrics.Handler())

	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	panicHandler := recovery.NewPanicHandler(recovery.WithStackLogging(true))

	var handler http.Handler = mux
	handler = timeout.TimeoutMiddleware(requestTimeout)(handler)
	if m != nil {
		handler = m.HTTPMiddleware(handler)
	}
	handler = panicHandler.HTTPMiddleware(handler)
	handler = logging.CorrelationMiddleware(handler)
	return handler
}
