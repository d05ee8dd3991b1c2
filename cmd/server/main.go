package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/api"
	"github.com/vkropotko/fulfillment/internal/auth"
	"github.com/vkropotko/fulfillment/internal/config"
	"github.com/vkropotko/fulfillment/internal/db"
	"github.com/vkropotko/fulfillment/internal/events"
	"github.com/vkropotko/fulfillment/internal/inventory"
	"github.com/vkropotko/fulfillment/internal/ledger"
	"github.com/vkropotko/fulfillment/internal/models"
	"github.com/vkropotko/fulfillment/internal/order"
	"github.com/vkropotko/fulfillment/internal/payment"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// wsHub pushes order status transitions to connected websocket
// clients. It satisfies order.Publisher.
type wsHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     *zap.Logger
}

func newWSHub(log *zap.Logger) *wsHub {
	return &wsHub{clients: make(map[*wsClient]bool), log: log}
}

func (h *wsHub) OrderStatusChanged(ctx context.Context, ord *models.Order) {
	data, err := json.Marshal(events.OrderStatusEvent{
		OrderID:    ord.ID.String(),
		Status:     ord.Status,
		BuyerID:    ord.BuyerID,
		SellerID:   ord.SellerID,
		ProductID:  ord.ProductID,
		Quantity:   ord.Quantity,
		Amount:     ord.Amount(),
		OccurredAt: time.Now(),
	})
	if err != nil {
		h.log.Error("failed to marshal status update", zap.Error(err))
		return
	}

	h.mu.RLock()
	stale := make([]*wsClient, 0)
	for client := range h.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			delete(h.clients, client)
		}
		h.mu.Unlock()
	}
}

func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			break
		}
	}
}

// multiPublisher fans out status transitions to several publishers
type multiPublisher []order.Publisher

func (m multiPublisher) OrderStatusChanged(ctx context.Context, ord *models.Order) {
	for _, p := range m {
		p.OrderStatusChanged(ctx, ord)
	}
}

// Main entry point: sets up database, services, and HTTP server
func main() {
	ctx := context.Background()
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := db.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	hub := newWSHub(log.Named("ws"))
	publishers := multiPublisher{hub}
	if cfg.KafkaBroker != "" {
		kp := events.NewKafkaPublisher([]string{cfg.KafkaBroker}, cfg.OrderEventsTopic, log.Named("events"))
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	// Each domain service runs on top of the shared store; the
	// orchestrator and the payment engine reach their collaborators
	// through HTTP clients, so the compensation paths cross a real
	// wire even in a single-binary deployment.
	reservations := inventory.NewReservationManager(store, log.Named("inventory"))
	accounts := ledger.NewAccountLedger(store, log.Named("ledger"))
	payments := payment.NewEngine(store, api.NewLedgerClient(cfg.LedgerURL), log.Named("payment"))
	orchestrator := order.NewOrchestrator(store,
		api.NewInventoryClient(cfg.InventoryURL),
		api.NewPaymentClient(cfg.PaymentsURL),
		publishers,
		log.Named("order"))

	authService := auth.NewService(store, cfg.JWTSecret)
	handler := api.NewHandler(orchestrator, reservations, payments, accounts, authService, store, log.Named("api"))

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", hub.handleWebSocket)
	r.Mount("/", handler.Routes())

	log.Info("starting server", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
