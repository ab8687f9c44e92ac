package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wagate/internal/broadcast"
	"wagate/internal/logging"
	"wagate/internal/server/app"
)

// RouterConfig carries the collaborators the REST surface is built from.
// Templates and the metrics gatherer are optional.
type RouterConfig struct {
	Accounts    *app.AccountService
	Messages    *app.MessageService
	Bulk        *app.BulkService
	Templates   *app.TemplateService
	Broadcaster *broadcast.Broadcaster

	AllowedOrigins []string
	Metrics        prometheus.Gatherer
}

// NewRouter builds the HTTP handler tree with all endpoints and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.NewComponentLogger("Router")

	apiHandler := NewAPIHandler(cfg.Accounts, cfg.Messages, cfg.Bulk, cfg.Templates)
	sseHandler := NewSSEHandler(cfg.Accounts, cfg.Broadcaster)

	mux := http.NewServeMux()

	// Account endpoints
	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			apiHandler.HandleListAccounts(w, r)
		case http.MethodPost:
			apiHandler.HandleCreateAccount(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/accounts/activate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		apiHandler.HandleActivateAccount(w, r)
	})
	mux.HandleFunc("/api/accounts/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		apiHandler.HandleLogoutAccount(w, r)
	})
	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")

		// /api/accounts/:id/events
		if accountID, ok := strings.CutSuffix(path, "/events"); ok && !strings.Contains(accountID, "/") {
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			sseHandler.HandleEventStream(w, r, accountID)
			return
		}

		// /api/accounts/:id
		if path != "" && !strings.Contains(path, "/") {
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			apiHandler.HandleGetAccount(w, r, path)
			return
		}

		http.Error(w, "Not found", http.StatusNotFound)
	})

	// Messaging endpoints
	mux.HandleFunc("/api/send-message", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		apiHandler.HandleSendMessage(w, r)
	})
	mux.HandleFunc("/api/send-bulk", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		apiHandler.HandleSendBulk(w, r)
	})
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		apiHandler.HandleListMessages(w, r)
	})

	// Template endpoints, present only when a template store is configured.
	if cfg.Templates != nil {
		mux.HandleFunc("/api/templates", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				apiHandler.HandleListTemplates(w, r)
			case http.MethodPost:
				apiHandler.HandleCreateTemplate(w, r)
			default:
				methodNotAllowed(w)
			}
		})
		mux.HandleFunc("/api/templates/", func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimPrefix(r.URL.Path, "/api/templates/")
			id, err := strconv.ParseInt(path, 10, 64)
			if err != nil {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			switch r.Method {
			case http.MethodGet:
				apiHandler.HandleGetTemplate(w, r, id)
			case http.MethodPut:
				apiHandler.HandleUpdateTemplate(w, r, id)
			case http.MethodDelete:
				apiHandler.HandleDeleteTemplate(w, r, id)
			default:
				methodNotAllowed(w)
			}
		})
	}

	mux.HandleFunc("/health", apiHandler.HandleHealthCheck)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(logger)(handler)
	handler = RecoveryMiddleware(logger)(handler)
	handler = CORSMiddleware(cfg.AllowedOrigins)(handler)
	return handler
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
