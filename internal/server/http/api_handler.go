package http

import (
	"net/http"
	"strconv"

	"wagate/internal/logging"
	"wagate/internal/server/app"
)

// APIHandler exposes the account, messaging and template services over REST.
type APIHandler struct {
	accounts  *app.AccountService
	messages  *app.MessageService
	bulk      *app.BulkService
	templates *app.TemplateService // optional
	logger    logging.Logger
}

func NewAPIHandler(accounts *app.AccountService, messages *app.MessageService, bulk *app.BulkService, templates *app.TemplateService) *APIHandler {
	return &APIHandler{
		accounts:  accounts,
		messages:  messages,
		bulk:      bulk,
		templates: templates,
		logger:    logging.NewComponentLogger("APIHandler"),
	}
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

// HandleCreateAccount serves POST /api/accounts.
func (h *APIHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.accounts.Create(r.Context(), req.AccountID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"account_id": req.AccountID})
}

// HandleActivateAccount serves POST /api/accounts/activate. It is the
// idempotent entry point: repeated calls for a live account are no-ops.
func (h *APIHandler) HandleActivateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	created, err := h.accounts.Activate(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"account_id": req.AccountID, "created": created})
}

// HandleLogoutAccount serves POST /api/accounts/logout. Logout always
// succeeds; was_active reports whether a session was actually torn down.
func (h *APIHandler) HandleLogoutAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	wasActive, err := h.accounts.Logout(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"account_id": req.AccountID, "was_active": wasActive})
}

// HandleListAccounts serves GET /api/accounts.
func (h *APIHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"accounts": accounts})
}

// HandleGetAccount serves GET /api/accounts/{id}.
func (h *APIHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request, accountID string) {
	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"account": account})
}

type sendMessageRequest struct {
	AccountID string     `json:"account_id"`
	Phone     string     `json:"phone"`
	Message   string     `json:"message"`
	Media     *app.Media `json:"media,omitempty"`
}

// HandleSendMessage serves POST /api/send-message.
func (h *APIHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.messages.Send(r.Context(), req.AccountID, req.Phone, req.Message, req.Media)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"phone": result.Phone, "message_id": result.MessageID})
}

type sendBulkRequest struct {
	AccountID string     `json:"account_id"`
	Phones    []string   `json:"phones"`
	Message   string     `json:"message"`
	Media     *app.Media `json:"media,omitempty"`
}

// HandleSendBulk serves POST /api/send-bulk.
func (h *APIHandler) HandleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req sendBulkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	results, err := h.bulk.Send(r.Context(), req.AccountID, req.Phones, req.Message, req.Media)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	delivered := 0
	for _, res := range results {
		if res.Error == "" {
			delivered++
		}
	}
	writeSuccess(w, h.logger, envelope{
		"total":     len(results),
		"delivered": delivered,
		"results":   results,
	})
}

// HandleListMessages serves GET /api/messages?account_id=...&limit=...
func (h *APIHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, h.logger, app.ValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.messages.History(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"messages": records})
}

type templateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// HandleCreateTemplate serves POST /api/templates.
func (h *APIHandler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tpl, err := h.templates.Create(r.Context(), req.Name, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"template": tpl})
}

// HandleListTemplates serves GET /api/templates.
func (h *APIHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"templates": templates})
}

// HandleGetTemplate serves GET /api/templates/{id}.
func (h *APIHandler) HandleGetTemplate(w http.ResponseWriter, r *http.Request, id int64) {
	tpl, err := h.templates.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"template": tpl})
}

// HandleUpdateTemplate serves PUT /api/templates/{id}.
func (h *APIHandler) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request, id int64) {
	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	tpl, err := h.templates.Update(r.Context(), id, req.Name, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, envelope{"template": tpl})
}

// HandleDeleteTemplate serves DELETE /api/templates/{id}.
func (h *APIHandler) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.templates.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, h.logger, nil)
}

// HandleHealthCheck serves GET /health.
func (h *APIHandler) HandleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, h.logger, envelope{"status": "ok"})
}
