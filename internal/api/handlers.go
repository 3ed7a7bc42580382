package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unimail/unimail/internal/compose"
	"github.com/unimail/unimail/internal/gmail"
	"github.com/unimail/unimail/internal/unified"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// maxResultsParam parses the max_results query parameter with a default
// and an upper bound of 500.
func maxResultsParam(r *http.Request, def int) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("max_results"))
	if n < 1 {
		return def
	}
	if n > 500 {
		return 500
	}
	return n
}

// accountsParam turns an optional account query parameter into the
// filter slice the aggregator takes.
func accountsParam(r *http.Request) []string {
	if v := r.URL.Query().Get("account"); v != "" {
		return []string{v}
	}
	return nil
}

// handleGetMessages returns recent messages merged across accounts.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	opts := unified.GetOptions{
		MaxResults: maxResultsParam(r, 50),
		Accounts:   accountsParam(r),
	}
	if label := r.URL.Query().Get("label"); label != "" {
		opts.LabelIDs = []string{label}
	}

	msgs, err := s.mailbox.GetMessages(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to get messages", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve messages")
		return
	}
	if msgs == nil {
		msgs = []*gmail.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(msgs),
		"messages": msgs,
	})
}

// MessageDetail is a message plus its body content.
type MessageDetail struct {
	*gmail.Message
	Body string `json:"body"`
	HTML string `json:"html,omitempty"`
}

// handleGetMessage returns a single message with body content.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id := chi.URLParam(r, "id")

	msg, err := s.mailbox.GetMessage(r.Context(), id, account)
	if err != nil {
		s.writeLookupError(w, err, id, account)
		return
	}
	body, err := s.mailbox.GetFullMessage(r.Context(), id, account)
	if err != nil {
		s.writeLookupError(w, err, id, account)
		return
	}

	writeJSON(w, http.StatusOK, MessageDetail{
		Message: msg,
		Body:    body.Text,
		HTML:    body.HTML,
	})
}

// writeLookupError maps message lookup failures to HTTP statuses.
func (s *Server) writeLookupError(w http.ResponseWriter, err error, id, account string) {
	var notFound *gmail.NotFoundError
	var noAccount *unified.AccountNotFoundError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
	case errors.As(err, &noAccount):
		writeError(w, http.StatusNotFound, "account_not_found", "Account not found: "+account)
	default:
		s.logger.Error("failed to get message", "id", id, "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve message")
	}
}

// handleArchiveMessage archives a message.
func (s *Server) handleArchiveMessage(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id := chi.URLParam(r, "id")

	if err := s.mailbox.ArchiveMessage(r.Context(), id, account); err != nil {
		s.writeLookupError(w, err, id, account)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

// handleSearch searches messages across accounts.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}

	msgs, err := s.mailbox.Search(r.Context(), query, maxResultsParam(r, 20), accountsParam(r))
	if err != nil {
		s.logger.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}
	if msgs == nil {
		msgs = []*gmail.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":    query,
		"count":    len(msgs),
		"messages": msgs,
	})
}

// handleSummary returns the cross-account inbox summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.mailbox.Summary(r.Context())
	if err != nil {
		s.logger.Error("summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleListAccounts returns all connected accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.mailbox.ListAccounts()
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*unified.AccountInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// SendRequest is the POST /send request body.
type SendRequest struct {
	Account string   `json:"account"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Format  string   `json:"format,omitempty"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`

	Attachments []compose.Attachment `json:"attachments,omitempty"`
}

// handleSend sends an email from one of the connected accounts.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "Field 'account' is required")
		return
	}
	if len(req.To) == 0 {
		writeError(w, http.StatusBadRequest, "missing_recipients", "Field 'to' is required")
		return
	}

	id, err := s.mailbox.Send(r.Context(), req.Account, compose.Request{
		To:          req.To,
		Subject:     req.Subject,
		Body:        req.Body,
		Format:      compose.Format(req.Format),
		CC:          req.CC,
		BCC:         req.BCC,
		Attachments: req.Attachments,
	})
	if err != nil {
		var noAccount *unified.AccountNotFoundError
		if errors.As(err, &noAccount) {
			writeError(w, http.StatusNotFound, "account_not_found", "Account not found: "+req.Account)
			return
		}
		s.logger.Error("send failed", "account", req.Account, "error", err)
		writeError(w, http.StatusInternalServerError, "send_error", "Failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}
