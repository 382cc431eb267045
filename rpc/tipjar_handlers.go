package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"tipchain/crypto"
	"tipchain/native/tipjar"
)

const (
	codeTipJarInvalidParams     = -32061
	codeTipJarNotFound          = -32062
	codeTipJarForbidden         = -32063
	codeTipJarConflict          = -32064
	codeTipJarInactive          = -32065
	codeTipJarInsufficientFunds = -32066
	codeTipJarTransferFailed    = -32067
	codeTipJarInternal          = -32068
)

type jarRefParams struct {
	Owner string `json:"owner"`
	JarID string `json:"jarId"`
}

type initializeParams struct {
	jarRefParams
	Description string `json:"description"`
	Category    string `json:"category"`
	Goal        string `json:"goal,omitempty"`
	Private     bool   `json:"private,omitempty"`
}

type sendTipParams struct {
	jarRefParams
	Sender     string `json:"sender"`
	Amount     string `json:"amount"`
	Visibility string `json:"visibility,omitempty"`
	Memo       string `json:"memo,omitempty"`
}

type callerParams struct {
	jarRefParams
	Caller string `json:"caller"`
}

type setActiveParams struct {
	callerParams
	Active bool `json:"active"`
}

type updateParams struct {
	callerParams
	Description string `json:"description"`
	Category    string `json:"category"`
	Goal        string `json:"goal,omitempty"`
	Private     bool   `json:"private,omitempty"`
}

type withdrawParams struct {
	callerParams
	Amount string `json:"amount"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type initializeResult struct {
	JarID     string `json:"jarId"`
	CreatedAt int64  `json:"createdAt"`
}

type sendTipResult struct {
	Amount     string `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
	Visibility string `json:"visibility"`
}

type statsResult struct {
	TipCount      uint64 `json:"tipCount"`
	TotalReceived string `json:"totalReceived"`
	Balance       string `json:"balance"`
	Goal          string `json:"goal"`
	GoalReached   bool   `json:"goalReached"`
	Active        bool   `json:"active"`
	Private       bool   `json:"private"`
}

type tipResult struct {
	Sender     string `json:"sender,omitempty"`
	Amount     string `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
	Visibility string `json:"visibility"`
	Memo       string `json:"memo,omitempty"`
}

type eventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBech32Address(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	return amount, nil
}

func parseOptionalGoal(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	goal, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("goal must be a base-10 integer")
	}
	if goal.Sign() < 0 {
		return nil, fmt.Errorf("goal must not be negative")
	}
	return goal, nil
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// writeTipJarError maps engine sentinels onto JSON-RPC error codes.
func writeTipJarError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, tipjar.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeTipJarNotFound, "not_found", err.Error())
	case errors.Is(err, tipjar.ErrAlreadyExists):
		writeError(w, http.StatusConflict, id, codeTipJarConflict, "already_exists", err.Error())
	case errors.Is(err, tipjar.ErrUnauthorized), errors.Is(err, tipjar.ErrJarPrivate):
		writeError(w, http.StatusForbidden, id, codeTipJarForbidden, "forbidden", err.Error())
	case errors.Is(err, tipjar.ErrJarInactive):
		writeError(w, http.StatusConflict, id, codeTipJarInactive, "jar_inactive", err.Error())
	case errors.Is(err, tipjar.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, id, codeTipJarInsufficientFunds, "insufficient_funds", err.Error())
	case errors.Is(err, tipjar.ErrTransferFailed):
		writeError(w, http.StatusConflict, id, codeTipJarTransferFailed, "transfer_failed", err.Error())
	case errors.Is(err, tipjar.ErrInvalidAmount),
		errors.Is(err, tipjar.ErrInvalidJarID),
		errors.Is(err, tipjar.ErrInvalidMetadata),
		errors.Is(err, tipjar.ErrMemoTooLong),
		errors.Is(err, tipjar.ErrInvalidVisibility):
		writeError(w, http.StatusBadRequest, id, codeTipJarInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeTipJarInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleTipJarInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params initializeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	goal, err := parseOptionalGoal(params.Goal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	jar, err := s.node.TipJarInitialize(owner, params.JarID, params.Description, params.Category, goal, params.Private)
	if err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, initializeResult{JarID: jar.JarID, CreatedAt: jar.CreatedAt})
}

func (s *Server) handleTipJarSendTip(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.allowTip(requestSource(r)) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "tip rate limit exceeded", nil)
		return
	}
	var params sendTipParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseBech32Address(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	visibility, err := tipjar.ParseVisibility(params.Visibility)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	tip, err := s.node.TipJarSendTip(owner, params.JarID, sender, amount, visibility, params.Memo)
	if err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, sendTipResult{
		Amount:     formatBig(tip.Amount),
		Timestamp:  tip.Timestamp,
		Visibility: tip.Visibility.String(),
	})
}

func (s *Server) handleTipJarGetStats(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params jarRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	stats, err := s.node.TipJarStats(owner, params.JarID)
	if err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	goalReached := stats.Goal.Sign() > 0 && stats.TotalReceived.Cmp(stats.Goal) >= 0
	writeResult(w, req.ID, statsResult{
		TipCount:      stats.TipCount,
		TotalReceived: formatBig(stats.TotalReceived),
		Balance:       formatBig(stats.Balance),
		Goal:          formatBig(stats.Goal),
		GoalReached:   goalReached,
		Active:        stats.Active,
		Private:       stats.Private,
	})
}

func (s *Server) handleTipJarListTips(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params jarRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	tips, err := s.node.TipJarListTips(owner, params.JarID)
	if err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	out := make([]tipResult, len(tips))
	for i := range tips {
		entry := tipResult{
			Amount:     formatBig(tips[i].Amount),
			Timestamp:  tips[i].Timestamp,
			Visibility: tips[i].Visibility.String(),
			Memo:       tips[i].Memo,
		}
		// Private tips keep their sender out of listings.
		if tips[i].Visibility == tipjar.VisibilityPublic {
			entry.Sender = crypto.NewAddress(crypto.TipPrefix, tips[i].Sender[:]).String()
		}
		out[i] = entry
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleTipJarClearHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, params, ok := s.decodeCallerParams(w, r, req)
	if !ok {
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TipJarClearHistory(owner, params.JarID, caller); err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTipJarSetActive(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params setActiveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TipJarSetActive(owner, params.JarID, caller, params.Active); err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTipJarUpdate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params updateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	goal, err := parseOptionalGoal(params.Goal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TipJarUpdate(owner, params.JarID, caller, params.Description, params.Category, goal, params.Private); err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTipJarWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params withdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TipJarWithdraw(owner, params.JarID, caller, amount); err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTipJarClose(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, params, ok := s.decodeCallerParams(w, r, req)
	if !ok {
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TipJarClose(owner, params.JarID, caller); err != nil {
		writeTipJarError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleTipJarListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	params := listEventsParams{Prefix: "tipjar."}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	recorded := s.node.Events(params.Prefix, params.Limit)
	out := make([]eventResult, len(recorded))
	for i, rec := range recorded {
		out[i] = eventResult{Sequence: rec.Sequence, Type: rec.Type, Attributes: rec.Event.Attributes}
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{Address: params.Address, Balance: formatBig(balance)})
}

// decodeCallerParams handles the shared auth + decode + caller parse steps
// for the owner-gated methods carrying only a caller reference.
func (s *Server) decodeCallerParams(w http.ResponseWriter, r *http.Request, req *RPCRequest) ([20]byte, callerParams, bool) {
	var zero [20]byte
	var params callerParams
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return zero, params, false
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return zero, params, false
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeTipJarInvalidParams, "invalid_params", err.Error())
		return zero, params, false
	}
	return caller, params, true
}
