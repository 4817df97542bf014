package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"shadowpay/core"
	"shadowpay/core/types"
	"shadowpay/crypto"
	"shadowpay/integrations/exports"
	"shadowpay/native/payrequest"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, err := s.ledger.Height()
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "Unavailable", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "height": height})
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer body.Close()
	var tx types.Transaction
	if err := json.NewDecoder(body).Decode(&tx); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, r, status, "InvalidTransaction", err.Error())
		return
	}
	receipt, err := s.ledger.Submit(r.Context(), &tx)
	if err != nil {
		s.writeError(w, r, statusFor(err), core.ErrorCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, receiptResult(receipt))
}

func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	rent := s.ledger.Rent()
	recordReserve, err := rent.MinimumBalance(payrequest.RecordSize)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	walletReserve, err := rent.MinimumBalance(0)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	height, err := s.ledger.Height()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ProgramResult{
		ProgramID:           crypto.FormatAddress(s.ledger.ProgramID()),
		DerivationTag:       payrequest.DerivationTag,
		MaxSeedLength:       payrequest.MaxSeedLength,
		RecordSize:          payrequest.RecordSize,
		RecordReserve:       recordReserve,
		WalletReserve:       walletReserve,
		LamportsPerByteYear: rent.LamportsPerByteYear,
		ExemptionYears:      rent.ExemptionYears,
		Height:              height,
		StateRoot:           s.ledger.StateRoot().Hex(),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	acc, err := s.ledger.Account(addr)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, accountResult(addr, acc))
}

func (s *Server) handleGetPayRequest(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	rec, err := s.ledger.PayRequest(addr)
	if err != nil {
		s.writeError(w, r, statusFor(err), core.ErrorCode(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, payRequestResult(rec))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "IndexDisabled", "event index is not configured")
		return
	}
	addr, ok := s.addressParam(w, r)
	if !ok {
		return
	}
	records, err := s.events.ListByAddress(r.Context(), crypto.FormatAddress(addr), parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "csv":
		data, checksum, err := exports.EventsCSV(records)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		s.writeExport(w, "text/csv", data, checksum)
		return
	case "jsonl":
		data, checksum, err := exports.EventsJSONL(records)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		s.writeExport(w, "application/x-ndjson", data, checksum)
		return
	case "parquet":
		data, checksum, err := exports.EventsParquet(records)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		s.writeExport(w, "application/vnd.apache.parquet", data, checksum)
		return
	}

	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		out = append(out, EventResult{
			ID:         rec.ID,
			Type:       evt.Type,
			Attributes: evt.Attributes,
			RecordedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "InvalidAddress", err.Error())
		return [32]byte{}, false
	}
	return addr, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeExport(w http.ResponseWriter, contentType string, data []byte, checksum string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if code == "" {
		code = "Internal"
	}
	s.writeJSON(w, status, ErrorResult{
		Code:      code,
		Message:   message,
		RequestID: chimw.GetReqID(r.Context()),
	})
}
