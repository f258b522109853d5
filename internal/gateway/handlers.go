package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"warranchain/go-backend/internal/ledger"
	"warranchain/go-backend/internal/sponsor"
	"warranchain/go-backend/internal/zklogin"
	"warranchain/go-backend/pkg/models"
)

// minWalletMist is the balance below which a wallet cannot cover its own
// gas and the sponsored path should be used instead.
const minWalletMist = 10_000_000

const msgMissingFields = "Missing required fields"

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleGetSalt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT string `json:"jwt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JWT == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	tok, err := s.verifier.Verify(r.Context(), req.JWT)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	salt, err := s.salts.SaltFor(tok.Subject)
	if err != nil {
		s.log.Error("salt lookup failed", "err", err, "sub", tok.Subject)
		writeError(w, http.StatusInternalServerError, "Salt service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"salt": salt})
}

func (s *Server) handleLatestEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := s.latestEpoch(r.Context())
	if err != nil {
		s.log.Error("epoch fetch failed", "err", err)
		writeError(w, http.StatusBadGateway, "Epoch unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"epoch": epoch})
}

// identityAddress verifies the token and resolves the caller's derived
// address. Shared by every handler that acts on behalf of a logged-in user.
func (s *Server) identityAddress(r *http.Request, rawJWT string) (VerifiedToken, string, error) {
	tok, err := s.verifier.Verify(r.Context(), rawJWT)
	if err != nil {
		return VerifiedToken{}, "", err
	}
	salt, err := s.salts.SaltFor(tok.Subject)
	if err != nil {
		return VerifiedToken{}, "", err
	}
	address, err := zklogin.DeriveAddress(r.Context(), zklogin.LocalSDK{}, zklogin.AddressRequest{
		RawToken: rawJWT,
		Issuer:   tok.Issuer,
		Subject:  tok.Subject,
		Audience: tok.Audience,
		Salt:     salt,
	})
	if err != nil {
		return VerifiedToken{}, "", err
	}
	return tok, address, nil
}

func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT string `json:"jwt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JWT == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	_, address, err := s.identityAddress(r, req.JWT)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.log.Error("address resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Address resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

// handleMintSponsored mints a warranty to the caller's derived address with
// the sponsor paying gas. Field validation runs before any token or ledger
// work so malformed requests never reach either.
func (s *Server) handleMintSponsored(w http.ResponseWriter, r *http.Request) {
	var req models.MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Complete() {
		s.metrics.Mints.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	_, recipient, err := s.identityAddress(r, req.JWT)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			s.metrics.Mints.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.metrics.Mints.WithLabelValues("error").Inc()
		s.log.Error("mint address resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Address resolution failed")
		return
	}

	kind, err := ledger.MintWarrantyKind(s.packageID, req, recipient)
	if err != nil {
		s.metrics.Mints.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}
	res, err := s.sponsor.ExecuteDirect(r.Context(), kind)
	if err != nil {
		s.metrics.Mints.WithLabelValues("error").Inc()
		s.log.Error("sponsored mint failed", "err", err, "sender", recipient)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Mint submission failed: %v", err))
		return
	}
	s.metrics.Mints.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, models.MintResult{
		Success:       res.Succeeded(),
		Digest:        res.Digest,
		Effects:       res.Effects,
		WalletAddress: recipient,
	})
}

// handleMintPrepare builds a sponsored mint whose sender is the caller; the
// caller countersigns the returned bytes and submits via sign-transaction.
func (s *Server) handleMintPrepare(w http.ResponseWriter, r *http.Request) {
	var req models.MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Complete() {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	_, sender, err := s.identityAddress(r, req.JWT)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.log.Error("prepare address resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Address resolution failed")
		return
	}

	kind, err := ledger.MintWarrantyKind(s.packageID, req, sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}
	prep, err := s.sponsor.Prepare(kind, sender)
	if err != nil {
		s.log.Error("prepare failed", "err", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "Prepare failed")
		return
	}
	writePrepared(w, prep)
}

func writePrepared(w http.ResponseWriter, prep sponsor.Prepared) {
	writeJSON(w, http.StatusOK, map[string]string{
		"txBytes":          base64.StdEncoding.EncodeToString(prep.Bytes),
		"digest":           prep.Digest,
		"sponsorSignature": prep.SponsorSignature,
	})
}

// handleTransferWarranty builds a sponsored ownership transfer with the
// caller as sender. Only the owner's countersignature can move the NFT, so
// the bytes come back for signing rather than executing directly.
func (s *Server) handleTransferWarranty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT       string `json:"jwt"`
		ObjectID  string `json:"objectId"`
		Recipient string `json:"recipient"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JWT == "" || req.ObjectID == "" || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	_, sender, err := s.identityAddress(r, req.JWT)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.log.Error("transfer address resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Address resolution failed")
		return
	}
	kind, err := ledger.TransferWarrantyKind(s.packageID, req.ObjectID, req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}
	prep, err := s.sponsor.Prepare(kind, sender)
	if err != nil {
		s.log.Error("transfer prepare failed", "err", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "Prepare failed")
		return
	}
	writePrepared(w, prep)
}

// handleAddRepairEvent builds a sponsored repair record for the caller's
// warranty, returned for countersigning like the transfer path.
func (s *Server) handleAddRepairEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT         string `json:"jwt"`
		ObjectID    string `json:"objectId"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JWT == "" || req.ObjectID == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	_, sender, err := s.identityAddress(r, req.JWT)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.log.Error("repair address resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Address resolution failed")
		return
	}
	kind := ledger.AddRepairEventKind(s.packageID, req.ObjectID, req.Description)
	prep, err := s.sponsor.Prepare(kind, sender)
	if err != nil {
		s.log.Error("repair prepare failed", "err", err, "sender", sender)
		writeError(w, http.StatusInternalServerError, "Prepare failed")
		return
	}
	writePrepared(w, prep)
}

// handleSignTransaction is the server-side proof path: it verifies the
// caller's token and relays the proof request to the prover, which retries
// internally before giving up.
func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JWT                        string `json:"jwt"`
		Salt                       string `json:"salt"`
		ExtendedEphemeralPublicKey string `json:"ephemeralPublicKey"`
		MaxEpoch                   uint64 `json:"maxEpoch"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.JWT == "" || req.Salt == "" || req.ExtendedEphemeralPublicKey == "" || req.MaxEpoch == 0 {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if s.prover == nil {
		writeError(w, http.StatusNotImplemented, "Proof service not configured")
		return
	}
	if _, err := s.verifier.Verify(r.Context(), req.JWT); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	proof, err := s.prover.FetchProof(r.Context(), zklogin.ProofRequest{
		JWT:                        req.JWT,
		Salt:                       req.Salt,
		ExtendedEphemeralPublicKey: req.ExtendedEphemeralPublicKey,
		MaxEpoch:                   req.MaxEpoch,
	})
	if err != nil {
		s.metrics.Submissions.WithLabelValues("proof_error").Inc()
		s.log.Error("proof fetch failed", "err", err)
		writeError(w, http.StatusBadGateway, "Proof generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proof": proof})
}

// handleExecuteTransaction submits user-countersigned bytes. Submission is
// idempotent by digest and never retried on failure.
func (s *Server) handleExecuteTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxBytes   string `json:"txBytes"`
		Signature string `json:"signature"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TxBytes == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	txBytes, err := base64.StdEncoding.DecodeString(req.TxBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction bytes")
		return
	}
	res, err := s.sponsor.Submit(r.Context(), txBytes, req.Signature)
	if err != nil {
		s.metrics.Submissions.WithLabelValues("error").Inc()
		s.log.Error("submission failed", "err", err, "digest", ledger.Digest(txBytes))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Submission failed: %v", err))
		return
	}
	s.metrics.Submissions.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := ledger.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	bal, err := s.ledger.Balance(r.Context(), addr, ledger.SuiCoinType)
	if err != nil {
		s.log.Error("balance fetch failed", "err", err, "owner", addr)
		writeError(w, http.StatusBadGateway, "Balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance": bal,
		"sui":     mistToSui(bal.TotalBalance),
	})
}

func (s *Server) handleGetAllBalances(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := ledger.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	balances, err := s.ledger.AllBalances(r.Context(), addr)
	if err != nil {
		s.log.Error("all balances fetch failed", "err", err, "owner", addr)
		writeError(w, http.StatusBadGateway, "Balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (s *Server) handleCheckWalletBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := ledger.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	bal, err := s.ledger.Balance(r.Context(), addr, ledger.SuiCoinType)
	if err != nil {
		s.log.Error("balance fetch failed", "err", err, "owner", addr)
		writeError(w, http.StatusBadGateway, "Balance unavailable")
		return
	}
	total, ok := new(big.Int).SetString(bal.TotalBalance, 10)
	if !ok {
		total = big.NewInt(0)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sufficient":  total.Cmp(big.NewInt(minWalletMist)) >= 0,
		"balanceMist": bal.TotalBalance,
	})
}

func (s *Server) handleGetOwnedObjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := ledger.NormalizeAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	objects, err := s.ledger.OwnedObjects(r.Context(), addr, ledger.WarrantyStructType(s.packageID))
	if err != nil {
		s.log.Error("owned objects fetch failed", "err", err, "owner", addr)
		writeError(w, http.StatusBadGateway, "Object query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sponsor": s.sponsor.Address(),
		"salts":   s.salts.Len(),
	})
}

func mistToSui(mist string) string {
	v, ok := new(big.Int).SetString(mist, 10)
	if !ok {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(v, big.NewInt(ledger.MistPerSui), new(big.Int))
	return fmt.Sprintf("%s.%09d", quo.String(), rem)
}
