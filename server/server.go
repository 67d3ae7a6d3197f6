package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ecadlabs/go-cardano-signer/cose"
	"github.com/ecadlabs/go-cardano-signer/crypt"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrKeyMismatch    = errors.New("key does not match the envelope address")
)

type NetworkStatus struct {
	Count int `json:"count"`
	Used  int `json:"used"`
}

type Lease struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

type PoppedKey struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

type PublicKeyInfo struct {
	PublicKey string `json:"public_key"`
	CoseKey   string `json:"cose_key"`
	Address   string `json:"address"`
}

type SignResult struct {
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// DataSignature is the CIP-30 signData result pair.
type DataSignature struct {
	Signature string `json:"signature"`
	Key       string `json:"key"`
}

type VerifyRequest struct {
	Signature string `json:"signature"`
	Key       string `json:"key"`
}

type Service interface {
	Pop(ctx context.Context, network string) (*PoppedKey, error)
	Status(ctx context.Context, network string) (*NetworkStatus, error)
	Lease(ctx context.Context, network string) (*Lease, error)
	Pub(ctx context.Context, network string, id uint64) (*PublicKeyInfo, error)
	Sign(ctx context.Context, network string, id uint64, r io.Reader) (*SignResult, error)
	SignData(ctx context.Context, network string, id uint64, r io.Reader) (*DataSignature, error)
	VerifyData(ctx context.Context, signature, key []byte) error
}

type Server struct {
	Service Service
}

func serviceError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ErrUnknownNetwork):
		status = http.StatusNotFound
	case errors.Is(err, ErrKeyMismatch),
		errors.Is(err, crypt.ErrIndexOverflow),
		errors.Is(err, cose.ErrMissingAlgorithm),
		errors.Is(err, cose.ErrUnsupportedAlgorithm),
		errors.Is(err, cose.ErrAddressFormat),
		errors.Is(err, cose.ErrNonKeyAddress),
		errors.Is(err, cose.ErrHashedPayload),
		errors.Is(err, cose.ErrSignatureLength),
		errors.Is(err, cose.ErrVerification):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	jsonError(w, err, status)
}

func (s *Server) popHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	key, err := s.Service.Pop(r.Context(), net)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, key)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	status, err := s.Service.Status(r.Context(), net)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, status)
}

func (s *Server) leaseHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	lease, err := s.Service.Lease(r.Context(), net)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, lease)
}

func (s *Server) pubHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	pk, err := s.Service.Pub(r.Context(), net, id)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, pk)
}

func (s *Server) signHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	sig, err := s.Service.Sign(r.Context(), net, id, r.Body)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, sig)
}

func (s *Server) signDataHandler(w http.ResponseWriter, r *http.Request) {
	net := mux.Vars(r)["net"]
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	sig, err := s.Service.SignData(r.Context(), net, id, r.Body)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, 200, sig)
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, err, http.StatusBadRequest)
		return
	}
	signature, err := hex.DecodeString(req.Signature)
	if err != nil {
		jsonError(w, err, http.StatusBadRequest)
		return
	}
	key, err := hex.DecodeString(req.Key)
	if err != nil {
		jsonError(w, err, http.StatusBadRequest)
		return
	}
	if err := s.Service.VerifyData(r.Context(), signature, key); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Methods("POST").Path("/verify").HandlerFunc(s.verifyHandler)
	r.Methods("POST").Path("/{net}").HandlerFunc(s.popHandler)
	r.Methods("GET").Path("/{net}").HandlerFunc(s.statusHandler)
	r.Methods("POST").Path("/{net}/ephemeral").HandlerFunc(s.leaseHandler)
	r.Methods("GET").Path("/{net}/ephemeral/{id:[0-9]+}").HandlerFunc(s.pubHandler)
	r.Methods("POST").Path("/{net}/ephemeral/{id:[0-9]+}/sign").HandlerFunc(s.signHandler)
	r.Methods("POST").Path("/{net}/ephemeral/{id:[0-9]+}/sign-data").HandlerFunc(s.signDataHandler)
	return r
}
