package api

import (
	"net/http"
	"strconv"

	sdk "github.com/gagliardetto/solana-go"

	"wallet-fleet/internal/domain"
)

const (
	defaultPage     = 1
	defaultPageSize = 999
)

type transferView struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  string `json:"lamports"`
	Signature string `json:"signature,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func viewTransfers(results []domain.TransferResult) []transferView {
	out := make([]transferView, len(results))
	for i, r := range results {
		out[i] = transferView{
			From:      r.From.String(),
			To:        r.To.String(),
			Lamports:  strconv.FormatUint(r.Lamports, 10),
			Signature: r.Signature,
			Status:    string(r.Status),
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

type jobView struct {
	ID                   string `json:"id"`
	FundingWalletPubkey  string `json:"funding_wallet_pubkey"`
	TotalFundingLamports string `json:"total_funding_lamports"`
	LamportsPerWallet    string `json:"lamports_per_wallet"`
	RentExemptLamports   string `json:"rent_exempt_lamports"`
	Targets              int    `json:"targets"`
	CreatedAt            int64  `json:"created_at"`
}

func viewJob(j domain.FundingJob) jobView {
	return jobView{
		ID:                   j.ID,
		FundingWalletPubkey:  j.DistributionAddress().String(),
		TotalFundingLamports: j.TotalRequired.String(),
		LamportsPerWallet:    strconv.FormatUint(j.LamportsPerTarget, 10),
		RentExemptLamports:   strconv.FormatUint(j.RentExemptMinimum, 10),
		Targets:              len(j.Targets),
		CreatedAt:            j.CreatedAt,
	}
}

func parseLamports(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, domain.Usagef("invalid lamports %q", s)
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createWalletsRequest struct {
	Count int `json:"count" validate:"min=1,max=10000"`
}

type createWalletsResponse struct {
	Message string   `json:"message"`
	Pubkeys []string `json:"pubkeys"`
}

func (s *Server) handleCreateWallets(w http.ResponseWriter, r *http.Request) {
	var req createWalletsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}

	created, err := s.wallets.Create(r.Context(), req.Count)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	pubkeys := make([]string, len(created))
	for i, wal := range created {
		pubkeys[i] = wal.Address().String()
	}
	writeJSON(w, http.StatusOK, createWalletsResponse{
		Message: "Created " + strconv.Itoa(len(created)) + " wallets",
		Pubkeys: pubkeys,
	})
}

type walletView struct {
	Index       uint64 `json:"index"`
	Pubkey      string `json:"pubkey"`
	SolLamports string `json:"sol_lamports"`
}

type listWalletsResponse struct {
	Message string       `json:"message"`
	Wallets []walletView `json:"wallets"`
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Usagef("invalid %s %q", name, raw)
	}
	return v, nil
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	balances, err := s.wallets.ListWithBalances(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	views := make([]walletView, len(balances))
	for i, b := range balances {
		views[i] = walletView{
			Index:       b.Index,
			Pubkey:      b.Address,
			SolLamports: strconv.FormatUint(b.Lamports, 10),
		}
	}
	writeJSON(w, http.StatusOK, listWalletsResponse{Message: "Retrieved wallets.", Wallets: views})
}

type initiateFundingRequest struct {
	LamportsPerWallet string `json:"lamports_per_wallet" validate:"required,number"`
}

type jobResponse struct {
	Message string   `json:"message"`
	Job     *jobView `json:"job,omitempty"`
}

func (s *Server) handleInitiateFunding(w http.ResponseWriter, r *http.Request) {
	var req initiateFundingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	lamports, err := parseLamports(req.LamportsPerWallet)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	wallets, err := s.wallets.All(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if len(wallets) == 0 {
		writeError(w, r, domain.Usagef("there are 0 wallets"), nil)
		return
	}

	targets := make([]sdk.PublicKey, len(wallets))
	for i, wal := range wallets {
		targets[i] = wal.Address()
	}

	job, err := s.jobs.InitiateFunding(r.Context(), targets, lamports)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	view := viewJob(job)
	writeJSON(w, http.StatusOK, jobResponse{Message: "Initiated funding.", Job: &view})
}

type completeFundingResponse struct {
	Message   string         `json:"message"`
	JobID     string         `json:"job_id"`
	Failed    int            `json:"failed"`
	Transfers []transferView `json:"transfers"`
}

func (s *Server) handleCompleteFunding(w http.ResponseWriter, r *http.Request) {
	report, err := s.jobs.CompleteFunding(r.Context())
	if err != nil {
		var transfers []transferView
		if report != nil {
			transfers = viewTransfers(report.Results)
		}
		writeError(w, r, err, transfers)
		return
	}

	writeJSON(w, http.StatusOK, completeFundingResponse{
		Message:   "Completed funding.",
		JobID:     report.Job.ID,
		Failed:    report.Failed(),
		Transfers: viewTransfers(report.Results),
	})
}

type fundingStatusResponse struct {
	State string   `json:"state"`
	Job   *jobView `json:"job,omitempty"`
}

func (s *Server) handleFundingStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.jobs.FundingStatus()

	resp := fundingStatusResponse{State: string(st.State)}
	if st.Job != nil {
		view := viewJob(*st.Job)
		resp.Job = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAbortFunding(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.AbortFunding(r.Context()); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Message: "Aborted funding."})
}

type collectRequest struct {
	Lamports      string   `json:"lamports" validate:"required,number"`
	SourcePubkeys []string `json:"source_pubkeys" validate:"required,min=1,dive,solpubkey"`
	Destination   string   `json:"destination" validate:"required,solpubkey"`
}

type collectResponse struct {
	Message   string         `json:"message"`
	JobID     string         `json:"job_id"`
	PerSource string         `json:"per_source_lamports"`
	Transfers []transferView `json:"transfers"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	lamports, err := parseLamports(req.Lamports)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	destination, err := sdk.PublicKeyFromBase58(req.Destination)
	if err != nil {
		writeError(w, r, domain.Usagef("destination is not a valid public key"), nil)
		return
	}

	sources, err := s.wallets.LookupByAddress(r.Context(), req.SourcePubkeys)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	report, err := s.jobs.Collect(r.Context(), sources, destination, lamports)
	if err != nil {
		var transfers []transferView
		if report != nil {
			transfers = viewTransfers(report.Results)
		}
		writeError(w, r, err, transfers)
		return
	}

	writeJSON(w, http.StatusOK, collectResponse{
		Message:   "Collected successfully.",
		JobID:     report.Job.ID,
		PerSource: strconv.FormatUint(report.Job.PerSource, 10),
		Transfers: viewTransfers(report.Results),
	})
}
