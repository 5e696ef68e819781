// Package v1 defines the EscrowService HTTP API surface.
// The types and registration helpers follow the shape of Kratos generated
// transport code but are hand-maintained; there is no proto IDL in this tree.
package v1

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names used by middleware for route identification.
const (
	OperationEscrowServiceInitProgram         = "/api.v1.EscrowService/InitProgram"
	OperationEscrowServiceLockFunds           = "/api.v1.EscrowService/LockFunds"
	OperationEscrowServiceSinglePayout        = "/api.v1.EscrowService/SinglePayout"
	OperationEscrowServiceBatchPayout         = "/api.v1.EscrowService/BatchPayout"
	OperationEscrowServiceLockBounty          = "/api.v1.EscrowService/LockBounty"
	OperationEscrowServiceReleaseFunds        = "/api.v1.EscrowService/ReleaseFunds"
	OperationEscrowServiceGetProgramInfo      = "/api.v1.EscrowService/GetProgramInfo"
	OperationEscrowServiceGetBalance          = "/api.v1.EscrowService/GetBalance"
	OperationEscrowServiceGetNonce            = "/api.v1.EscrowService/GetNonce"
	OperationEscrowServiceConfigureThresholds = "/api.v1.EscrowService/ConfigureThresholds"
	OperationEscrowServiceGetWindowMetrics    = "/api.v1.EscrowService/GetWindowMetrics"
)

// InitProgramRequest creates an escrow program.
type InitProgramRequest struct {
	ProgramId        string `json:"program_id"`
	AuthorizedSigner string `json:"authorized_signer"`
}

type InitProgramReply struct {
	Program *Program `json:"program"`
}

// LockFundsRequest adds funds to a program's pool.
type LockFundsRequest struct {
	ProgramId string `json:"program_id"`
	Amount    int64  `json:"amount"`
}

type LockFundsReply struct {
	TotalFunds       int64 `json:"total_funds"`
	RemainingBalance int64 `json:"remaining_balance"`
}

// SinglePayoutRequest executes one payout. Signer and Signature authenticate
// the caller; Nonce must equal the signer's current expected nonce.
type SinglePayoutRequest struct {
	ProgramId string `json:"program_id"`
	Signer    string `json:"signer"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type SinglePayoutReply struct {
	RemainingBalance int64  `json:"remaining_balance"`
	NextNonce        uint64 `json:"next_nonce"`
}

// BatchPayoutRequest executes several payouts under one nonce. Recipients and
// Amounts are parallel arrays and must have equal length.
type BatchPayoutRequest struct {
	ProgramId  string   `json:"program_id"`
	Signer     string   `json:"signer"`
	Recipients []string `json:"recipients"`
	Amounts    []int64  `json:"amounts"`
	Nonce      uint64   `json:"nonce"`
	Signature  string   `json:"signature"`
}

type BatchPayoutReply struct {
	RemainingBalance int64  `json:"remaining_balance"`
	NextNonce        uint64 `json:"next_nonce"`
	PayoutCount      int32  `json:"payout_count"`
}

// LockBountyRequest creates a named locked bucket under a program.
type LockBountyRequest struct {
	ProgramId string `json:"program_id"`
	BountyId  string `json:"bounty_id"`
	Amount    int64  `json:"amount"`
}

type LockBountyReply struct {
	Bounty *Bounty `json:"bounty"`
}

// ReleaseFundsRequest releases a locked bounty bucket to a recipient.
type ReleaseFundsRequest struct {
	ProgramId string `json:"program_id"`
	BountyId  string `json:"bounty_id"`
	Signer    string `json:"signer"`
	Recipient string `json:"recipient"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type ReleaseFundsReply struct {
	Amount           int64  `json:"amount"`
	RemainingBalance int64  `json:"remaining_balance"`
	NextNonce        uint64 `json:"next_nonce"`
}

type GetProgramInfoRequest struct {
	ProgramId string `json:"program_id"`
}

type GetProgramInfoReply struct {
	Program *Program `json:"program"`
}

type GetBalanceRequest struct {
	ProgramId string `json:"program_id"`
}

type GetBalanceReply struct {
	RemainingBalance int64 `json:"remaining_balance"`
}

type GetNonceRequest struct {
	Signer string `json:"signer"`
}

type GetNonceReply struct {
	Signer string `json:"signer"`
	Nonce  uint64 `json:"nonce"`
}

// ConfigureThresholdsRequest replaces the circuit breaker configuration.
// All fields are required; invalid values reject the whole request.
type ConfigureThresholdsRequest struct {
	FailureRateThreshold   uint32 `json:"failure_rate_threshold"`
	OutflowVolumeThreshold int64  `json:"outflow_volume_threshold"`
	MaxSinglePayout        int64  `json:"max_single_payout"`
	TimeWindowSecs         uint64 `json:"time_window_secs"`
	CooldownPeriodSecs     uint64 `json:"cooldown_period_secs"`
	CooldownMultiplier     uint32 `json:"cooldown_multiplier"`
}

type ConfigureThresholdsReply struct {
	Success bool `json:"success"`
}

type GetWindowMetricsRequest struct{}

type GetWindowMetricsReply struct {
	CurrentWindow     *WindowMetrics `json:"current_window"`
	PreviousWindow    *WindowMetrics `json:"previous_window"`
	CooldownActive    bool           `json:"cooldown_active"`
	CooldownEnd       int64          `json:"cooldown_end,omitempty"`
	CooldownRemaining int64          `json:"cooldown_remaining_secs,omitempty"`
}

// Program is the wire representation of an escrow program ledger.
type Program struct {
	ProgramId        string `json:"program_id"`
	AuthorizedSigner string `json:"authorized_signer"`
	TotalFunds       int64  `json:"total_funds"`
	RemainingBalance int64  `json:"remaining_balance"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

// Bounty is the wire representation of a locked bounty bucket.
type Bounty struct {
	ProgramId  string `json:"program_id"`
	BountyId   string `json:"bounty_id"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	ReleasedTo string `json:"released_to,omitempty"`
	ReleasedAt int64  `json:"released_at,omitempty"`
}

// WindowMetrics is the wire representation of one monitoring window.
type WindowMetrics struct {
	WindowStart      int64  `json:"window_start"`
	FailureCount     uint32 `json:"failure_count"`
	SuccessCount     uint32 `json:"success_count"`
	TotalOutflow     int64  `json:"total_outflow"`
	MaxSingleOutflow int64  `json:"max_single_outflow"`
	BreachCount      uint32 `json:"breach_count"`
}

// EscrowServiceHTTPServer is implemented by the service layer.
type EscrowServiceHTTPServer interface {
	InitProgram(context.Context, *InitProgramRequest) (*InitProgramReply, error)
	LockFunds(context.Context, *LockFundsRequest) (*LockFundsReply, error)
	SinglePayout(context.Context, *SinglePayoutRequest) (*SinglePayoutReply, error)
	BatchPayout(context.Context, *BatchPayoutRequest) (*BatchPayoutReply, error)
	LockBounty(context.Context, *LockBountyRequest) (*LockBountyReply, error)
	ReleaseFunds(context.Context, *ReleaseFundsRequest) (*ReleaseFundsReply, error)
	GetProgramInfo(context.Context, *GetProgramInfoRequest) (*GetProgramInfoReply, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceReply, error)
	GetNonce(context.Context, *GetNonceRequest) (*GetNonceReply, error)
	ConfigureThresholds(context.Context, *ConfigureThresholdsRequest) (*ConfigureThresholdsReply, error)
	GetWindowMetrics(context.Context, *GetWindowMetricsRequest) (*GetWindowMetricsReply, error)
}

// RegisterEscrowServiceHTTPServer registers all EscrowService routes.
func RegisterEscrowServiceHTTPServer(s *http.Server, srv EscrowServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/v1/programs", _EscrowService_InitProgram_HTTP_Handler(srv))
	r.POST("/v1/programs/{program_id}/lock", _EscrowService_LockFunds_HTTP_Handler(srv))
	r.POST("/v1/programs/{program_id}/payouts", _EscrowService_SinglePayout_HTTP_Handler(srv))
	r.POST("/v1/programs/{program_id}/payouts/batch", _EscrowService_BatchPayout_HTTP_Handler(srv))
	r.POST("/v1/programs/{program_id}/bounties", _EscrowService_LockBounty_HTTP_Handler(srv))
	r.POST("/v1/programs/{program_id}/bounties/{bounty_id}/release", _EscrowService_ReleaseFunds_HTTP_Handler(srv))
	r.GET("/v1/programs/{program_id}", _EscrowService_GetProgramInfo_HTTP_Handler(srv))
	r.GET("/v1/programs/{program_id}/balance", _EscrowService_GetBalance_HTTP_Handler(srv))
	r.GET("/v1/nonces/{signer}", _EscrowService_GetNonce_HTTP_Handler(srv))
	r.PUT("/v1/thresholds", _EscrowService_ConfigureThresholds_HTTP_Handler(srv))
	r.GET("/v1/thresholds/metrics", _EscrowService_GetWindowMetrics_HTTP_Handler(srv))
}

func _EscrowService_InitProgram_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in InitProgramRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceInitProgram)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.InitProgram(ctx, req.(*InitProgramRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*InitProgramReply))
	}
}

func _EscrowService_LockFunds_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in LockFundsRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceLockFunds)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.LockFunds(ctx, req.(*LockFundsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*LockFundsReply))
	}
}

func _EscrowService_SinglePayout_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SinglePayoutRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceSinglePayout)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SinglePayout(ctx, req.(*SinglePayoutRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*SinglePayoutReply))
	}
}

func _EscrowService_BatchPayout_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in BatchPayoutRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceBatchPayout)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.BatchPayout(ctx, req.(*BatchPayoutRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*BatchPayoutReply))
	}
}

func _EscrowService_LockBounty_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in LockBountyRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceLockBounty)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.LockBounty(ctx, req.(*LockBountyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*LockBountyReply))
	}
}

func _EscrowService_ReleaseFunds_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ReleaseFundsRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceReleaseFunds)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ReleaseFunds(ctx, req.(*ReleaseFundsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ReleaseFundsReply))
	}
}

func _EscrowService_GetProgramInfo_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetProgramInfoRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceGetProgramInfo)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetProgramInfo(ctx, req.(*GetProgramInfoRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*GetProgramInfoReply))
	}
}

func _EscrowService_GetBalance_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetBalanceRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceGetBalance)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetBalance(ctx, req.(*GetBalanceRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*GetBalanceReply))
	}
}

func _EscrowService_GetNonce_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetNonceRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceGetNonce)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetNonce(ctx, req.(*GetNonceRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*GetNonceReply))
	}
}

func _EscrowService_ConfigureThresholds_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ConfigureThresholdsRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationEscrowServiceConfigureThresholds)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ConfigureThresholds(ctx, req.(*ConfigureThresholdsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*ConfigureThresholdsReply))
	}
}

func _EscrowService_GetWindowMetrics_HTTP_Handler(srv EscrowServiceHTTPServer) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetWindowMetricsRequest
		http.SetOperation(ctx, OperationEscrowServiceGetWindowMetrics)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetWindowMetrics(ctx, req.(*GetWindowMetricsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*GetWindowMetricsReply))
	}
}
