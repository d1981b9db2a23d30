package withdrawal

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	ErrLPAlreadyRegistered  = errors.New("withdrawal: LP already registered")
	ErrInsufficientCollateral = errors.New("withdrawal: collateral below required minimum")
	ErrLPNotFound           = errors.New("withdrawal: LP not found")
	ErrLPCannotFulfill      = errors.New("withdrawal: LP lacks capacity or is inactive")
	ErrAmountExceedsMax     = errors.New("withdrawal: amount exceeds fast-withdrawal maximum")
	ErrClaimNotFound        = errors.New("withdrawal: claim not found")
	ErrClaimAlreadyProcessed = errors.New("withdrawal: claim already processed")
	ErrChallengePeriodActive = errors.New("withdrawal: challenge period has not elapsed")
)

// FastConfig parameterizes the liquidity-provider fast-withdrawal path.
type FastConfig struct {
	BaseFeeBps      uint16
	MinFee          uint64
	MaxAmount       uint64
	CollateralRatio float64
	ChallengePeriod time.Duration
}

func DefaultFastConfig() FastConfig {
	return FastConfig{
		BaseFeeBps:      50,
		MinFee:          10_000,
		MaxAmount:       1_000_000_000,
		CollateralRatio: 2.0,
		ChallengePeriod: 7 * 24 * time.Hour,
	}
}

// LiquidityProvider fronts L1 funds to users ahead of the standard
// challenge period, in exchange for a fee, collateralized against a
// multiple of the maximum single withdrawal it can service.
type LiquidityProvider struct {
	L1Address    [32]byte
	L2Address    [32]byte
	Collateral   uint64
	Available    uint64
	CustomFeeBps *uint16
	Active       bool
}

func (lp *LiquidityProvider) feeBps(cfg FastConfig) uint16 {
	if lp.CustomFeeBps != nil {
		return *lp.CustomFeeBps
	}
	return cfg.BaseFeeBps
}

func (lp *LiquidityProvider) canFulfill(amount uint64) bool {
	return lp.Active && lp.Available >= amount
}

// FastState is the lifecycle of an LP's fronted claim.
type FastState uint8

const (
	FastPending FastState = iota + 1
	FastClaimable
	FastClaimed
	FastInvalidated
)

// FastClaim records one LP's fronted withdrawal, pending challenge.
type FastClaim struct {
	ClaimId          types.Hash
	WithdrawalTxHash types.Hash
	LPAddress        [32]byte
	UserL1Address    [32]byte
	AmountFronted    uint64
	Fee              uint64
	OriginalAmount   uint64
	ClaimableAt      time.Time
	State            FastState
}

// FastQuote prices a fast withdrawal against the best available LP.
type FastQuote struct {
	Amount         uint64
	Fee            uint64
	AmountReceived uint64
	FeeBps         uint16
	LPAddress      [32]byte
}

// FastService manages LP registration and the fronted-claim lifecycle.
type FastService struct {
	mu     sync.Mutex
	cfg    FastConfig
	lps    map[[32]byte]*LiquidityProvider
	claims map[types.Hash]*FastClaim
}

func NewFastService(cfg FastConfig) *FastService {
	return &FastService{cfg: cfg, lps: make(map[[32]byte]*LiquidityProvider), claims: make(map[types.Hash]*FastClaim)}
}

func (s *FastService) requiredCollateral() uint64 {
	return uint64(float64(s.cfg.MaxAmount) * s.cfg.CollateralRatio)
}

// RegisterLP admits a liquidity provider once its collateral meets
// collateral_ratio x max_amount.
func (s *FastService) RegisterLP(l1Addr, l2Addr [32]byte, collateral uint64, customFeeBps *uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lps[l1Addr]; exists {
		return ErrLPAlreadyRegistered
	}
	if collateral < s.requiredCollateral() {
		return ErrInsufficientCollateral
	}

	s.lps[l1Addr] = &LiquidityProvider{
		L1Address: l1Addr, L2Address: l2Addr,
		Collateral: collateral, Available: collateral,
		CustomFeeBps: customFeeBps, Active: true,
	}
	return nil
}

func (s *FastService) DeactivateLP(l1Addr [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, ok := s.lps[l1Addr]
	if !ok {
		return ErrLPNotFound
	}
	lp.Active = false
	return nil
}

func (s *FastService) calculateFee(amount uint64, feeBps uint16) uint64 {
	fee := amount * uint64(feeBps) / 10_000
	if fee < s.cfg.MinFee {
		return s.cfg.MinFee
	}
	return fee
}

// Quote returns the best-fee eligible LP for a given amount, or false
// if none can fulfill it.
func (s *FastService) Quote(amount uint64) (FastQuote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount > s.cfg.MaxAmount {
		return FastQuote{}, false
	}

	var best *LiquidityProvider
	var bestFeeBps uint16
	for _, lp := range s.lps {
		if !lp.canFulfill(amount) {
			continue
		}
		feeBps := lp.feeBps(s.cfg)
		if best == nil || feeBps < bestFeeBps {
			best = lp
			bestFeeBps = feeBps
		}
	}
	if best == nil {
		return FastQuote{}, false
	}

	fee := s.calculateFee(amount, bestFeeBps)
	return FastQuote{
		Amount: amount, Fee: fee, AmountReceived: amount - fee,
		FeeBps: bestFeeBps, LPAddress: best.L1Address,
	}, true
}

// ExecuteFastWithdraw records an LP fronting funds for a withdrawal,
// deducting its available capacity and opening a claim that matures
// after the challenge period.
func (s *FastService) ExecuteFastWithdraw(withdrawalTxHash types.Hash, userL1Addr [32]byte, amount uint64, lpAddr [32]byte, now time.Time) (*FastClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount > s.cfg.MaxAmount {
		return nil, ErrAmountExceedsMax
	}

	lp, ok := s.lps[lpAddr]
	if !ok {
		return nil, ErrLPNotFound
	}
	if !lp.canFulfill(amount) {
		return nil, ErrLPCannotFulfill
	}

	feeBps := lp.feeBps(s.cfg)
	fee := s.calculateFee(amount, feeBps)
	amountFronted := amount - fee

	lp.Available -= amount

	claim := &FastClaim{
		ClaimId:          deriveClaimID(withdrawalTxHash, lpAddr, now),
		WithdrawalTxHash: withdrawalTxHash,
		LPAddress:        lpAddr,
		UserL1Address:    userL1Addr,
		AmountFronted:    amountFronted,
		Fee:              fee,
		OriginalAmount:   amount,
		ClaimableAt:      now.Add(s.cfg.ChallengePeriod),
		State:            FastPending,
	}
	s.claims[claim.ClaimId] = claim
	return claim, nil
}

// Claim finalizes an LP's claim once the challenge period has elapsed,
// restoring its available capacity by the original amount (the LP
// recovers its float from the L1 bridge's standard withdrawal payout).
func (s *FastService) Claim(claimID types.Hash, now time.Time) (*FastClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return nil, ErrClaimNotFound
	}
	if claim.State != FastPending {
		return nil, ErrClaimAlreadyProcessed
	}
	if now.Before(claim.ClaimableAt) {
		return nil, ErrChallengePeriodActive
	}

	if lp, ok := s.lps[claim.LPAddress]; ok {
		lp.Available += claim.OriginalAmount
	}

	claim.State = FastClaimed
	result := *claim
	return &result, nil
}

// Invalidate rejects a pending claim, e.g. the underlying withdrawal
// was proven fraudulent during the challenge period. The LP's fronted
// capital is not restored here; slashing disposition is out of scope.
func (s *FastService) Invalidate(claimID types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.State != FastPending {
		return ErrClaimAlreadyProcessed
	}
	claim.State = FastInvalidated
	return nil
}

func (s *FastService) GetClaim(claimID types.Hash) (*FastClaim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	return c, ok
}

func (s *FastService) GetLP(l1Addr [32]byte) (*LiquidityProvider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, ok := s.lps[l1Addr]
	return lp, ok
}

func deriveClaimID(withdrawalTxHash types.Hash, lpAddr [32]byte, now time.Time) types.Hash {
	h := blake3.New(32, nil)
	h.Write(withdrawalTxHash[:])
	h.Write(lpAddr[:])
	var nanos [8]byte
	binary.BigEndian.PutUint64(nanos[:], uint64(now.UnixNano()))
	h.Write(nanos[:])
	return types.HashFromBytes(h.Sum(nil))
}
