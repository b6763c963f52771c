package pool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/bank"
	"CoverPool/internal/event"
	"CoverPool/internal/observability"
	"CoverPool/internal/wei"
)

// PolicyToken is the ownership-token collaborator. The pool is the only
// authorized minter; token ids equal policy ids. Ownership is transferable,
// so payout beneficiaries are looked up at resolution time.
type PolicyToken interface {
	Mint(caller, to common.Address) (uint64, error)
	Burn(caller common.Address, tokenID uint64) error
	OwnerOf(tokenID uint64) (common.Address, error)
}

// Oracle is the opaque boolean-outcome source keyed by policy id.
type Oracle interface {
	IsEventHappened(policyID uint64) bool
}

// Treasury is the fee sink. Receive moves the amount from sender to the
// treasury's account and records it; failure leaves both sides untouched.
type Treasury interface {
	Address() common.Address
	Receive(sender common.Address, amount *big.Int) error
}

// Output carries an emitted event to the persistence and publish fan-out.
type Output struct {
	Envelope event.Envelope
}

// Config wires an Engine.
type Config struct {
	Owner   common.Address
	Address common.Address // the pool's own account in the bank ledger

	Bank     *bank.Ledger
	Token    PolicyToken
	Oracle   Oracle
	Treasury Treasury

	Params Params

	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// Now overrides the engine clock; nil means time.Now.
	Now func() time.Time

	// PersistChan receives every event with a blocking send: if the
	// persistence worker falls behind, operations stall rather than lose
	// events. PublishChan is best-effort (non-blocking, drop on full).
	PersistChan chan<- Output
	PublishChan chan<- Output
}

// Engine is the serialized pool core. Every operation runs whole under one
// mutex: it either fully commits or fully reverts, and ledger state is
// updated before any value transfer so a reentrant caller observes
// already-updated state.
type Engine struct {
	mu sync.Mutex

	owner  common.Address
	addr   common.Address
	paused bool

	params Params
	vault  *Vault
	ledger *PolicyLedger

	bank     *bank.Ledger
	token    PolicyToken
	oracle   Oracle
	treasury Treasury

	nextPolicyID uint64
	sequence     int64

	now     func() time.Time
	log     zerolog.Logger
	metrics *observability.Metrics

	persistChan chan<- Output
	publishChan chan<- Output
}

// NewEngine validates the initial parameters and builds the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bank == nil || cfg.Token == nil || cfg.Oracle == nil || cfg.Treasury == nil {
		return nil, fmt.Errorf("engine: all collaborators must be set")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		owner:       cfg.Owner,
		addr:        cfg.Address,
		params:      cfg.Params,
		vault:       NewVault(),
		ledger:      NewPolicyLedger(),
		bank:        cfg.Bank,
		token:       cfg.Token,
		oracle:      cfg.Oracle,
		treasury:    cfg.Treasury,
		now:         now,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		persistChan: cfg.PersistChan,
		publishChan: cfg.PublishChan,
	}, nil
}

// ============================================================================
// LiquidityVault operations
// ============================================================================

// Deposit accepts paid-in capital and mints shares at the current price.
// Blocked while paused; rejects deposits so small they mint zero shares.
func (e *Engine) Deposit(caller common.Address, amount *big.Int) (*big.Int, error) {
	defer e.timeOp("deposit")()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, e.reject("deposit", ErrEnforcedPause)
	}
	if !wei.IsPositive(amount) {
		return nil, e.reject("deposit", ErrZeroValue)
	}

	minted := e.vault.SharesForDeposit(amount)
	if wei.IsZero(minted) {
		return nil, e.reject("deposit", ErrAmountNotEnough)
	}

	e.vault.Mint(caller, amount, minted)
	e.bank.Credit(e.addr, amount) // value arrived with the call

	e.emit(event.TypeLiquidityProvided, event.LiquidityProvided{
		LP:        caller.Hex(),
		EthAmount: amount.String(),
		Shares:    minted.String(),
	})
	e.postCheckInvariants("deposit")
	e.applied("deposit")

	return minted, nil
}

// Withdraw burns sharesAmount and pays out the corresponding capital.
// Capital locked against outstanding coverage is not withdrawable.
// Deliberately NOT gated on pause: pause stops new capital commitments
// while preserving every exit path.
func (e *Engine) Withdraw(caller common.Address, sharesAmount *big.Int) (*big.Int, error) {
	defer e.timeOp("withdraw")()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !wei.IsPositive(sharesAmount) {
		return nil, e.reject("withdraw", ErrZeroValue)
	}
	if sharesAmount.Cmp(e.vault.SharesOf(caller)) > 0 {
		return nil, e.reject("withdraw", ErrNoLiquidity)
	}

	ethAmount := e.vault.AssetsForShares(sharesAmount)
	if ethAmount.Cmp(e.availableLiquidity()) > 0 {
		return nil, e.reject("withdraw", ErrNoLiquidity)
	}

	// Burn first, transfer last.
	e.vault.Burn(caller, ethAmount, sharesAmount)

	if err := e.bank.Transfer(e.addr, caller, ethAmount); err != nil {
		e.vault.Mint(caller, ethAmount, sharesAmount) // full revert
		return nil, e.reject("withdraw", ErrTransferFailed)
	}

	e.emit(event.TypeLiquidityRemoved, event.LiquidityRemoved{
		LP:        caller.Hex(),
		EthAmount: ethAmount.String(),
		Shares:    sharesAmount.String(),
	})
	e.postCheckInvariants("withdraw")
	e.applied("withdraw")

	return ethAmount, nil
}

// ============================================================================
// PolicyLifecycle
// ============================================================================

// BuyPolicy creates an Active policy. The paid value must equal the required
// premium exactly; the protocol fee is forwarded to the treasury and the
// ownership token is minted to the buyer.
func (e *Engine) BuyPolicy(caller common.Address, coverage *big.Int, duration time.Duration, paid *big.Int) (*Policy, error) {
	defer e.timeOp("buy_policy")()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, e.reject("buy_policy", ErrEnforcedPause)
	}
	if !wei.IsPositive(coverage) {
		return nil, e.reject("buy_policy", ErrZeroValue)
	}
	if duration <= 0 || duration > MaxPolicyDuration {
		return nil, e.reject("buy_policy", ErrDurationOutOfRange)
	}

	maxCoverage := wei.MulDivBps(e.availableLiquidity(), e.params.MaxCoverageBps)
	if coverage.Cmp(maxCoverage) > 0 {
		return nil, e.reject("buy_policy", ErrCoverageLimitExceeded)
	}

	premium := RequiredPremium(coverage, e.params.PremiumRateBps)
	if paid == nil || paid.Cmp(premium) != 0 {
		return nil, e.reject("buy_policy", ErrWrongPremium)
	}

	netPremium, protocolFee := SplitPremium(premium, e.params.ProtocolFeeBps)

	// Effects before external transfers: value in, assets up, coverage locked.
	e.bank.Credit(e.addr, paid)
	e.vault.AddAssets(netPremium)

	start := e.now()
	policy := &Policy{
		ID:       e.nextPolicyID + 1,
		Coverage: wei.Clone(coverage),
		Premium:  premium,
		Start:    start,
		End:      start.Add(duration),
	}
	e.ledger.Store(policy)

	undo := func() {
		e.ledger.Remove(policy.ID)
		e.vault.SubAssets(netPremium)
		// The paid value never belonged to the pool on revert.
		if err := e.bank.Burn(e.addr, paid); err != nil {
			panic(fmt.Sprintf("FATAL: buy_policy revert failed: %v", err))
		}
	}

	// The pool is the authorized minter; a mint failure means the token
	// collaborator is misconfigured, and the whole purchase reverts.
	tokenID, err := e.token.Mint(e.addr, caller)
	if err != nil {
		undo()
		return nil, e.reject("buy_policy", err)
	}
	if tokenID != policy.ID {
		undo()
		panic(fmt.Sprintf("FATAL: token id %d diverged from policy id %d", tokenID, policy.ID))
	}

	// A tiny premium can floor the fee to zero; the treasury rejects zero
	// amounts, so there is nothing to forward.
	if wei.IsPositive(protocolFee) {
		if err := e.treasury.Receive(e.addr, protocolFee); err != nil {
			_ = e.token.Burn(e.addr, tokenID)
			undo()
			return nil, e.reject("buy_policy", ErrTransferFailed)
		}
	}

	e.nextPolicyID = policy.ID

	if wei.IsPositive(protocolFee) {
		e.emit(event.TypeFundsReceived, event.FundsReceived{
			Sender: e.addr.Hex(),
			Amount: protocolFee.String(),
		})
	}
	e.emit(event.TypePolicyCreated, event.PolicyCreated{
		PolicyID: policy.ID,
		Holder:   caller.Hex(),
		Coverage: policy.Coverage.String(),
		Premium:  policy.Premium.String(),
		Start:    policy.Start.Unix(),
		End:      policy.End.Unix(),
	})
	e.postCheckInvariants("buy_policy")
	e.applied("buy_policy")

	return e.snapshotPolicy(policy), nil
}

// ResolvePolicy settles a policy against the oracle outcome. Owner-only and
// available before or after expiry: the owner decides whether a stale
// policy closes by outcome or by ExpirePolicy. On a true outcome the
// coverage is paid to the CURRENT token holder, looked up now, not at
// purchase time.
func (e *Engine) ResolvePolicy(caller common.Address, policyID uint64) (bool, error) {
	defer e.timeOp("resolve_policy")()
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return false, e.reject("resolve_policy", ErrUnauthorized)
	}

	policy, ok := e.ledger.Get(policyID)
	if !ok {
		return false, e.reject("resolve_policy", ErrPolicyNotFound)
	}
	if policy.Resolved {
		return false, e.reject("resolve_policy", ErrAlreadyResolved)
	}

	e.ledger.Resolve(policy)

	payout := e.oracle.IsEventHappened(policyID)
	amount := wei.Zero()

	if payout {
		holder, err := e.token.OwnerOf(policyID)
		if err != nil {
			e.ledger.Unresolve(policy)
			return false, e.reject("resolve_policy", ErrTransferFailed)
		}

		amount = wei.Clone(policy.Coverage)
		e.vault.SubAssets(amount)

		if err := e.bank.Transfer(e.addr, holder, amount); err != nil {
			// All-or-nothing: the policy stays unresolved and locked.
			e.vault.AddAssets(amount)
			e.ledger.Unresolve(policy)
			return false, e.reject("resolve_policy", ErrTransferFailed)
		}

		if e.metrics != nil {
			e.metrics.PayoutsTotal.Inc()
		}
	}

	e.emit(event.TypePolicyResolved, event.PolicyResolved{
		PolicyID: policyID,
		Payout:   payout,
		Amount:   amount.String(),
	})
	e.postCheckInvariants("resolve_policy")
	e.applied("resolve_policy")

	return payout, nil
}

// ExpirePolicy closes an unresolved policy whose end has passed, with no
// payout regardless of any oracle outcome. Owner-only.
func (e *Engine) ExpirePolicy(caller common.Address, policyID uint64) error {
	defer e.timeOp("expire_policy")()
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.reject("expire_policy", ErrUnauthorized)
	}

	policy, ok := e.ledger.Get(policyID)
	if !ok {
		return e.reject("expire_policy", ErrPolicyNotFound)
	}
	if policy.Resolved {
		return e.reject("expire_policy", ErrAlreadyResolved)
	}
	if e.now().Before(policy.End) {
		return e.reject("expire_policy", ErrPolicyNotExpired)
	}

	e.ledger.Resolve(policy)

	e.emit(event.TypePolicyResolved, event.PolicyResolved{
		PolicyID: policyID,
		Payout:   false,
		Amount:   "0",
	})
	e.postCheckInvariants("expire_policy")
	e.applied("expire_policy")

	return nil
}

// ============================================================================
// ParameterStore / PauseGate / EmergencyWithdraw
// ============================================================================

// UpdateParameters replaces the three bps parameters. Applies to subsequent
// purchases only; stored policies are never touched.
func (e *Engine) UpdateParameters(caller common.Address, p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.reject("update_parameters", ErrUnauthorized)
	}
	if err := p.Validate(); err != nil {
		return e.reject("update_parameters", err)
	}

	e.params = p

	e.emit(event.TypeParametersUpdated, event.ParametersUpdated{
		MaxCoverageBps: p.MaxCoverageBps,
		PremiumRateBps: p.PremiumRateBps,
		ProtocolFeeBps: p.ProtocolFeeBps,
	})
	e.applied("update_parameters")
	return nil
}

// Pause blocks deposit and buyPolicy. Withdrawal, resolution, expiry and
// emergencyWithdraw stay available.
func (e *Engine) Pause(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.reject("pause", ErrUnauthorized)
	}
	if e.paused {
		return e.reject("pause", ErrEnforcedPause)
	}

	e.paused = true
	e.emit(event.TypePaused, event.Paused{By: caller.Hex()})
	e.applied("pause")
	return nil
}

// Unpause reopens capital inflow. Rejects when the pool is not paused,
// mirroring Pause on an already-paused pool.
func (e *Engine) Unpause(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.reject("unpause", ErrUnauthorized)
	}
	if !e.paused {
		return e.reject("unpause", ErrExpectedPause)
	}

	e.paused = false
	e.emit(event.TypeUnpaused, event.Unpaused{By: caller.Hex()})
	e.applied("unpause")
	return nil
}

// EmergencyWithdraw moves amount from the pool's held balance to target,
// bypassing share and lock accounting entirely. This is an incident-response
// escape hatch: it can leave totalAssets out of sync with the pool's real
// balance, trading invariant I1 for owner-controlled fund recovery. That
// desynchronization is intentional and not covered by the invariant checks.
func (e *Engine) EmergencyWithdraw(caller, target common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.reject("emergency_withdraw", ErrUnauthorized)
	}
	if err := e.bank.Transfer(e.addr, target, amount); err != nil {
		return e.reject("emergency_withdraw", ErrTransferFailed)
	}

	e.log.Warn().
		Str("target", target.Hex()).
		Str("amount", amount.String()).
		Msg("emergency withdraw executed; totalAssets may now exceed held balance")

	e.emit(event.TypeEmergencyWithdrawn, event.EmergencyWithdrawn{
		To:     target.Hex(),
		Amount: amount.String(),
	})
	e.applied("emergency_withdraw")
	return nil
}

// ============================================================================
// Read accessors
// ============================================================================

func (e *Engine) SharesOf(addr common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.SharesOf(addr)
}

// EthBalance is the wei value of addr's shares at the current price.
func (e *Engine) EthBalance(addr common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.AssetsForShares(e.vault.SharesOf(addr))
}

func (e *Engine) TotalShares() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.TotalShares()
}

func (e *Engine) TotalAssets() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.TotalAssets()
}

func (e *Engine) TotalLockedCoverage() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalLockedCoverage()
}

// AvailableLiquidity is the derived view totalAssets - totalLockedCoverage.
func (e *Engine) AvailableLiquidity() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.availableLiquidity()
}

// Policy returns a copy of the stored policy.
func (e *Engine) Policy(id uint64) (*Policy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.ledger.Get(id)
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return e.snapshotPolicy(p), nil
}

func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) Owner() common.Address { return e.owner }

func (e *Engine) Address() common.Address { return e.addr }

// HeldBalance is the pool's actual balance in the transfer layer. It equals
// totalAssets unless an emergency withdraw has desynchronized them.
func (e *Engine) HeldBalance() *big.Int {
	return e.bank.BalanceOf(e.addr)
}

// Sequence returns the next event sequence number.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// EmitEvent places a collaborator event on the pool's fan-out with the next
// sequence number. For events that happen outside a pool operation, such as
// treasury withdrawals. Must not be called from within an operation.
func (e *Engine) EmitEvent(t event.Type, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(t, payload)
}

// ============================================================================
// Internals
// ============================================================================

func (e *Engine) availableLiquidity() *big.Int {
	avail := e.vault.TotalAssets()
	return avail.Sub(avail, e.ledger.totalLockedCoverage)
}

func (e *Engine) snapshotPolicy(p *Policy) *Policy {
	return &Policy{
		ID:       p.ID,
		Coverage: wei.Clone(p.Coverage),
		Premium:  wei.Clone(p.Premium),
		Start:    p.Start,
		End:      p.End,
		Resolved: p.Resolved,
	}
}

// emit assigns a sequence and fans the event out: the persist channel uses a
// blocking send so no event is ever lost, the publish channel drops on full.
func (e *Engine) emit(t event.Type, payload interface{}) {
	env := event.Envelope{
		Sequence:  e.sequence,
		EventID:   uuid.New(),
		Type:      t,
		Timestamp: e.now(),
		Payload:   payload,
	}
	e.sequence++

	if e.persistChan != nil {
		e.persistChan <- Output{Envelope: env}
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- Output{Envelope: env}:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

// postCheckInvariants verifies the numeric invariants after every mutating
// operation. A violation is a bug in the engine, not a caller error.
func (e *Engine) postCheckInvariants(op string) {
	totalAssets := e.vault.TotalAssets()
	locked := e.ledger.TotalLockedCoverage()

	// I1: availableLiquidity + totalLockedCoverage == totalAssets, with
	// availableLiquidity derived and never negative.
	if locked.Cmp(totalAssets) > 0 {
		panic(fmt.Sprintf("FATAL: %s: locked coverage %s exceeds total assets %s", op, locked, totalAssets))
	}

	// I2: sum of all LP shares == totalShares.
	if e.vault.SumShares().Cmp(e.vault.TotalShares()) != 0 {
		panic(fmt.Sprintf("FATAL: %s: share sum diverged from totalShares", op))
	}

	if e.metrics != nil {
		e.metrics.SetPoolGauges(totalAssets, e.vault.TotalShares(), locked)
	}
}

func (e *Engine) reject(op string, err error) error {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, ErrorName(err)).Inc()
	}
	e.log.Debug().Str("op", op).Str("reason", ErrorName(err)).Msg("operation rejected")
	return err
}

func (e *Engine) applied(op string) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
	}
}

func (e *Engine) timeOp(op string) func() {
	if e.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
