package persistence

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CoverPool/internal/bank"
	"CoverPool/internal/event"
	"CoverPool/internal/oracle"
	"CoverPool/internal/pool"
	"CoverPool/internal/query"
	"CoverPool/internal/testutil"
	"CoverPool/internal/token"
	"CoverPool/internal/treasury"
)

func output(seq int64, t event.Type, payload interface{}) pool.Output {
	return pool.Output{Envelope: event.Envelope{
		Sequence:  seq,
		EventID:   uuid.New(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}}
}

func TestWorkerWritesEventsAndPolicies(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	input := make(chan pool.Output, 16)
	worker := NewWorker(db, input, 10, 50*time.Millisecond, zerolog.Nop(), nil)

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	input <- output(0, event.TypeLiquidityProvided, event.LiquidityProvided{
		LP:        "0x00000000000000000000000000000000000000a1",
		EthAmount: "1000000000000000000",
		Shares:    "1000000000000000000",
	})
	input <- output(1, event.TypePolicyCreated, event.PolicyCreated{
		PolicyID: 1,
		Holder:   "0x00000000000000000000000000000000000000b1",
		Coverage: "1000000000000000000",
		Premium:  "30000000000000000",
		Start:    time.Now().Unix(),
		End:      time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
	input <- output(2, event.TypePolicyResolved, event.PolicyResolved{
		PolicyID: 1,
		Payout:   true,
		Amount:   "1000000000000000000",
	})

	close(input)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain and exit")
	}

	var eventCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pool_log.events`).Scan(&eventCount); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 3 {
		t.Errorf("events written = %d, want 3", eventCount)
	}

	var resolved, payout bool
	var payoutAmount string
	err := db.QueryRow(`
		SELECT resolved, payout, payout_amount FROM pool_log.policies WHERE policy_id = 1
	`).Scan(&resolved, &payout, &payoutAmount)
	if err != nil {
		t.Fatalf("load policy row: %v", err)
	}
	if !resolved || !payout {
		t.Errorf("policy row = (resolved=%v, payout=%v), want both true", resolved, payout)
	}
	if payoutAmount != "1000000000000000000" {
		t.Errorf("payout_amount = %s", payoutAmount)
	}
}

func TestWorkerReplayIsIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := NewEventLogWriter(db)
	rows := []EventRow{{
		Sequence:  7,
		EventID:   uuid.New(),
		EventType: "LiquidityProvided",
		Payload:   []byte(`{"lp":"0x00","eth_amount":"1","shares":"1"}`),
		EmittedAt: time.Now().UTC(),
	}}

	// Same sequence written twice: second write is a no-op.
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("second write: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pool_log.events WHERE sequence = 7`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("rows for sequence 7 = %d, want 1", count)
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewSnapshotStore(db)

	snap := pool.Snapshot{
		Sequence:     42,
		NextPolicyID: 3,
		Paused:       true,
		Params:       pool.Params{MaxCoverageBps: 2000, PremiumRateBps: 300, ProtocolFeeBps: 500},
		TotalAssets:  "100000000000000000000",
		HeldBalance:  "100000000000000000000",
		Shares:       map[string]string{"0x00000000000000000000000000000000000000A1": "100000000000000000000"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("no snapshot loaded")
	}
	if loaded.Sequence != 42 || loaded.NextPolicyID != 3 || !loaded.Paused {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.TotalAssets != snap.TotalAssets {
		t.Errorf("total assets = %s, want %s", loaded.TotalAssets, snap.TotalAssets)
	}
}

// Transferred ownership must survive a warm restart: the holder column
// follows PolicyTransferred events, and a restored pool resolves to the
// transferee, not the original buyer.
func TestTransferSurvivesRestartAndResolvesToTransferee(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolAddr := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	treasuryAddr := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	lp := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	transferee := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	params := pool.Params{MaxCoverageBps: 2000, PremiumRateBps: 300, ProtocolFeeBps: 500}

	newPool := func() (*pool.Engine, *bank.Ledger, *token.Registry, *oracle.Store, chan pool.Output) {
		b := bank.NewLedger()
		reg := token.NewRegistry(owner)
		orc := oracle.NewStore(owner)
		tre := treasury.NewLedger(owner, treasuryAddr, b)
		persist := make(chan pool.Output, 64)
		eng, err := pool.NewEngine(pool.Config{
			Owner: owner, Address: poolAddr,
			Bank: b, Token: reg, Oracle: orc, Treasury: tre,
			Params:      params,
			Logger:      zerolog.Nop(),
			PersistChan: persist,
		})
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		if err := reg.SetInsurancePool(owner, poolAddr); err != nil {
			t.Fatalf("bind pool: %v", err)
		}
		return eng, b, reg, orc, persist
	}

	eng, _, reg, _, persist := newPool()

	worker := NewWorker(db, persist, 10, 50*time.Millisecond, zerolog.Nop(), nil)
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	hundred := new(big.Int).Mul(oneEther, big.NewInt(100))

	if _, err := eng.Deposit(lp, hundred); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	premium := pool.RequiredPremium(oneEther, params.PremiumRateBps)
	p, err := eng.BuyPolicy(buyer, oneEther, 7*24*time.Hour, premium)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Transfer the policy token and log it, the way the HTTP handler does.
	if err := reg.Transfer(buyer, transferee, p.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	eng.EmitEvent(event.TypePolicyTransferred, event.PolicyTransferred{
		PolicyID: p.ID,
		From:     buyer.Hex(),
		To:       transferee.Hex(),
	})

	snapStore := NewSnapshotStore(db)
	if err := snapStore.Save(ctx, eng.Snapshot()); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	close(persist)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain and exit")
	}

	var holder string
	err = db.QueryRow(`SELECT holder FROM pool_log.policies WHERE policy_id = $1`, p.ID).Scan(&holder)
	if err != nil {
		t.Fatalf("load policy row: %v", err)
	}
	if holder != transferee.Hex() {
		t.Fatalf("durable holder = %s, want %s", holder, transferee.Hex())
	}

	// Warm restart into a fresh pool.
	eng2, b2, reg2, orc2, _ := newPool()

	snap, err := snapStore.LoadLatest(ctx)
	if err != nil || snap == nil {
		t.Fatalf("load snapshot: %v (nil=%v)", err, snap == nil)
	}
	if err := eng2.Restore(*snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	readSvc := query.NewService(db)
	open, err := readSvc.ListOpenPolicies(ctx, 100)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	holders := make(map[uint64]common.Address, len(open))
	for _, rec := range open {
		holders[rec.PolicyID] = common.HexToAddress(rec.Holder)
	}
	if err := reg2.Restore(owner, holders, snap.NextPolicyID); err != nil {
		t.Fatalf("restore tokens: %v", err)
	}

	if err := orc2.SetEvent(owner, p.ID, true); err != nil {
		t.Fatal(err)
	}
	payout, err := eng2.ResolvePolicy(owner, p.ID)
	if err != nil {
		t.Fatalf("resolve after restart: %v", err)
	}
	if !payout {
		t.Fatal("expected payout")
	}
	if b2.BalanceOf(transferee).Cmp(oneEther) != 0 {
		t.Errorf("transferee balance = %s, want 1 ether", b2.BalanceOf(transferee))
	}
	if b2.BalanceOf(buyer).Sign() != 0 {
		t.Errorf("original buyer received %s, want 0", b2.BalanceOf(buyer))
	}
}
