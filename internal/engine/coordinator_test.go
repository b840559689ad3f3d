package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/fraction"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/lending"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/oracle"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/rental"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Submit(ctx context.Context, intent *ledger.Intent) (ledger.TxHandle, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(ledger.TxHandle), args.Error(1)
}

func (m *mockLedger) AwaitFinality(ctx context.Context, handle ledger.TxHandle) (*ledger.Finality, error) {
	args := m.Called(ctx, handle)
	if f, ok := args.Get(0).(*ledger.Finality); ok {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) ReadEntity(ctx context.Context, entityID string) (*ledger.EntityState, error) {
	args := m.Called(ctx, entityID)
	if s, ok := args.Get(0).(*ledger.EntityState); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) LatestValuation(ctx context.Context, asset types.AssetRef) (*oracle.Quote, error) {
	args := m.Called(ctx, asset)
	if q, ok := args.Get(0).(*oracle.Quote); ok {
		return q, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestEngine(t *testing.T) (*Engine, *mockLedger, *mockOracle) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&lending.Loan{},
		&rental.Rental{},
		&fraction.Fraction{},
		&derivative.Derivative{},
		&IdempotencyRecord{},
		&PendingTransition{},
	))

	ledgerMock := new(mockLedger)
	oracleMock := new(mockOracle)

	e := New(db, ledgerMock, oracleMock, DefaultConfig())
	e.sleep = func(time.Duration) {}
	return e, ledgerMock, oracleMock
}

func amt(s string) types.Amount {
	return types.MustParseAmount(s)
}

func confirmed(entityID, kind, status string) *ledger.Finality {
	return &ledger.Finality{
		Status: ledger.FinalityConfirmed,
		State: &ledger.EntityState{
			EntityID:   entityID,
			EntityKind: kind,
			Status:     status,
			UpdatedAt:  time.Now(),
		},
	}
}

func freshQuote(asset types.AssetRef, value types.Amount) *oracle.Quote {
	return &oracle.Quote{
		Asset:         asset,
		Value:         value,
		Timestamp:     time.Now(),
		ConfidencePct: 100,
	}
}

func seedPendingLoan(t *testing.T, e *Engine) *lending.Loan {
	t.Helper()
	loan := &lending.Loan{
		LoanID:                  "LN_seed",
		ContractAddress:         "0xabc",
		TokenID:                 "7",
		Borrower:                "0xborrower",
		PaymentAsset:            types.PaymentNative,
		PrincipalMin:            amt("100000000000000000"), // 0.1 ETH
		InterestRateBps:         500,
		DurationSeconds:         7 * 24 * 3600,
		CollateralFactorBps:     7000,
		LiquidationThresholdBps: 8500,
		Status:                  lending.StatusPending,
	}
	require.NoError(t, e.loans.Create(loan))
	return loan
}

func TestCreateLoanListingConfirmed(t *testing.T) {
	e, ledgerMock, _ := newTestEngine(t)

	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(confirmed("LN_new", types.EntityLoan, lending.StatusPending), nil)

	var events []RecordChanged
	e.Notifier().Subscribe(func(ev RecordChanged) { events = append(events, ev) })

	loan, err := e.CreateLoanListing(context.Background(), CreateLoanParams{
		ContractAddress:         "0xabc",
		TokenID:                 "7",
		Borrower:                "0xborrower",
		PrincipalMin:            amt("100000000000000000"),
		InterestRateBps:         500,
		DurationSeconds:         7 * 24 * 3600,
		CollateralFactorBps:     7000,
		LiquidationThresholdBps: 8500,
	}, "idem-1")
	require.NoError(t, err)

	assert.Equal(t, "LN_new", loan.LoanID)
	assert.Equal(t, lending.StatusPending, loan.Status)
	assert.Equal(t, types.PaymentNative, loan.PaymentAsset)

	stored, err := e.loans.Get("LN_new")
	require.NoError(t, err)
	assert.Equal(t, "0xborrower", stored.Borrower)

	require.Len(t, events, 1)
	assert.Equal(t, types.EntityLoan, events[0].EntityKind)
	assert.Equal(t, "CREATE_LISTING", events[0].Action)
}

func TestCreateLoanListingIdempotent(t *testing.T) {
	e, ledgerMock, _ := newTestEngine(t)

	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(confirmed("LN_new", types.EntityLoan, lending.StatusPending), nil)

	params := CreateLoanParams{
		ContractAddress:         "0xabc",
		TokenID:                 "7",
		Borrower:                "0xborrower",
		PrincipalMin:            amt("100000000000000000"),
		InterestRateBps:         500,
		DurationSeconds:         7 * 24 * 3600,
		CollateralFactorBps:     7000,
		LiquidationThresholdBps: 8500,
	}

	first, err := e.CreateLoanListing(context.Background(), params, "idem-1")
	require.NoError(t, err)
	second, err := e.CreateLoanListing(context.Background(), params, "idem-1")
	require.NoError(t, err)

	assert.Equal(t, first.LoanID, second.LoanID)
	ledgerMock.AssertNumberOfCalls(t, "Submit", 1)
}

func TestSaveIdempotentDuplicateKeyIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.saveIdempotent("idem-dup", types.EntityLoan, "LN_first"))
	// A racing second save under the same key must not error and must not
	// displace the original mapping.
	require.NoError(t, e.saveIdempotent("idem-dup", types.EntityLoan, "LN_second"))

	id, ok := e.lookupIdempotent("idem-dup")
	require.True(t, ok)
	assert.Equal(t, "LN_first", id)
}

func TestMatchLoanOfferConfirmed(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	// Collateral at 1.5 ETH and a 70% factor cap the principal at 1.05 ETH.
	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(confirmed(loan.LoanID, types.EntityLoan, lending.StatusActive), nil)

	matched, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, lending.StatusActive, matched.Status)
	assert.Equal(t, "0xlender", matched.Lender)
	assert.False(t, matched.PendingConfirmation)
	require.NotNil(t, matched.StartTime)
}

func TestMatchLoanOfferExceedsCollateral(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1100000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientCollateral, types.KindOf(err))
	ledgerMock.AssertNotCalled(t, "Submit")
}

func TestLedgerRevertRollsBack(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(&ledger.Finality{Status: ledger.FinalityReverted, Reason: "execution reverted"}, nil)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrLedgerRejected, types.KindOf(err))

	// The record reads back exactly as it did before the attempt.
	restored, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusPending, restored.Status)
	assert.Empty(t, restored.Lender)
	assert.Nil(t, restored.StartTime)
	assert.False(t, restored.PendingConfirmation)
	assert.False(t, restored.NeedsReconciliation)
}

func TestTimeoutFlagsReconciliation(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(nil, context.DeadlineExceeded)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.KindOf(err))

	flagged, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusPending, flagged.Status)
	assert.True(t, flagged.NeedsReconciliation)

	// The transaction landed after the local timeout: the reconciler
	// adopts the ledger's state.
	ledgerMock.On("ReadEntity", mock.Anything, loan.LoanID).
		Return(&ledger.EntityState{
			EntityID:   loan.LoanID,
			EntityKind: types.EntityLoan,
			Status:     lending.StatusActive,
			UpdatedAt:  time.Now(),
		}, nil)

	var events []RecordChanged
	e.Notifier().Subscribe(func(ev RecordChanged) { events = append(events, ev) })

	NewReconciler(e).RunOnce(context.Background())

	reconciled, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusActive, reconciled.Status)
	assert.False(t, reconciled.NeedsReconciliation)

	require.Len(t, events, 1)
	assert.Equal(t, "RECONCILE", events[0].Action)
}

func TestReconcilerRestoresMatchDataAfterTimeout(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.KindOf(err))

	// The match landed after the local timeout. Adoption must bring back
	// the whole transition, not just the ACTIVE status: a loan with a zero
	// principal and no lender would let a zero payment repay it and free
	// the collateral.
	ledgerMock.On("ReadEntity", mock.Anything, loan.LoanID).
		Return(&ledger.EntityState{
			EntityID:   loan.LoanID,
			EntityKind: types.EntityLoan,
			Status:     lending.StatusActive,
			UpdatedAt:  time.Now(),
		}, nil)

	NewReconciler(e).RunOnce(context.Background())

	reconciled, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusActive, reconciled.Status)
	assert.Equal(t, "0xlender", reconciled.Lender)
	assert.Equal(t, 0, reconciled.Principal.Cmp(amt("1000000000000000000")))
	require.NotNil(t, reconciled.StartTime)
	assert.False(t, reconciled.NeedsReconciliation)
	assert.False(t, reconciled.PendingConfirmation)

	// A zero payment must no longer clear the debt.
	_, err = e.RepayLoan(context.Background(), loan.LoanID, "0xborrower", amt("0"))
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientPayment, types.KindOf(err))

	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(confirmed(loan.LoanID, types.EntityLoan, lending.StatusRepaid), nil)

	repaid, err := e.RepayLoan(context.Background(), loan.LoanID, "0xborrower", amt("2000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, lending.StatusRepaid, repaid.Status)
}

func TestReconcilerRestoresRenterAfterTimeout(t *testing.T) {
	e, ledgerMock, _ := newTestEngine(t)

	r := &rental.Rental{
		RentalID:        "RNT_seed",
		ContractAddress: "0xabc",
		TokenID:         "9",
		Owner:           "0xowner",
		PaymentAsset:    types.PaymentNative,
		RentalFee:       amt("10000000000000000"),
		DurationSeconds: 7 * 24 * 3600,
		Collateral:      amt("50000000000000000"),
		Status:          rental.StatusListed,
	}
	require.NoError(t, e.rentals.Create(r))

	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := e.RentAsset(context.Background(), r.RentalID, "0xrenter")
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.KindOf(err))

	ledgerMock.On("ReadEntity", mock.Anything, r.RentalID).
		Return(&ledger.EntityState{
			EntityID:   r.RentalID,
			EntityKind: types.EntityRental,
			Status:     rental.StatusRented,
			UpdatedAt:  time.Now(),
		}, nil)

	NewReconciler(e).RunOnce(context.Background())

	reconciled, err := e.rentals.Get(r.RentalID)
	require.NoError(t, err)
	assert.Equal(t, rental.StatusRented, reconciled.Status)
	assert.Equal(t, "0xrenter", reconciled.Renter)
	require.NotNil(t, reconciled.StartTime)
	assert.False(t, reconciled.NeedsReconciliation)
}

func TestReconcilerClearsFlagWhenIntentNeverLanded(t *testing.T) {
	e, ledgerMock, _ := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	require.True(t, e.locks.TryAcquire(loan.LoanID))
	loan.NeedsReconciliation = true
	require.NoError(t, e.loans.Update(loan))
	e.locks.Release(loan.LoanID)

	ledgerMock.On("ReadEntity", mock.Anything, loan.LoanID).
		Return(nil, types.E(types.ErrNotFound, "entity %s not on ledger", loan.LoanID))

	NewReconciler(e).RunOnce(context.Background())

	settled, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusPending, settled.Status)
	assert.False(t, settled.NeedsReconciliation)
}

func TestEntityBusySingleWinner(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	release := make(chan struct{})
	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Run(func(mock.Arguments) { <-release }).
		Return(confirmed(loan.LoanID, types.EntityLoan, lending.StatusActive), nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender1", amt("1000000000000000000"))
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return e.locks.Held(loan.LoanID) },
		time.Second, time.Millisecond)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender2", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrEntityBusy, types.KindOf(err))

	close(release)
	require.NoError(t, <-firstErr)

	final, err := e.loans.Get(loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, "0xlender1", final.Lender)
}

func TestStaleOracleRejected(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(&oracle.Quote{
			Asset:         loan.Asset(),
			Value:         amt("1500000000000000000"),
			Timestamp:     time.Now().Add(-time.Hour),
			ConfidencePct: 100,
		}, nil)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrStaleOracleData, types.KindOf(err))
	ledgerMock.AssertNotCalled(t, "Submit")
}

func TestLowConfidenceOracleRejected(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(&oracle.Quote{
			Asset:         loan.Asset(),
			Value:         amt("1500000000000000000"),
			Timestamp:     time.Now(),
			ConfidencePct: 40,
		}, nil)

	_, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrStaleOracleData, types.KindOf(err))
	ledgerMock.AssertNotCalled(t, "Submit")
}

func TestSubmitRetriesOnceOnNetworkError(t *testing.T) {
	e, ledgerMock, oracleMock := newTestEngine(t)
	loan := seedPendingLoan(t, e)

	oracleMock.On("LatestValuation", mock.Anything, loan.Asset()).
		Return(freshQuote(loan.Asset(), amt("1500000000000000000")), nil)
	ledgerMock.On("Submit", mock.Anything, mock.Anything).
		Return(ledger.TxHandle(""), types.E(types.ErrNetworkError, "connection reset")).Once()
	ledgerMock.On("Submit", mock.Anything, mock.Anything).
		Return(ledger.TxHandle("TX_2"), nil).Once()
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_2")).
		Return(confirmed(loan.LoanID, types.EntityLoan, lending.StatusActive), nil)

	matched, err := e.MatchLoanOffer(context.Background(), loan.LoanID, "0xlender", amt("1000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, lending.StatusActive, matched.Status)
	ledgerMock.AssertNumberOfCalls(t, "Submit", 2)
}

func TestSweepExpiredDerivatives(t *testing.T) {
	e, ledgerMock, _ := newTestEngine(t)

	d := &derivative.Derivative{
		DerivativeID:    "DRV_seed",
		ContractAddress: "0xabc",
		TokenID:         "3",
		Creator:         "0xcreator",
		Buyer:           "0xbuyer",
		PaymentAsset:    types.PaymentNative,
		Kind:            types.DerivativeCall,
		StrikePrice:     amt("500000000000000000"),
		Premium:         amt("20000000000000000"),
		ExpirationTime:  time.Now().Add(-time.Hour),
		Status:          derivative.StatusActive,
	}
	require.NoError(t, e.derivatives.Create(d))

	ledgerMock.On("Submit", mock.Anything, mock.Anything).Return(ledger.TxHandle("TX_1"), nil)
	ledgerMock.On("AwaitFinality", mock.Anything, ledger.TxHandle("TX_1")).
		Return(confirmed(d.DerivativeID, types.EntityDerivative, derivative.StatusExpired), nil)

	NewReconciler(e).RunOnce(context.Background())

	swept, err := e.derivatives.Get(d.DerivativeID)
	require.NoError(t, err)
	assert.Equal(t, derivative.StatusExpired, swept.Status)
	assert.False(t, swept.PendingConfirmation)
}

func TestGetDerivativeDerivesExpiry(t *testing.T) {
	e, _, _ := newTestEngine(t)

	d := &derivative.Derivative{
		DerivativeID:    "DRV_seed",
		ContractAddress: "0xabc",
		TokenID:         "3",
		Creator:         "0xcreator",
		PaymentAsset:    types.PaymentNative,
		Kind:            types.DerivativeCall,
		StrikePrice:     amt("500000000000000000"),
		Premium:         amt("20000000000000000"),
		ExpirationTime:  time.Now().Add(-time.Hour),
		Status:          derivative.StatusActive,
	}
	require.NoError(t, e.derivatives.Create(d))

	// The stored row still says ACTIVE; the read derives EXPIRED.
	got, err := e.GetDerivative(d.DerivativeID)
	require.NoError(t, err)
	assert.Equal(t, derivative.StatusExpired, got.Status)
}
