package types

// PaymentNative marks a product as denominated in the platform's native
// token rather than a fungible token contract.
const PaymentNative = "NATIVE"

// Entity kinds carried on ledger intents and change notifications.
const (
	EntityLoan       = "loan"
	EntityRental     = "rental"
	EntityFraction   = "fraction"
	EntityDerivative = "derivative"
)

// Derivative contract kinds. The calculation library and the derivative
// lifecycle machine both dispatch on these tags.
const (
	DerivativeCall   = "CALL_OPTION"
	DerivativePut    = "PUT_OPTION"
	DerivativeFuture = "FUTURE"
	DerivativeIndex  = "INDEX"
)

// EscrowAccount is the ledger-side custody account products settle through.
const EscrowAccount = "ESCROW"

// AssetRef identifies the NFT held in custody for a product: the token
// contract plus the token id within it.
type AssetRef struct {
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
}

func (a AssetRef) String() string {
	return a.ContractAddress + "/" + a.TokenID
}

// EffectKind enumerates the declarative instructions a state machine may
// hand to the coordinator. Machines never call the Ledger themselves.
type EffectKind string

const (
	// EffectTransferCustody moves the custody asset between parties.
	EffectTransferCustody EffectKind = "TRANSFER_CUSTODY"
	// EffectCreditAccount moves a payment amount between parties.
	EffectCreditAccount EffectKind = "CREDIT_ACCOUNT"
	// EffectBurnShares retires the full fractional share supply on buyback.
	EffectBurnShares EffectKind = "BURN_SHARES"
)

// Effect is a single declarative side effect of a lifecycle transition,
// executed atomically by the Ledger as part of the submitted intent.
type Effect struct {
	Kind   EffectKind `json:"kind"`
	Asset  AssetRef   `json:"asset,omitempty"`
	From   string     `json:"from,omitempty"`
	To     string     `json:"to,omitempty"`
	Amount Amount     `json:"amount,omitempty"`
	Memo   string     `json:"memo,omitempty"`
}

// TransferCustody builds a custody-movement effect.
func TransferCustody(asset AssetRef, from, to, memo string) Effect {
	return Effect{Kind: EffectTransferCustody, Asset: asset, From: from, To: to, Memo: memo}
}

// CreditAccount builds a payment-movement effect.
func CreditAccount(from, to string, amount Amount, memo string) Effect {
	return Effect{Kind: EffectCreditAccount, From: from, To: to, Amount: amount, Memo: memo}
}
