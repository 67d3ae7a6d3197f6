package crypt

// Hard marks a derivation index as hardened.
const Hard uint32 = 1 << 31

// CIP-1852 path constants: m / 1852' / 1815' / account' / role / index.
const (
	PurposeShelley uint32 = 1852
	CoinType       uint32 = 1815

	RoleExternal uint32 = 0
	RoleStaking  uint32 = 2
)

// Path is a sequence of derivation indices applied left to right.
type Path []uint32

// SpendingPath returns the full path of a spending (payment) key.
func SpendingPath(account, index uint32) Path {
	return Path{PurposeShelley | Hard, CoinType | Hard, account | Hard, RoleExternal, index}
}

// StakingPath returns the full path of a staking key.
func StakingPath(account, index uint32) Path {
	return Path{PurposeShelley | Hard, CoinType | Hard, account | Hard, RoleStaking, index}
}

// Account holds the derived spending and staking role keys of a single
// CIP-1852 account. Leaf keys are soft-derived from the role keys, so an
// Account is enough to produce every address of the account.
type Account struct {
	spend *PrivateKey
	stake *PrivateKey
}

// NewAccount derives account number index from the root key.
func NewAccount(root *PrivateKey, index uint32) *Account {
	base := root.DerivePath(Path{PurposeShelley | Hard, CoinType | Hard, index | Hard})
	return &Account{
		spend: base.Derive(RoleExternal),
		stake: base.Derive(RoleStaking),
	}
}

// SpendingKey returns the payment key at index.
func (a *Account) SpendingKey(index uint32) *PrivateKey {
	return a.spend.Derive(index)
}

// StakingKey returns the staking key at index.
func (a *Account) StakingKey(index uint32) *PrivateKey {
	return a.stake.Derive(index)
}
