package contact

// Contact is an entry in a wallet owner's address book.
type Contact struct {
	ID            string
	OwnerWallet   string
	Name          string
	WalletAddress string
	Email         string
	Phone         string
}
