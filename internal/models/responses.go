package models

// BalanceRecord is the body of a successful balance lookup
type BalanceRecord struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// SignatureRecord is one entry of a transaction history response
type SignatureRecord struct {
	Signature string `json:"signature"`
}

// InvalidAddressMessage is the fixed body returned for undecodable addresses
const InvalidAddressMessage = "Invalid address"
