package domain

// BlockDetails is the per-block data shared by processors through the block_details preloader.
type BlockDetails struct {
	Number    uint64 `json:"number"`
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
	TxCount   int    `json:"transactionCount"`
}
