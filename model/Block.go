package model

import "encoding/json"

// BlockHeader is the node's view of a block's position in its best chain. NextHash is empty
// when the node knows no successor.
type BlockHeader struct {
	Hash         string `json:"hash"`
	Height       uint32 `json:"height"`
	PreviousHash string `json:"previousblockhash,omitempty"`
	NextHash     string `json:"nextblockhash,omitempty"`
}

// BlockOverview is a block with its ordered transaction ids.
type BlockOverview struct {
	Hash         string   `json:"hash"`
	Height       uint32   `json:"height"`
	PreviousHash string   `json:"previousblockhash,omitempty"`
	TxIDs        []string `json:"tx"`
}

// Input references a previous output. Coinbase inputs have an empty PrevTxID.
type Input struct {
	PrevTxID    string      `json:"prevTxId"`
	OutputIndex uint32      `json:"outputIndex"`
	Address     string      `json:"address,omitempty"`
	Satoshis    json.Number `json:"satoshis,omitempty"`
}

type Output struct {
	Address  string      `json:"address,omitempty"`
	Satoshis json.Number `json:"satoshis"`
}

// Transaction is a detailed transaction as reported by the node. Height is -1 while unconfirmed.
type Transaction struct {
	Hash    string   `json:"hash"`
	Height  int64    `json:"height"`
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// Block is a fully fetched block, ready to be applied to a store.
type Block struct {
	Hash         string         `json:"hash"`
	Height       uint32         `json:"height"`
	PreviousHash string         `json:"previousblockhash,omitempty"`
	Transactions []*Transaction `json:"transactions"`
}

// ChainPointer identifies the most recently applied block. The zero value is the genesis
// sentinel: nothing has been applied yet.
type ChainPointer struct {
	Hash   string `json:"hash"`
	Height uint32 `json:"height"`
}

func (p ChainPointer) IsGenesis() bool {
	return p.Hash == ""
}

// Balance is one entry of the rich list.
type Balance struct {
	Address string `json:"address"`
	Balance Amount `json:"balance"`
}
