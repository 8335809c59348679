package queue

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pcristin/zeroland-landing/internal/contracts"
)

// TxEvent is published once per transaction when it reaches a terminal
// state (or fails to be submitted).
type TxEvent struct {
	Network         string         `json:"network"`
	ChainID         uint64         `json:"chain_id"`
	Kind            string         `json:"kind"`
	Status          string         `json:"status"`
	TxHash          string         `json:"tx_hash,omitempty"`
	ExplorerURL     string         `json:"explorer_url,omitempty"`
	From            string         `json:"from"`
	To              string         `json:"to"`
	Nonce           uint64         `json:"nonce"`
	ValueWei        string         `json:"value_wei"`
	Gas             uint64         `json:"gas"`
	GasPriceWei     string         `json:"gas_price_wei,omitempty"`
	MaxFeePerGasWei string         `json:"max_fee_per_gas_wei,omitempty"`
	MaxPriorityFee  string         `json:"max_priority_fee_wei,omitempty"`
	Type            uint8          `json:"type"`
	Input           string         `json:"input"`
	Method          *DecodedMethod `json:"method,omitempty"`
	Receipt         *ReceiptInfo   `json:"receipt,omitempty"`
	Error           string         `json:"error,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

type DecodedMethod struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type ReceiptInfo struct {
	Status            uint64 `json:"status"`
	BlockNumber       uint64 `json:"block_number"`
	BlockHash         string `json:"block_hash"`
	GasUsed           uint64 `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price_wei,omitempty"`
	TxIndex           uint   `json:"transaction_index"`
	LogsCount         int    `json:"logs_count"`
}

// NewTxEvent describes a signed transaction. Calldata the contracts package
// knows is decoded into Method.
func NewTxEvent(network string, kind string, tx *types.Transaction, from common.Address) TxEvent {
	ev := TxEvent{
		Network:   network,
		ChainID:   tx.ChainId().Uint64(),
		Kind:      kind,
		Status:    "pending",
		TxHash:    tx.Hash().Hex(),
		From:      from.Hex(),
		Nonce:     tx.Nonce(),
		ValueWei:  tx.Value().String(),
		Gas:       tx.Gas(),
		Type:      tx.Type(),
		Input:     hexutil.Encode(tx.Data()),
		Timestamp: time.Now().UTC(),
	}
	if to := tx.To(); to != nil {
		ev.To = to.Hex()
	}
	if tx.Type() == types.LegacyTxType {
		ev.GasPriceWei = tx.GasPrice().String()
	} else {
		ev.MaxFeePerGasWei = tx.GasFeeCap().String()
		ev.MaxPriorityFee = tx.GasTipCap().String()
	}
	if m, err := contracts.DecodeInput(tx.Data()); err == nil && m != nil {
		ev.Method = &DecodedMethod{Name: m.Name, Args: m.Args}
	}
	return ev
}

func (e *TxEvent) SetReceipt(r *types.Receipt) {
	if r == nil {
		return
	}
	info := &ReceiptInfo{
		Status:    r.Status,
		BlockHash: r.BlockHash.Hex(),
		GasUsed:   r.GasUsed,
		TxIndex:   r.TransactionIndex,
		LogsCount: len(r.Logs),
	}
	if r.BlockNumber != nil {
		info.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		info.EffectiveGasPrice = r.EffectiveGasPrice.String()
	}
	e.Receipt = info
}

func (e *TxEvent) SetError(err error) {
	if err != nil {
		e.Error = err.Error()
	}
}

// Key is the partition key: the tx hash, or chain/kind/nonce before a hash
// exists.
func (e TxEvent) Key() string {
	if e.TxHash != "" {
		return e.TxHash
	}
	return fmt.Sprintf("%d/%s/%d", e.ChainID, e.Kind, e.Nonce)
}
