package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"ekyc/pkg/domain"
)

// UploadedEvent is a decoded DocumentUploaded log.
type UploadedEvent struct {
	Owner        domain.WalletAddress
	DocumentType string
	DocumentHash string
	TxHash       string
	BlockNumber  uint64
}

// VerifiedEvent is a decoded DocumentVerified log.
type VerifiedEvent struct {
	Owner       domain.WalletAddress
	Verifier    domain.WalletAddress
	DocIndex    uint64
	Status      string
	TxHash      string
	BlockNumber uint64
}

// EventSource exposes contract logs for block ranges (inclusive).
type EventSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	UploadedEvents(ctx context.Context, from, to uint64) ([]UploadedEvent, error)
	VerifiedEvents(ctx context.Context, from, to uint64) ([]VerifiedEvent, error)
}

func (l *EthereumLedger) LatestBlock(ctx context.Context) (uint64, error) {
	cctx, cancel := l.callContext(ctx)
	defer cancel()
	n, err := l.backend.BlockNumber(cctx)
	if err != nil {
		return 0, classify("blockNumber", "read head", err)
	}
	return n, nil
}

func (l *EthereumLedger) UploadedEvents(ctx context.Context, from, to uint64) ([]UploadedEvent, error) {
	logs, err := l.filter(ctx, EventDocumentUploaded, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]UploadedEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 2 {
			continue
		}
		var data struct {
			DocumentType string
			DocumentHash string
		}
		if err := RegistryABI.UnpackIntoInterface(&data, EventDocumentUploaded, lg.Data); err != nil {
			return nil, newError(KindRejected, EventDocumentUploaded, "decode log", err)
		}
		out = append(out, UploadedEvent{
			Owner:        domain.WalletFromAddress(common.BytesToAddress(lg.Topics[1].Bytes())),
			DocumentType: data.DocumentType,
			DocumentHash: data.DocumentHash,
			TxHash:       lg.TxHash.Hex(),
			BlockNumber:  lg.BlockNumber,
		})
	}
	return out, nil
}

func (l *EthereumLedger) VerifiedEvents(ctx context.Context, from, to uint64) ([]VerifiedEvent, error) {
	logs, err := l.filter(ctx, EventDocumentVerified, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]VerifiedEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		var data struct {
			DocIndex *big.Int
			Status   string
		}
		if err := RegistryABI.UnpackIntoInterface(&data, EventDocumentVerified, lg.Data); err != nil {
			return nil, newError(KindRejected, EventDocumentVerified, "decode log", err)
		}
		ev := VerifiedEvent{
			Owner:       domain.WalletFromAddress(common.BytesToAddress(lg.Topics[1].Bytes())),
			Verifier:    domain.WalletFromAddress(common.BytesToAddress(lg.Topics[2].Bytes())),
			Status:      data.Status,
			TxHash:      lg.TxHash.Hex(),
			BlockNumber: lg.BlockNumber,
		}
		if data.DocIndex != nil {
			ev.DocIndex = data.DocIndex.Uint64()
		}
		out = append(out, ev)
	}
	return out, nil
}

func (l *EthereumLedger) filter(ctx context.Context, event string, from, to uint64) ([]types.Log, error) {
	cctx, cancel := l.callContext(ctx)
	defer cancel()
	logs, err := l.backend.FilterLogs(cctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{RegistryABI.Events[event].ID}},
	})
	if err != nil {
		return nil, classify(event, "filter logs", err)
	}
	return logs, nil
}

var _ EventSource = (*EthereumLedger)(nil)

// Anchor ties a locally stored upload to its on-chain position.
type Anchor struct {
	Owner       domain.WalletAddress
	ContentID   string
	TxHash      string
	ChainIndex  uint64
	BlockNumber uint64
}
