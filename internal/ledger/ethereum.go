package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"ekyc/internal/platform/config"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/circuit"
	pkgsync "ekyc/pkg/platform/sync"
	"ekyc/pkg/platform/tracer"
)

// Backend is the subset of *ethclient.Client the adapter uses.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthereumLedger talks to a JSON-RPC node. Submissions are serialized per
// signing key; nonces are read from the node immediately before each send.
type EthereumLedger struct {
	backend  Backend
	contract common.Address
	chainID  *big.Int
	signer   types.Signer
	keys     *Keyring
	cfg      config.Ledger
	locks    *pkgsync.KeyedMutex
	breaker  *circuit.Breaker
	metrics  *Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

type Option func(*EthereumLedger)

func WithMetrics(m *Metrics) Option         { return func(l *EthereumLedger) { l.metrics = m } }
func WithTracer(t tracer.Tracer) Option     { return func(l *EthereumLedger) { l.tracer = t } }
func WithLogger(lg *slog.Logger) Option     { return func(l *EthereumLedger) { l.logger = lg } }
func WithBreaker(b *circuit.Breaker) Option { return func(l *EthereumLedger) { l.breaker = b } }

// Dial connects to cfg.RPCURL and builds the adapter.
func Dial(ctx context.Context, cfg config.Ledger, keys *Keyring, opts ...Option) (*EthereumLedger, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger node: %w", err)
	}
	return NewEthereumLedger(client, cfg, keys, opts...), client, nil
}

func NewEthereumLedger(backend Backend, cfg config.Ledger, keys *Keyring, opts ...Option) *EthereumLedger {
	chainID := big.NewInt(cfg.ChainID)
	l := &EthereumLedger{
		backend:  backend,
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  chainID,
		signer:   types.LatestSignerForChainID(chainID),
		keys:     keys,
		cfg:      cfg,
		locks:    pkgsync.NewKeyedMutex(),
		tracer:   tracer.NewNoop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil {
		l.breaker = circuit.New("ledger",
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)
	}
	if l.cfg.ReceiptPoll <= 0 {
		l.cfg.ReceiptPoll = time.Second
	}
	return l
}

// Submit signs, broadcasts and waits for inclusion of call.
func (l *EthereumLedger) Submit(ctx context.Context, call Call) (receipt *Receipt, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.submit", tracer.String("method", call.Method))
	defer func() {
		span.End(err)
		l.metrics.observeOutcome(call.Method, outcome(err))
		l.recordBreaker(err)
	}()

	if !l.breaker.Allow() {
		return nil, newError(KindUnavailable, call.Method, "circuit open", nil)
	}

	key, from, ok := l.keys.Resolve(call.Signer)
	if !ok {
		return nil, newError(KindRejected, call.Method, "no signing key available", nil)
	}
	span.SetAttributes(tracer.String("from", from.String()))

	data, err := RegistryABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, newError(KindRejected, call.Method, "encode call", err)
	}

	lockStart := time.Now()
	unlock := l.locks.Lock(from.String())
	defer unlock()
	l.metrics.observeLockWait(time.Since(lockStart).Seconds())

	if err := l.preflight(ctx, call.Method, from, data); err != nil {
		return nil, err
	}

	nonce, err := l.pendingNonce(ctx, from)
	if err != nil {
		return nil, classify(call.Method, "read nonce", err)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &l.contract,
		Value:    big.NewInt(0),
		Gas:      l.cfg.GasLimit,
		GasPrice: l.cfg.GasPriceWei(),
		Data:     data,
	}), l.signer, key)
	if err != nil {
		return nil, newError(KindRejected, call.Method, "sign transaction", err)
	}

	sendCtx, cancel := l.callContext(ctx)
	err = l.backend.SendTransaction(sendCtx, tx)
	cancel()
	if err != nil {
		return nil, classify(call.Method, "send transaction", err)
	}
	txHash := tx.Hash().Hex()
	span.AddEvent("tx.sent", tracer.String("tx_hash", txHash), tracer.Int64("nonce", int64(nonce)))
	l.logger.InfoContext(ctx, "ledger transaction sent",
		"method", call.Method,
		"tx_hash", txHash,
		"from", from.String(),
		"nonce", nonce,
	)

	sent := time.Now()
	r, err := l.waitReceipt(ctx, tx.Hash())
	if err != nil {
		var le *Error
		if errors.As(err, &le) {
			le.Method = call.Method
			le.TxHash = txHash
		}
		return nil, err
	}
	l.metrics.observeConfirmation(time.Since(sent).Seconds())

	if r.Status == types.ReceiptStatusFailed {
		return nil, &Error{Kind: KindRejected, Method: call.Method, Message: "execution reverted", TxHash: txHash}
	}
	return &Receipt{
		TxHash:      txHash,
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     r.GasUsed,
		From:        from,
	}, nil
}

// preflight simulates the call so reverts surface before gas is spent.
func (l *EthereumLedger) preflight(ctx context.Context, method string, from domain.WalletAddress, data []byte) error {
	cctx, cancel := l.callContext(ctx)
	defer cancel()
	_, err := l.backend.CallContract(cctx, ethereum.CallMsg{
		From: from.Address(),
		To:   &l.contract,
		Gas:  l.cfg.GasLimit,
		Data: data,
	}, nil)
	if err != nil {
		return classify(method, "simulate call", err)
	}
	return nil
}

func (l *EthereumLedger) pendingNonce(ctx context.Context, from domain.WalletAddress) (uint64, error) {
	cctx, cancel := l.callContext(ctx)
	defer cancel()
	return l.backend.PendingNonceAt(cctx, from.Address())
}

// waitReceipt polls until the receipt appears or ConfirmTimeout elapses.
func (l *EthereumLedger) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, l.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.ReceiptPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		r, err := l.backend.TransactionReceipt(wctx, hash)
		switch {
		case err == nil && r != nil:
			return r, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			lastErr = err
		}

		select {
		case <-wctx.Done():
			return nil, newError(KindTimeout, "", fmt.Sprintf("no receipt within %s", l.cfg.ConfirmTimeout), lastErr)
		case <-ticker.C:
		}
	}
}

func (l *EthereumLedger) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.cfg.CallTimeout)
}

func (l *EthereumLedger) recordBreaker(err error) {
	switch {
	case err == nil, errors.Is(err, ErrRejected):
		if l.breaker.RecordSuccess() {
			l.metrics.setBreakerOpen(false)
			l.logger.Info("ledger circuit closed")
		}
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		if l.breaker.RecordFailure() {
			l.metrics.setBreakerOpen(true)
			l.logger.Warn("ledger circuit opened", "error", err)
		}
	}
}

func (l *EthereumLedger) GetDocumentCount(ctx context.Context, owner domain.WalletAddress) (uint64, error) {
	return l.GetDocumentCountAt(ctx, owner, 0)
}

func (l *EthereumLedger) GetDocumentCountAt(ctx context.Context, owner domain.WalletAddress, block uint64) (uint64, error) {
	var at *big.Int
	if block > 0 {
		at = new(big.Int).SetUint64(block)
	}
	out, err := l.view(ctx, MethodGetDocumentCount, at, owner.Address())
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, newError(KindRejected, MethodGetDocumentCount, "unexpected return type", nil)
	}
	return n.Uint64(), nil
}

func (l *EthereumLedger) IsVerifier(ctx context.Context, addr domain.WalletAddress) (bool, error) {
	out, err := l.view(ctx, MethodIsVerifier, nil, addr.Address())
	if err != nil {
		return false, err
	}
	ok, isBool := out[0].(bool)
	if !isBool {
		return false, newError(KindRejected, MethodIsVerifier, "unexpected return type", nil)
	}
	return ok, nil
}

func (l *EthereumLedger) GetDocument(ctx context.Context, owner domain.WalletAddress, index uint64) (*Document, error) {
	out, err := l.view(ctx, MethodGetDocument, nil, owner.Address(), new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, newError(KindRejected, MethodGetDocument, "unexpected return arity", nil)
	}
	hash, _ := out[0].(string)
	docType, _ := out[1].(string)
	status, _ := out[2].(string)
	ts, _ := out[3].(*big.Int)
	verifier, _ := out[4].(common.Address)
	notes, _ := out[5].(string)

	doc := &Document{DocumentHash: hash, DocumentType: docType, Status: status, Notes: notes}
	if ts != nil {
		doc.Timestamp = time.Unix(ts.Int64(), 0).UTC()
	}
	if verifier != (common.Address{}) {
		doc.Verifier = domain.WalletFromAddress(verifier)
	}
	return doc, nil
}

// Health reports whether the node answers.
func (l *EthereumLedger) Health(ctx context.Context) error {
	_, err := l.backend.BlockNumber(ctx)
	return err
}

// OperatorAddress is the fallback signer.
func (l *EthereumLedger) OperatorAddress() domain.WalletAddress { return l.keys.Operator() }

// SignerFor reports the msg.sender a call submitted for wallet carries.
func (l *EthereumLedger) SignerFor(wallet domain.WalletAddress) (domain.WalletAddress, bool) {
	return l.keys.SignerFor(wallet)
}

func (l *EthereumLedger) view(ctx context.Context, method string, block *big.Int, args ...any) ([]any, error) {
	data, err := RegistryABI.Pack(method, args...)
	if err != nil {
		return nil, newError(KindRejected, method, "encode call", err)
	}
	cctx, cancel := l.callContext(ctx)
	defer cancel()
	raw, err := l.backend.CallContract(cctx, ethereum.CallMsg{To: &l.contract, Data: data}, block)
	if err != nil {
		return nil, classify(method, "call contract", err)
	}
	out, err := RegistryABI.Unpack(method, raw)
	if err != nil {
		return nil, newError(KindRejected, method, "decode result", err)
	}
	if len(out) == 0 {
		return nil, newError(KindRejected, method, "empty result", nil)
	}
	return out, nil
}

// classify maps node errors: a JSON-RPC error means the node answered and
// refused. Anything else is transport. Only waitReceipt reports timeouts.
func classify(method, msg string, err error) *Error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || strings.Contains(err.Error(), "execution reverted") {
		return newError(KindRejected, method, msg, err)
	}
	return newError(KindUnavailable, method, msg, err)
}

func outcome(err error) string {
	var le *Error
	if err == nil {
		return "confirmed"
	}
	if errors.As(err, &le) {
		return string(le.Kind)
	}
	return "error"
}

var (
	_ Ledger         = (*EthereumLedger)(nil)
	_ SignerResolver = (*EthereumLedger)(nil)
)
