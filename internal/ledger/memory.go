package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"ekyc/pkg/domain"
)

// MemoryLedger simulates the document registry contract in process. It
// enforces the contract's verifier role and index bounds so reverts behave
// like the real thing, and supports injected failures and confirmation delay.
type MemoryLedger struct {
	mu        sync.Mutex
	owner     domain.WalletAddress
	verifiers map[domain.WalletAddress]bool
	docs      map[domain.WalletAddress][]memoryDoc
	block     uint64
	txCount   uint64
	uploads   []UploadedEvent
	verified  []VerifiedEvent
	calls     []Call
	failures  []error
	delay     time.Duration
	now       func() time.Time
}

type memoryDoc struct {
	Document
	block uint64
}

// NewMemoryLedger creates a registry owned by owner, who is also the
// default signer and an initial verifier.
func NewMemoryLedger(owner domain.WalletAddress) *MemoryLedger {
	return &MemoryLedger{
		owner:     owner,
		verifiers: map[domain.WalletAddress]bool{owner: true},
		docs:      make(map[domain.WalletAddress][]memoryDoc),
		now:       time.Now,
	}
}

// FailNext queues errors returned by the next Submit calls, in order.
func (m *MemoryLedger) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// SetConfirmationDelay makes Submit wait before "including" a transaction.
// A context that ends first yields a timeout error.
func (m *MemoryLedger) SetConfirmationDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// AddVerifierDirect grants the verifier role without a transaction.
func (m *MemoryLedger) AddVerifierDirect(addr domain.WalletAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifiers[addr] = true
}

// Calls returns every successfully included call.
func (m *MemoryLedger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MemoryLedger) Submit(ctx context.Context, call Call) (*Receipt, error) {
	m.mu.Lock()
	delay := m.delay
	var injected error
	if len(m.failures) > 0 {
		injected, m.failures = m.failures[0], m.failures[1:]
	}
	m.mu.Unlock()

	if injected != nil {
		return nil, injected
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, newError(KindTimeout, call.Method, "no receipt before deadline", ctx.Err())
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := call.Signer
	if from.IsZero() {
		from = m.owner
	}
	if err := m.apply(from, call); err != nil {
		return nil, err
	}
	m.block++
	m.txCount++
	m.calls = append(m.calls, call)
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("memory-tx-%d", m.txCount))).Hex()
	m.stampLastEvent(hash)
	return &Receipt{TxHash: hash, BlockNumber: m.block, GasUsed: 21000, From: from}, nil
}

func (m *MemoryLedger) apply(from domain.WalletAddress, call Call) error {
	revert := func(reason string) error {
		return &Error{Kind: KindRejected, Method: call.Method, Message: "execution reverted: " + reason}
	}
	switch call.Method {
	case MethodUploadDocument:
		if len(call.Args) != 2 {
			return revert("bad arguments")
		}
		hash, _ := call.Args[0].(string)
		docType, _ := call.Args[1].(string)
		m.docs[from] = append(m.docs[from], memoryDoc{
			Document: Document{DocumentHash: hash, DocumentType: docType, Status: "Pending", Timestamp: m.now().UTC()},
			block:    m.block + 1,
		})
		m.uploads = append(m.uploads, UploadedEvent{Owner: from, DocumentType: docType, DocumentHash: hash, BlockNumber: m.block + 1})
	case MethodVerifyDocument:
		if len(call.Args) != 4 {
			return revert("bad arguments")
		}
		if !m.verifiers[from] {
			return revert("caller is not a verifier")
		}
		user, _ := call.Args[0].(common.Address)
		idx, _ := call.Args[1].(*big.Int)
		status, _ := call.Args[2].(string)
		notes, _ := call.Args[3].(string)
		owner := domain.WalletFromAddress(user)
		if idx == nil || !idx.IsUint64() || idx.Uint64() >= uint64(len(m.docs[owner])) {
			return revert("invalid document index")
		}
		d := &m.docs[owner][idx.Uint64()]
		d.Status, d.Notes, d.Verifier = status, notes, from
		m.verified = append(m.verified, VerifiedEvent{Owner: owner, Verifier: from, DocIndex: idx.Uint64(), Status: status, BlockNumber: m.block + 1})
	case MethodAddVerifier, MethodRemoveVerifier:
		if !from.Equal(m.owner) {
			return revert("only owner")
		}
		addr, _ := call.Args[0].(common.Address)
		m.verifiers[domain.WalletFromAddress(addr)] = call.Method == MethodAddVerifier
	default:
		return &Error{Kind: KindRejected, Method: call.Method, Message: "unknown method"}
	}
	return nil
}

// stampLastEvent fills in the tx hash of an event appended by apply.
func (m *MemoryLedger) stampLastEvent(hash string) {
	if n := len(m.uploads); n > 0 && m.uploads[n-1].TxHash == "" {
		m.uploads[n-1].TxHash = hash
	}
	if n := len(m.verified); n > 0 && m.verified[n-1].TxHash == "" {
		m.verified[n-1].TxHash = hash
	}
}

func (m *MemoryLedger) GetDocumentCount(ctx context.Context, owner domain.WalletAddress) (uint64, error) {
	return m.GetDocumentCountAt(ctx, owner, 0)
}

func (m *MemoryLedger) GetDocumentCountAt(_ context.Context, owner domain.WalletAddress, block uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	for _, d := range m.docs[owner] {
		if block == 0 || d.block <= block {
			n++
		}
	}
	return n, nil
}

func (m *MemoryLedger) IsVerifier(_ context.Context, addr domain.WalletAddress) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifiers[addr], nil
}

func (m *MemoryLedger) GetDocument(_ context.Context, owner domain.WalletAddress, index uint64) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.docs[owner]
	if index >= uint64(len(docs)) {
		return nil, &Error{Kind: KindRejected, Method: MethodGetDocument, Message: "execution reverted: invalid document index"}
	}
	d := docs[index].Document
	return &d, nil
}

// SignerFor mirrors Submit: a wallet signs as itself and an empty signer as
// the owner.
func (m *MemoryLedger) SignerFor(wallet domain.WalletAddress) (domain.WalletAddress, bool) {
	if wallet.IsZero() {
		return m.owner, true
	}
	return wallet, true
}

func (m *MemoryLedger) LatestBlock(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.block, nil
}

func (m *MemoryLedger) UploadedEvents(_ context.Context, from, to uint64) ([]UploadedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UploadedEvent
	for _, ev := range m.uploads {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryLedger) VerifiedEvents(_ context.Context, from, to uint64) ([]VerifiedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VerifiedEvent
	for _, ev := range m.verified {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

var (
	_ Ledger         = (*MemoryLedger)(nil)
	_ EventSource    = (*MemoryLedger)(nil)
	_ SignerResolver = (*MemoryLedger)(nil)
)
