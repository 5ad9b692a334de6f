// Package chain wraps a go-ethereum ethclient.Client with the facade
// C1 needs: retried reads, typed contract calls against the Tangle
// router / blueprint service manager / delegation / operator-status
// contracts, transaction submission, and receipt-based event mining.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tangle-network/avs-operator/chain/bindings"
)

// Addresses pins the on-chain contracts the client talks to. The
// blueprint service manager address is per-blueprint and is looked up
// from the router at runtime; the rest are fixed at startup.
type Addresses struct {
	Router              common.Address
	MultiAssetDelegation common.Address
	OperatorStatusRegistry common.Address
}

// Client is the chain-facing facade every other component (producer,
// dispatcher, aggregation, gateway) depends on instead of touching
// ethclient directly.
type Client struct {
	eth       *ethclient.Client
	addresses Addresses
	chainID   *big.Int
	key       *ecdsaSigner
	limiter   *rate.Limiter
	log       zerolog.Logger

	router  *bind.BoundContract
	mad     *bind.BoundContract
	statusR *bind.BoundContract
}

// ecdsaSigner bundles the operator's signing key with its derived
// address, kept private to this package so callers can't reach the raw
// key material through the facade.
type ecdsaSigner struct {
	privHex string
	address common.Address
}

// Config controls Client construction.
type Config struct {
	RPCURL        string
	Addresses     Addresses
	SigningKeyHex string // hex-encoded secp256k1 private key, no "0x" prefix; empty for a read-only client
	// RPCRateLimit caps outbound JSON-RPC calls per second; zero disables limiting.
	RPCRateLimit rate.Limit
}

// Dial connects to the configured RPC endpoint and resolves the chain
// ID, building the bound contract handles used by every typed call.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: fetch chain id: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RPCRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RPCRateLimit, int(cfg.RPCRateLimit)+1)
	}

	c := &Client{
		eth:       eth,
		addresses: cfg.Addresses,
		chainID:   chainID,
		limiter:   limiter,
		log:       log.With().Str("component", "chain").Logger(),
		router:    bind.NewBoundContract(cfg.Addresses.Router, bindings.TangleRouterABI, eth, eth, eth),
		mad:       bind.NewBoundContract(cfg.Addresses.MultiAssetDelegation, bindings.MultiAssetDelegationABI, eth, eth, eth),
		statusR:   bind.NewBoundContract(cfg.Addresses.OperatorStatusRegistry, bindings.OperatorStatusRegistryABI, eth, eth, eth),
	}

	if cfg.SigningKeyHex != "" {
		priv, err := crypto.HexToECDSA(cfg.SigningKeyHex)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: parse signing key: %w", err)
		}
		c.key = &ecdsaSigner{privHex: cfg.SigningKeyHex, address: crypto.PubkeyToAddress(priv.PublicKey)}
	}

	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// ChainID returns the resolved chain id.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// OperatorAddress returns the address derived from the configured
// signing key. Returns the zero address if the client was constructed
// read-only; callers that might run read-only should check HasSigner first.
func (c *Client) OperatorAddress() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return c.key.address
}

// HasSigner reports whether the client can submit transactions.
func (c *Client) HasSigner() bool { return c.key != nil }

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// --- pure reads -----------------------------------------------------

// BlockNumber returns the latest block number known to the RPC
// endpoint, retrying transient failures.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return withRetry(ctx, c.log, "block_number", func(ctx context.Context) (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
}

// HeaderByNumber returns the header at number, or the latest header if
// number is nil.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.log, "header_by_number", func(ctx context.Context) (*types.Header, error) {
		return c.eth.HeaderByNumber(ctx, number)
	})
}

// FilterLogs returns logs matching q, retrying every RPC failure
// (range-too-large and rate-limit responses included) until it succeeds
// or ctx is done; the range in q is never shrunk.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.log, "filter_logs", func(ctx context.Context) ([]types.Log, error) {
		return c.eth.FilterLogs(ctx, q)
	})
}

// TransactionReceipt fetches the receipt for txHash, retrying until it
// is mined or ctx is cancelled.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.log, "transaction_receipt", func(ctx context.Context) (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, txHash)
	})
}

// --- aggregate reads --------------------------------------------------

// GetServiceOperators returns the operator set currently bonded to a
// service.
func (c *Client) GetServiceOperators(ctx context.Context, serviceID uint64) ([]common.Address, error) {
	out, err := c.call(ctx, c.router, "getServiceOperators", serviceID)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// GetOperatorStake returns an operator's total restaked exposure from
// the delegation contract, used by the stake-weighted threshold path.
func (c *Client) GetOperatorStake(ctx context.Context, operator common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.mad, "getOperatorStake", operator)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// IsOperatorActive reports whether operator is currently bonded and
// active for serviceID.
func (c *Client) IsOperatorActive(ctx context.Context, serviceID uint64, operator common.Address) (bool, error) {
	out, err := c.call(ctx, c.statusR, "isOperatorActive", serviceID, operator)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// IsPermittedCallerAt runs the isPermittedCaller eth_call against an
// arbitrary router-shaped contract address, used by the x402 gateway's
// RestrictedPaid policy check: a job policy may point at a different
// deployment than the client's own configured router.
func (c *Client) IsPermittedCallerAt(ctx context.Context, contractAddr common.Address, serviceID uint64, caller common.Address) (bool, error) {
	bc := bind.NewBoundContract(contractAddr, bindings.TangleRouterABI, c.eth, c.eth, c.eth)
	out, err := c.call(ctx, bc, "isPermittedCaller", serviceID, caller)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// RequiresAggregation reports whether a (service, jobIndex) pair needs
// BLS-aggregated submission rather than a direct one.
func (c *Client) RequiresAggregation(ctx context.Context, serviceID uint64, jobIndex uint8) (bool, error) {
	out, err := c.call(ctx, c.router, "requiresAggregation", serviceID, jobIndex)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// AggregationThreshold returns the configured bps threshold and
// threshold-type discriminant (0 = count-based, 1 = stake-weighted) for
// a job.
func (c *Client) AggregationThreshold(ctx context.Context, serviceID uint64, jobIndex uint8) (bps uint16, kind uint8, err error) {
	out, callErr := c.call(ctx, c.router, "getAggregationThreshold", serviceID, jobIndex)
	if callErr != nil {
		return 0, 0, callErr
	}
	return out[0].(uint16), out[1].(uint8), nil
}

func (c *Client) call(ctx context.Context, bc *bind.BoundContract, method string, args ...any) ([]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return withRetry(ctx, c.log, method, func(ctx context.Context) ([]any, error) {
		opts := &bind.CallOpts{Context: ctx}
		var out []any
		if err := bc.Call(opts, &out, method, args...); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// --- writes ------------------------------------------------------------

// transactOpts builds a fresh bind.TransactOpts from the configured
// signing key; the nonce and gas price are resolved by go-ethereum's
// default NonceAt/SuggestGasPrice flow via bind.NewKeyedTransactorWithChainID.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, fmt.Errorf("chain: no signing key configured, client is read-only")
	}
	priv, err := crypto.HexToECDSA(c.key.privHex)
	if err != nil {
		return nil, fmt.Errorf("chain: reparse signing key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(priv, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// SubmitResult submits a direct (non-aggregated) job result.
func (c *Client) SubmitResult(ctx context.Context, serviceID, callID uint64, result []byte) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.router.Transact(opts, "submitResult", serviceID, callID, result)
}

// AggregatedSubmission carries the BLS aggregate + signer bitmap needed
// to submit a threshold-aggregated result.
type AggregatedSubmission struct {
	ServiceID    uint64
	CallID       uint64
	Result       []byte
	SignerBitmap *big.Int
	AggSignature [2]*big.Int
	AggPubkey    [4]*big.Int
}

// SubmitAggregatedResult submits a BLS-aggregated job result.
func (c *Client) SubmitAggregatedResult(ctx context.Context, s AggregatedSubmission) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.router.Transact(opts, "submitAggregatedResult",
		s.ServiceID, s.CallID, s.Result, s.SignerBitmap, s.AggSignature, s.AggPubkey)
}

// SubmitJob submits a new job invocation; the operator's own pipeline
// does not call it.
func (c *Client) SubmitJob(ctx context.Context, serviceID uint64, jobIndex uint8, inputs []byte) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.router.Transact(opts, "submitJob", serviceID, jobIndex, inputs)
}

// WaitMined blocks until tx is mined or ctx is cancelled, polling its
// receipt at a fixed interval of retryBaseDelay.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBaseDelay):
		}
	}
}
