package token

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20Config configures the on-chain token adapter.
type ERC20Config struct {
	RPCURL        string
	PrivateKeyHex string
	// ReceiptTimeout bounds how long a transfer waits to be mined.
	ReceiptTimeout time.Duration
}

// ERC20 moves tokens through a JSON-RPC endpoint, signing with a single key.
// The signer must be the escrow holder: it is the spender on TransferFrom and
// the holder on Transfer.
type ERC20 struct {
	client  *ethclient.Client
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	signer  common.Address
	chainID *big.Int
	timeout time.Duration
}

// NewERC20 dials the RPC endpoint and prepares a keyed transactor.
func NewERC20(ctx context.Context, cfg ERC20Config) (*ERC20, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for token transfers")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &ERC20{
		client:  cli,
		abi:     parsed,
		key:     key,
		signer:  crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		timeout: timeout,
	}, nil
}

// Signer returns the address transactions are sent from.
func (e *ERC20) Signer() common.Address {
	return e.signer
}

// Close releases the RPC connection.
func (e *ERC20) Close() {
	e.client.Close()
}

// Ping checks the RPC endpoint is reachable.
func (e *ERC20) Ping(ctx context.Context) error {
	_, err := e.client.BlockNumber(ctx)
	return err
}

// TransferFrom implements Token.
func (e *ERC20) TransferFrom(ctx context.Context, tokenAddr, owner, spender common.Address, amount *big.Int) error {
	if spender != e.signer {
		return fmt.Errorf("%w: spender %s is not the signing account", ErrTransferFailed, spender.Hex())
	}
	contract := e.bind(tokenAddr)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return fmt.Errorf("%w: read allowance: %v", ErrTransferFailed, err)
	}
	if len(out) == 1 {
		if allowance, ok := out[0].(*big.Int); ok && allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s has not approved %s for %s", ErrInsufficientAllowance, owner.Hex(), spender.Hex(), amount)
		}
	}

	return e.transact(ctx, contract, "transferFrom", owner, spender, amount)
}

// Transfer implements Token.
func (e *ERC20) Transfer(ctx context.Context, tokenAddr, holder, recipient common.Address, amount *big.Int) error {
	if holder != e.signer {
		return fmt.Errorf("%w: holder %s is not the signing account", ErrTransferFailed, holder.Hex())
	}
	return e.transact(ctx, e.bind(tokenAddr), "transfer", recipient, amount)
}

func (e *ERC20) bind(tokenAddr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(tokenAddr, e.abi, e.client, e.client, e.client)
}

func (e *ERC20) transact(ctx context.Context, contract *bind.BoundContract, method string, params ...interface{}) error {
	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("%w: %s tx: %v", ErrTransferFailed, method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, e.client, tx)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s: %v", ErrTransferFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s reverted in tx %s", ErrTransferFailed, method, tx.Hash().Hex())
	}
	return nil
}
