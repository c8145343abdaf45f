package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lmittmann/w3"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
)

const creationGasLimit = uint64(10_000_000)

var (
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
	ErrNoSigner            = errors.New("client has no signing key")
	ErrTxReverted          = errors.New("transaction reverted")

	funcHasRole      = w3.MustNewFunc("hasRole(bytes32,address)", "bool")
	funcGrantRole    = w3.MustNewFunc("grantRole(bytes32,address)", "")
	funcRenounceRole = w3.MustNewFunc("renounceRole(bytes32,address)", "")
)

type (
	// TxResult identifies a confirmed transaction. Address is set for contract creations.
	TxResult struct {
		Hash    common.Hash
		Block   uint64
		Address common.Address
	}

	Client struct {
		eth            *ethclient.Client
		chainID        *big.Int
		key            *ecdsa.PrivateKey
		from           common.Address
		confirmTimeout time.Duration
		logger         *slog.Logger
	}
)

// Dial connects to rpcURL and fetches its chain id. An empty privateKeyHex gives a
// read-only client.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, confirmTimeout time.Duration) (*Client, error) {
	log := logger.Named("chain_client").With("url", rpcURL)

	log.Info("dialing the RPC")
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	c := &Client{
		eth:            eth,
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		logger:         log.With("chain_id", chainID),
	}

	if privateKeyHex != "" {
		key, from, err := ParsePrivateKey(privateKeyHex)
		if err != nil {
			eth.Close()
			return nil, err
		}
		c.key = key
		c.from = from
		c.logger = c.logger.With("deployer", from)
	}

	c.logger.Info("connected")

	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) ChainID() uint64 {
	return c.chainID.Uint64()
}

// Deployer is the signer's address, zero for a read-only client.
func (c *Client) Deployer() common.Address {
	return c.from
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// HasCode reports whether a contract is deployed at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get code at %s: %w", addr, err)
	}
	return len(code) > 0, nil
}

func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	value, err := c.eth.StorageAt(ctx, addr, slot, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read storage of %s: %w", addr, err)
	}
	return common.BytesToHash(value), nil
}

// DeployContract sends a contract creation and waits for it to be confirmed.
func (c *Client) DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, constructorArgs ...any) (TxResult, error) {
	if c.key == nil {
		return TxResult{}, ErrNoSigner
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to create transactor: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	auth.Context = ctx
	auth.GasLimit = creationGasLimit
	auth.GasPrice = gasPrice

	address, tx, _, err := bind.DeployContract(auth, contractABI, bytecode, c.eth, constructorArgs...)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to deploy contract: %w", err)
	}

	c.logger.
		With("address", address).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return TxResult{}, err
	}

	return TxResult{Hash: tx.Hash(), Block: receipt.BlockNumber.Uint64(), Address: receipt.ContractAddress}, nil
}

// HasRole queries hasRole(role, account) on contract.
func (c *Client) HasRole(ctx context.Context, contract common.Address, role Role, account common.Address) (bool, error) {
	input, err := funcHasRole.EncodeArgs(role.ID(), account)
	if err != nil {
		return false, fmt.Errorf("encode hasRole: %w", err)
	}

	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to call hasRole(%s, %s): %w", role, account, err)
	}

	var held bool
	if err := funcHasRole.DecodeReturns(output, &held); err != nil {
		return false, fmt.Errorf("decode hasRole: %w", err)
	}

	return held, nil
}

func (c *Client) GrantRole(ctx context.Context, contract common.Address, role Role, account common.Address) (TxResult, error) {
	input, err := funcGrantRole.EncodeArgs(role.ID(), account)
	if err != nil {
		return TxResult{}, fmt.Errorf("encode grantRole: %w", err)
	}
	c.logger.With("contract", contract, "role", role, "account", account).Info("granting role")
	return c.transact(ctx, contract, input)
}

func (c *Client) RenounceRole(ctx context.Context, contract common.Address, role Role, account common.Address) (TxResult, error) {
	input, err := funcRenounceRole.EncodeArgs(role.ID(), account)
	if err != nil {
		return TxResult{}, fmt.Errorf("encode renounceRole: %w", err)
	}
	c.logger.With("contract", contract, "role", role, "account", account).Info("renouncing role")
	return c.transact(ctx, contract, input)
}

func (c *Client) transact(ctx context.Context, to common.Address, input []byte) (TxResult, error) {
	if c.key == nil {
		return TxResult{}, ErrNoSigner
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: input})
	if err != nil {
		return TxResult{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     input,
	}), types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return TxResult{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return TxResult{}, fmt.Errorf("send tx: %w", err)
	}
	c.logger.With("tx_hash", tx.Hash().Hex()).Info("transaction sent")

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return TxResult{}, err
	}

	return TxResult{Hash: tx.Hash(), Block: receipt.BlockNumber.Uint64()}, nil
}

// waitMined blocks until tx has one confirmation or the confirmation timeout fires.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("tx %s after %s: %w", tx.Hash().Hex(), c.confirmTimeout, ErrConfirmationTimeout)
		}
		return nil, fmt.Errorf("failed to wait for transaction %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s in block %d: %w", tx.Hash().Hex(), receipt.BlockNumber, ErrTxReverted)
	}

	c.logger.
		With("tx_hash", tx.Hash().Hex()).
		With("block", receipt.BlockNumber).
		Info("transaction confirmed")

	return receipt, nil
}
