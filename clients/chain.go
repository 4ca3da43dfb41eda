package clients

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/joy095/frame-booking/logger"
)

// ErrTxNotFound is returned while a transaction has no receipt yet (still
// pending or unknown to the node).
var ErrTxNotFound = errors.New("transaction receipt not found")

// ChainClientWrapper provides the read-only chain surface the payment flow
// needs: ERC-20 allowance, transaction receipts, and the escrow contract's
// payment records. Signing stays in the user's wallet; the server only
// verifies.
type ChainClientWrapper interface {
	Allowance(ctx context.Context, owner string) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash string) (*TxReceipt, error)
	GetPayment(ctx context.Context, paymentID *big.Int) (*ChainPayment, error)
}

// TxReceipt is the subset of an Ethereum transaction receipt the flow acts
// on.
type TxReceipt struct {
	TxHash      string
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber *big.Int
}

// ChainPayment mirrors the escrow contract's getPayment(uint256) tuple.
type ChainPayment struct {
	Name            string
	Email           string
	AdditionalNotes string
	Date            *big.Int
	Payer           string
	Amount          *big.Int
	FID             string
	GuestEmails     []string
}

// ChainClient implements ChainClientWrapper over raw Ethereum JSON-RPC.
type ChainClient struct {
	RPCURL          string
	ContractAddress string // escrow contract (USDC spender)
	USDCAddress     string
	HTTPClient      *http.Client
}

func NewChainClient(rpcURL, contractAddress, usdcAddress string) *ChainClient {
	return &ChainClient{
		RPCURL:          rpcURL,
		ContractAddress: contractAddress,
		USDCAddress:     usdcAddress,
		HTTPClient:      &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *ChainClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.ErrorLogger.Errorf("Chain RPC %s failed: %v", method, err)
		return nil, fmt.Errorf("chain RPC failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		logger.ErrorLogger.Errorf("Chain RPC %s returned %d: %s", method, resp.StatusCode, string(b))
		return nil, fmt.Errorf("chain RPC returned status %d", resp.StatusCode)
	}

	var body rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid RPC response: %w", err)
	}
	if body.Error != nil {
		logger.ErrorLogger.Errorf("Chain RPC %s error %d: %s", method, body.Error.Code, body.Error.Message)
		return nil, fmt.Errorf("chain RPC error: %s", body.Error.Message)
	}
	return body.Result, nil
}

func (c *ChainClient) ethCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	raw, err := c.call(ctx, "eth_call", map[string]string{
		"to":   to,
		"data": "0x" + hex.EncodeToString(data),
	}, "latest")
	if err != nil {
		return nil, err
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("invalid eth_call result: %w", err)
	}
	return hex.DecodeString(strings.TrimPrefix(result, "0x"))
}

// Allowance reads the USDC allowance granted by owner to the escrow
// contract.
func (c *ChainClient) Allowance(ctx context.Context, owner string) (*big.Int, error) {
	ownerWord, err := addressWord(owner)
	if err != nil {
		return nil, err
	}
	spenderWord, err := addressWord(c.ContractAddress)
	if err != nil {
		return nil, err
	}

	data := append(selector("allowance(address,address)"), ownerWord...)
	data = append(data, spenderWord...)

	out, err := c.ethCall(ctx, c.USDCAddress, data)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short allowance result (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// TransactionReceipt fetches the receipt for txHash. Returns ErrTxNotFound
// while the transaction is still pending.
func (c *ChainClient) TransactionReceipt(ctx context.Context, txHash string) (*TxReceipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, ErrTxNotFound
	}

	var body struct {
		TransactionHash string `json:"transactionHash"`
		Status          string `json:"status"`
		BlockNumber     string `json:"blockNumber"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("invalid receipt: %w", err)
	}

	status, err := hexToBig(body.Status)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt status %q: %w", body.Status, err)
	}
	blockNumber, err := hexToBig(body.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt block number %q: %w", body.BlockNumber, err)
	}

	return &TxReceipt{
		TxHash:      body.TransactionHash,
		Status:      status.Uint64(),
		BlockNumber: blockNumber,
	}, nil
}

// GetPayment reads a payment record from the escrow contract.
func (c *ChainClient) GetPayment(ctx context.Context, paymentID *big.Int) (*ChainPayment, error) {
	data := append(selector("getPayment(uint256)"), bigWord(paymentID)...)

	out, err := c.ethCall(ctx, c.ContractAddress, data)
	if err != nil {
		return nil, err
	}
	return decodePayment(out)
}

// --- ABI helpers ---

func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

func addressWord(addr string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err != nil || len(b) != 20 {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	word := make([]byte, 32)
	copy(word[12:], b)
	return word, nil
}

func bigWord(n *big.Int) []byte {
	word := make([]byte, 32)
	n.FillBytes(word)
	return word
}

func hexToBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity")
	}
	return n, nil
}

func word(data []byte, i int) ([]byte, error) {
	start := i * 32
	if start+32 > len(data) {
		return nil, fmt.Errorf("truncated ABI data at word %d", i)
	}
	return data[start : start+32], nil
}

func wordBig(data []byte, i int) (*big.Int, error) {
	w, err := word(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func readString(data []byte, offset uint64) (string, error) {
	if offset+32 > uint64(len(data)) {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}
	length := new(big.Int).SetBytes(data[offset : offset+32]).Uint64()
	if offset+32+length > uint64(len(data)) {
		return "", fmt.Errorf("string of length %d at %d out of range", length, offset)
	}
	return string(data[offset+32 : offset+32+length]), nil
}

func readStringArray(data []byte, offset uint64) ([]string, error) {
	if offset+32 > uint64(len(data)) {
		return nil, fmt.Errorf("array offset %d out of range", offset)
	}
	count := new(big.Int).SetBytes(data[offset : offset+32]).Uint64()
	base := offset + 32

	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		headPos := base + i*32
		if headPos+32 > uint64(len(data)) {
			return nil, fmt.Errorf("array element %d out of range", i)
		}
		elemOffset := new(big.Int).SetBytes(data[headPos : headPos+32]).Uint64()
		s, err := readString(data, base+elemOffset)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// decodePayment decodes the getPayment return tuple:
// (string name, string email, string additionalNotes, uint256 date,
// address payer, uint256 amount, string fid, string[] guestEmails).
func decodePayment(data []byte) (*ChainPayment, error) {
	p := &ChainPayment{}

	nameOff, err := wordBig(data, 0)
	if err != nil {
		return nil, err
	}
	emailOff, err := wordBig(data, 1)
	if err != nil {
		return nil, err
	}
	notesOff, err := wordBig(data, 2)
	if err != nil {
		return nil, err
	}
	if p.Date, err = wordBig(data, 3); err != nil {
		return nil, err
	}
	payerWord, err := word(data, 4)
	if err != nil {
		return nil, err
	}
	p.Payer = "0x" + hex.EncodeToString(payerWord[12:])
	if p.Amount, err = wordBig(data, 5); err != nil {
		return nil, err
	}
	fidOff, err := wordBig(data, 6)
	if err != nil {
		return nil, err
	}
	guestsOff, err := wordBig(data, 7)
	if err != nil {
		return nil, err
	}

	if p.Name, err = readString(data, nameOff.Uint64()); err != nil {
		return nil, err
	}
	if p.Email, err = readString(data, emailOff.Uint64()); err != nil {
		return nil, err
	}
	if p.AdditionalNotes, err = readString(data, notesOff.Uint64()); err != nil {
		return nil, err
	}
	if p.FID, err = readString(data, fidOff.Uint64()); err != nil {
		return nil, err
	}
	if p.GuestEmails, err = readStringArray(data, guestsOff.Uint64()); err != nil {
		return nil, err
	}
	return p, nil
}
