package adapter

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// nodeError mimics a geth rejection carrying structured revert data.
type nodeError struct {
	msg  string
	data interface{}
}

func (e *nodeError) Error() string          { return e.msg }
func (e *nodeError) ErrorData() interface{} { return e.data }

// encodeRevert ABI-encodes an Error(string) payload the way the EVM does.
func encodeRevert(reason string) string {
	data := []byte{0x08, 0xc3, 0x79, 0xa0}
	data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	padded := make([]byte, (len(reason)+31)/32*32)
	copy(padded, reason)
	data = append(data, padded...)
	return hexutil.Encode(data)
}

func TestClassifyBroadcastErrDecodesRevertData(t *testing.T) {
	err := &nodeError{
		msg:  "execution reverted",
		data: encodeRevert("ERC20: transfer amount exceeds balance"),
	}

	ae := classifyBroadcastErr("evm.BuildAndSubmit", err)
	if ae.Kind != KindTerminal {
		t.Errorf("kind = %s, want terminal", ae.Kind)
	}
	if !strings.Contains(ae.Message, "ERC20: transfer amount exceeds balance") {
		t.Errorf("message = %q, want the decoded revert reason", ae.Message)
	}
	if strings.Contains(ae.Message, "0x08c379a0") {
		t.Errorf("message = %q, raw hex should not leak through", ae.Message)
	}
}

func TestClassifyBroadcastErrDecodesInlineRevertHex(t *testing.T) {
	err := errors.New("execution reverted: " + encodeRevert("paused"))

	ae := classifyBroadcastErr("evm.BuildAndSubmit", err)
	if ae.Kind != KindTerminal {
		t.Errorf("kind = %s, want terminal", ae.Kind)
	}
	if !strings.Contains(ae.Message, "paused") {
		t.Errorf("message = %q, want the decoded revert reason", ae.Message)
	}
}

func TestClassifyBroadcastErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nonce too low", errors.New("nonce too low"), KindTerminal},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), KindTerminal},
		{"bare revert", errors.New("execution reverted"), KindTerminal},
		{"transport failure", errors.New("connection refused"), KindRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyBroadcastErr("evm.BuildAndSubmit", tt.err); got.Kind != tt.want {
				t.Errorf("kind = %s, want %s", got.Kind, tt.want)
			}
		})
	}
}
