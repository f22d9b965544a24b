package service

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureVerifierAcceptsComputedSignature(t *testing.T) {
	cases := []struct {
		secret, orderID, paymentID string
	}{
		{"whsec_test", "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f"},
		{"s", "o", "p"},
		{"秘密", "订单-1", "支付-1"},
	}

	for _, tc := range cases {
		v := NewSignatureVerifier(tc.secret)
		sig := v.Sign(tc.orderID, tc.paymentID)
		assert.True(t, v.Verify(tc.orderID, tc.paymentID, sig), "secret=%q", tc.secret)
	}
}

func TestSignatureVerifierSignIsHexSHA256(t *testing.T) {
	v := NewSignatureVerifier("secret")
	sig := v.Sign("order_1", "pay_1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, v.Sign("order_1", "pay_1"))
	assert.NotEqual(t, sig, v.Sign("order_1", "pay_2"))
}

func TestSignatureVerifierRejectsEverySingleBitMutation(t *testing.T) {
	v := NewSignatureVerifier("whsec_test")
	sig := v.Sign("order_1", "pay_1")
	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)

	for i := 0; i < len(raw)*8; i++ {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i/8] ^= 1 << (i % 8)
		assert.False(t, v.Verify("order_1", "pay_1", hex.EncodeToString(mutated)), "bit %d", i)
	}
}

func TestSignatureVerifierRejectsMissingFields(t *testing.T) {
	v := NewSignatureVerifier("whsec_test")
	sig := v.Sign("order_1", "pay_1")

	assert.False(t, v.Verify("", "pay_1", sig))
	assert.False(t, v.Verify("order_1", "", sig))
	assert.False(t, v.Verify("order_1", "pay_1", ""))
	assert.False(t, NewSignatureVerifier("").Verify("order_1", "pay_1", sig))
}

func TestSignatureVerifierRejectsMalformedAndSwappedInput(t *testing.T) {
	v := NewSignatureVerifier("whsec_test")
	sig := v.Sign("order_1", "pay_1")

	assert.False(t, v.Verify("order_1", "pay_1", "not-hex"))
	assert.False(t, v.Verify("order_1", "pay_1", sig[:62]))
	assert.False(t, v.Verify("pay_1", "order_1", sig))
	assert.False(t, NewSignatureVerifier("other").Verify("order_1", "pay_1", sig))
	// 大写十六进制同样有效
	assert.True(t, v.Verify("order_1", "pay_1", strings.ToUpper(sig)))
}
