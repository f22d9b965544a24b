package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier 校验支付回调确实来自支付网关。
// 密钥来自进程配置，永远不从请求数据中推导
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign 计算 HMAC-SHA256(secret, orderID|paymentID) 的十六进制表示
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 任一字段为空或签名不匹配都返回 false。比较在解码后的字节上用 hmac.Equal 完成，耗时与内容无关
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(mac.Sum(nil), provided)
}
