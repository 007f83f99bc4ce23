package provider

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"strings"
)

// verifyHMAC 对原始报文计算 HMAC 并与签名头做常量时间比较。
// 密钥未配置或签名头缺失都按校验失败处理。
func verifyHMAC(h func() hash.Hash, secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

func sign(h func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
