// Package wallet 管理服务进程的链上身份。私钥由部署环境注入，
// 只在内存中使用：不落盘、不打日志、不出现在任何 API 响应里，
// 对外只暴露派生出的地址与签名。
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// PrivateKeyEnv 是部署环境注入私钥的变量名。
const PrivateKeyEnv = "AGENT_PRIVATE_KEY"

// Signer 持有进程的签名身份。
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// SignedMessage 是对一段文本的签名结果，可以安全地返回给调用方。
type SignedMessage struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	V         uint8  `json:"v"`
	R         string `json:"r"`
	S         string `json:"s"`
}

var (
	loadOnce  sync.Once
	loadedSig *Signer
	loadedErr error
)

// Load 读取环境变量中的私钥并派生签名身份。结果进程内缓存，
// 私钥只被解析一次。
func Load() (*Signer, error) {
	loadOnce.Do(func() {
		raw := strings.TrimSpace(os.Getenv(PrivateKeyEnv))
		if raw == "" {
			loadedErr = xerrors.New(xerrors.CodeNotConfigured,
				fmt.Sprintf("未设置 %s，进程没有链上身份", PrivateKeyEnv))
			return
		}
		loadedSig, loadedErr = FromHex(raw)
	})
	return loadedSig, loadedErr
}

// FromHex 从十六进制私钥构造签名身份，0x 前缀可选。
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// 不把原始输入带进错误，避免私钥泄漏到日志。
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "私钥格式非法")
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address 返回派生的链上地址，可安全记录与展示。
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage 按 EIP-191 个人消息格式签名任意文本。
func (s *Signer) SignMessage(message string) (*SignedMessage, error) {
	digest := accounts.TextHash([]byte(message))
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "签名失败")
	}
	// crypto.Sign 返回的恢复位是 0/1，外部惯例是 27/28。
	v := sig[64] + 27
	return &SignedMessage{
		Address:   s.address.Hex(),
		Message:   message,
		Signature: hexutil.Encode(append(sig[:64], v)),
		V:         v,
		R:         hexutil.Encode(sig[:32]),
		S:         hexutil.Encode(sig[32:64]),
	}, nil
}

// Info 返回可公开的身份信息，供 /info 端点使用。
// 未配置身份时只返回错误描述，绝不包含密钥材料。
func Info() map[string]any {
	signer, err := Load()
	if err != nil {
		return map[string]any{"address": nil, "error": err.Error()}
	}
	return map[string]any{
		"address":    signer.Address().Hex(),
		"key_source": "deployment environment (" + PrivateKeyEnv + ")",
	}
}
