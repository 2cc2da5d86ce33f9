package utils

import (
	"encoding/hex"
	"errors"
	"strings"
)

// BytesToHex 将[]byte转为大写Hex字符串
func BytesToHex(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// HexToBytes 将Hex字符串转为[]byte
// 允许字节之间出现空格分隔
func HexToBytes(hexStr string) ([]byte, error) {
	hexStr = strings.ReplaceAll(hexStr, " ", "")
	if len(hexStr)%2 != 0 {
		return nil, errors.New("hex string must have even length")
	}
	return hex.DecodeString(hexStr)
}
