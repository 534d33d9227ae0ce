package credentials

import (
	"strings"

	"github.com/zhouzirui/tara-call/backend/internal/config"
)

// resolveCredentials 返回规范化后的地址与密钥，缺失时按 URL、Key、Secret 的顺序给出明确错误。
func resolveCredentials(cfg config.LiveKitConfig) (string, string, string, error) {
	serverURL := strings.TrimSpace(cfg.URL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	apiSecret := strings.TrimSpace(cfg.APISecret)

	switch {
	case serverURL == "":
		return "", "", "", ErrMissingURL
	case apiKey == "":
		return "", "", "", ErrMissingAPIKey
	case apiSecret == "":
		return "", "", "", ErrMissingAPISecret
	}

	return serverURL, apiKey, apiSecret, nil
}
