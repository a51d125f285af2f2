package utils

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseInt 解析整数，解析失败返回默认值
func ParseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return result
}

func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// SplitEndpoints 拆分逗号分隔的endpoint列表，保持顺序并去掉空项
func SplitEndpoints(endpoints string) []string {
	parts := strings.Split(endpoints, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// EndpointHost 从 https://10.0.0.1:2379 形式的endpoint中取出主机地址
func EndpointHost(endpoint string) string {
	host := endpoint
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
