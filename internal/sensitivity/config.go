package sensitivity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule scores content that matches a pattern. Pattern is a regular
// expression when Regex is true, otherwise a case-insensitive literal.
type Rule struct {
	Pattern  string  `yaml:"pattern" json:"pattern"`
	Score    float64 `yaml:"score" json:"score"`
	Category string  `yaml:"category" json:"category"`
	Regex    bool    `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// Config holds the sensitivity rule table.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultConfig returns the built-in rule table. Patterns cover both
// CJK and Latin keywords; non-Latin scripts are matched as-is since
// case folding is a no-op for them.
func DefaultConfig() *Config {
	return &Config{Rules: []Rule{
		// Credentials and finance (high).
		{Pattern: `密碼|密码|password|密鑰|密钥|private.?key`, Score: 0.95, Category: "credential", Regex: true},
		{Pattern: `信用卡|credit.?card|CVV|\b\d{16}\b`, Score: 0.9, Category: "financial", Regex: true},
		{Pattern: `轉帳|转账|匯款|汇款|transfer|balance`, Score: 0.85, Category: "financial", Regex: true},
		{Pattern: `銀行帳號|银行账号|account.?number`, Score: 0.8, Category: "financial", Regex: true},

		// Personal identity (medium-high).
		{Pattern: `身份證|身份证|ID.?card|身分證|身分证`, Score: 0.95, Category: "identity", Regex: true},
		{Pattern: `護照|护照|passport`, Score: 0.9, Category: "identity", Regex: true},
		{Pattern: `手機號|手机号|phone|\b\d{11}\b`, Score: 0.7, Category: "identity", Regex: true},
		{Pattern: `地址|address|住址`, Score: 0.6, Category: "identity", Regex: true},
		{Pattern: `姓名|name`, Score: 0.5, Category: "identity", Regex: true},

		// System operations (medium-high).
		{Pattern: `刪除|删除|delete|drop|truncate`, Score: 0.85, Category: "system", Regex: true},
		{Pattern: `修改|update|alter`, Score: 0.75, Category: "system", Regex: true},
		{Pattern: `執行|执行|exec|eval|system`, Score: 0.7, Category: "system", Regex: true},
		{Pattern: `rm\s+-rf|chmod\s+777`, Score: 0.95, Category: "system", Regex: true},

		// Business secrets.
		{Pattern: `營業額|营业额|revenue|profit`, Score: 0.75, Category: "business", Regex: true},
		{Pattern: `客戶名單|客户名单|customer.?list`, Score: 0.8, Category: "business", Regex: true},
		{Pattern: `合約|合约|contract|agreement`, Score: 0.6, Category: "business", Regex: true},
	}}
}

// LoadConfig loads a rule table from a YAML file. A missing file
// returns the defaults; invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("sensitivity: read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sensitivity: parse config: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return DefaultConfig(), nil
	}
	return cfg, nil
}
