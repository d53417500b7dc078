package summarizer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel    = "gpt-4"
	DefaultMaxChars = 30
	promptPreamble  = "你是一个专业的内容编辑。\n"
)

var DefaultRules = []string{
	"严格按照[主语+动作+关键信息]格式输出",
	"只保留一个完整陈述句",
	"删除所有附加句和补充说明",
	"不使用任何标点符号结尾",
	"所有作品名称严格使用书名号《》，包括中英文",
	"禁止使用：形容词、评价词、感叹词",
	"禁止使用：情感类描述（共鸣/感动/热爱等）",
	"禁止使用：号召性、祝愿性词语",
}

// Prompt holds the editing rules sent as the system message.
type Prompt struct {
	Rules    []string `yaml:"rules"`
	MaxChars int      `yaml:"max_chars"`
}

func DefaultPrompt() Prompt {
	return Prompt{Rules: append([]string(nil), DefaultRules...), MaxChars: DefaultMaxChars}
}

// LoadPrompt reads a YAML prompt file. Missing fields keep their defaults.
func LoadPrompt(path string) (Prompt, error) {
	prompt := DefaultPrompt()
	if path == "" {
		return prompt, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var loaded Prompt
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Prompt{}, fmt.Errorf("failed to parse prompt file: %w", err)
	}

	if len(loaded.Rules) > 0 {
		prompt.Rules = loaded.Rules
	}
	if loaded.MaxChars != 0 {
		prompt.MaxChars = loaded.MaxChars
	}

	return prompt, prompt.Validate()
}

func (p Prompt) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("prompt has no rules")
	}
	if p.MaxChars <= 0 {
		return fmt.Errorf("prompt max_chars must be positive")
	}
	return nil
}

func (p Prompt) System() string {
	return promptPreamble + strings.Join(p.Rules, "\n")
}
