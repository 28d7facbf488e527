package track

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 默认地址标签；不做真实反地理编码，标签只由伪随机下标选择
var defaultLabels = []string{
	"Near the central station",
	"Near a shopping mall",
	"Near the city park",
	"Near a gas station",
	"Near the highway exit",
	"Near a residential block",
	"Near the university campus",
	"Near the old town square",
	"Near an industrial area",
	"Near the riverside promenade",
	"Near a hospital",
	"Near the airport road",
}

// DefaultLabels 返回默认标签的副本
func DefaultLabels() []string {
	out := make([]string, len(defaultLabels))
	copy(out, defaultLabels)
	return out
}

type labelFile struct {
	Labels []string `yaml:"labels"`
}

// 文档注释：从 YAML 文件读取标签集
// 背景：允许替换静态标签集合而不改代码；格式为顶层 labels 列表。
// 约束：空白项被丢弃；结果为空视为错误。标签顺序决定下标映射，修改后同一输入的标签会变化。
func LoadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var f labelFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	var out []string
	for _, l := range f.Labels {
		if s := strings.TrimSpace(l); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("parse labels: no labels")
	}
	return out, nil
}
