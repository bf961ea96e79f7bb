package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration yaml 里用 "1m30s" 这类字符串表达的时长
type Duration time.Duration

// Std 转回标准库类型
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML 同时接受时长字符串与纳秒整数
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		var n int64
		if err2 := node.Decode(&n); err2 == nil {
			*d = Duration(n)
			return nil
		}
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}
