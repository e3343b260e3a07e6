package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrModelInit 模型初始化失败，进程级、粘性，重启前不会自动恢复
	ErrModelInit = errors.New("model initialization")
	// ErrExport 模型结果无法归一化成场景文件
	ErrExport = errors.New("scene export")
	// ErrTimeout 推理超出配置的时间上限
	ErrTimeout = errors.New("inference timeout")
)

// InferenceError 包一层带 jobID 的错误，HTTP 层只看它
type InferenceError struct {
	JobID string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference job %q: %v", e.JobID, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
