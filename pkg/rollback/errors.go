package rollback

import (
	"errors"
	"fmt"
)

var (
	// ErrPredictionThreshold 预测帧数达到上限，本帧跳过，等待远端输入
	ErrPredictionThreshold = errors.New("预测帧数达到上限")
	// ErrInvalidSlot 玩家槽位非法
	ErrInvalidSlot = errors.New("玩家槽位非法")
)

// DesyncError 同一确认帧两端校验和不一致
type DesyncError struct {
	Frame  int32
	Local  uint64
	Remote uint64
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("第 %d 帧不同步: 本地 %016x, 远端 %016x", e.Frame, e.Local, e.Remote)
}
