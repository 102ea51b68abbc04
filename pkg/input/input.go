package input

import "fmt"

// 按键位
const (
	ButtonMove uint8 = 1 << 0 // 移动
	ButtonFire uint8 = 1 << 1 // 射击
)

// Size 一条输入记录在线路上的字节数
const Size = 3

// PlayerInput 一帧内单个玩家的规范化输入
// 线路布局：[Direction, Buttons, Aim]，无填充
type PlayerInput struct {
	Direction uint8 // 移动方向（量化角度）
	Buttons   uint8 // 按键位
	Aim       uint8 // 瞄准方向（量化角度）
}

// Moving 是否按下移动
func (p PlayerInput) Moving() bool {
	return p.Buttons&ButtonMove != 0
}

// Firing 是否按下射击
func (p PlayerInput) Firing() bool {
	return p.Buttons&ButtonFire != 0
}

// IsZero 是否为全零记录
func (p PlayerInput) IsZero() bool {
	return p == PlayerInput{}
}

// MarshalBinary 编码为 3 字节
func (p PlayerInput) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, Size))
}

// AppendBinary 追加编码到 b
func (p PlayerInput) AppendBinary(b []byte) ([]byte, error) {
	return append(b, p.Direction, p.Buttons, p.Aim), nil
}

// UnmarshalBinary 从 3 字节解码，长度不符返回 InputDecodeError
func (p *PlayerInput) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return &InputDecodeError{Len: len(data)}
	}
	p.Direction = data[0]
	p.Buttons = data[1]
	p.Aim = data[2]
	return nil
}

func (p PlayerInput) String() string {
	return fmt.Sprintf("PlayerInput{dir=%d btn=%02b aim=%d}", p.Direction, p.Buttons, p.Aim)
}

// InputDecodeError 输入记录长度非法，属于协议违规
type InputDecodeError struct {
	Len int
}

func (e *InputDecodeError) Error() string {
	return fmt.Sprintf("输入记录长度非法: %d (应为 %d)", e.Len, Size)
}
