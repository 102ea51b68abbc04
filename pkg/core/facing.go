package core

// Facing 朝向，仅影响渲染，但参与校验
type Facing uint8

const (
	FacingUp Facing = iota
	FacingRight
	FacingDown
	FacingLeft
)

// String 返回朝向的字符串表示
func (f Facing) String() string {
	switch f {
	case FacingUp:
		return "上"
	case FacingRight:
		return "右"
	case FacingDown:
		return "下"
	case FacingLeft:
		return "左"
	}
	return "未知"
}

// FacingFromAim 按量化瞄准角划分四个扇区
func FacingFromAim(aim uint8) Facing {
	switch {
	case aim < 32:
		return FacingUp
	case aim < 96:
		return FacingRight
	case aim < 160:
		return FacingDown
	case aim < 224:
		return FacingLeft
	}
	return FacingUp
}
