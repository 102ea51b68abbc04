package input

// DesktopState 键鼠在一帧内的原始状态
type DesktopState struct {
	Up, Down, Left, Right bool

	Pointer       Point // 指针的世界坐标
	HasPointer    bool  // 指针不在窗口内时为 false
	PointerOverUI bool
	Primary       bool // 主键按下
	Focused       bool
}

// Sources 一帧的全部输入来源
// Touch 为空表示设备不支持触控；ToWorld 为空表示没有窗口或相机
type Sources struct {
	Desktop DesktopState
	Touch   *TouchMovement
	ToWorld func(Point) Point
	Player  Point // 本地玩家上一帧的位置
}

// Sampler 本地玩家的输入采样器，跨帧缓存瞄准角度
type Sampler struct {
	aim uint8
}

// Aim 最近一次确定的瞄准角度
func (s *Sampler) Aim() uint8 {
	return s.aim
}

// Sample 合成一帧输入：触控有结果时完全替代键鼠结果
func (s *Sampler) Sample(src Sources) PlayerInput {
	if src.ToWorld == nil {
		return PlayerInput{}
	}

	desktop := s.desktop(src)

	if src.Touch != nil {
		if in, ok := src.Touch.Drain(desktop.Aim, src.ToWorld, src.Player); ok {
			if in.Firing() {
				s.aim = in.Aim
			}
			return in
		}
	}
	return desktop
}

func (s *Sampler) desktop(src Sources) PlayerInput {
	d := src.Desktop
	var in PlayerInput

	if d.Focused {
		var x, y float64
		if d.Right {
			x++
		}
		if d.Left {
			x--
		}
		if d.Up {
			y++
		}
		if d.Down {
			y--
		}
		if x != 0 || y != 0 {
			in.Buttons |= ButtonMove
			in.Direction = EncodeAngle(VecToAngle(x, y))
		}
		if d.Primary && !d.PointerOverUI {
			in.Buttons |= ButtonFire
		}
	}

	if d.HasPointer {
		s.aim = AimAt(src.Player, d.Pointer)
	}
	in.Aim = s.aim
	return in
}
