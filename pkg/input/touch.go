package input

// TapMaxDistance 手指拖动超过该距离（像素）后不再视为点击
const TapMaxDistance = 10.0

// StickRadius 虚拟摇杆显示半径
const StickRadius = 32.0

// TouchID 触点 ID
type TouchID int

// TouchFinger 单个手指的手势状态
type TouchFinger struct {
	Start   Point // 按下位置（屏幕坐标）
	Current Point // 当前位置
	Tap     bool  // 拖动超过阈值后置为 false，不可恢复
}

// Delta 相对按下位置的位移
func (f *TouchFinger) Delta() Point {
	return f.Current.Sub(f.Start)
}

// TouchMovement 多指触控聚合状态，事件写入，每帧 Drain 一次
type TouchMovement struct {
	fingers map[TouchID]*TouchFinger

	stickID  TouchID
	hasStick bool

	fireAt  Point // 待处理的点击射击（屏幕坐标）
	hasFire bool
}

// NewTouchMovement 创建触控状态
func NewTouchMovement() *TouchMovement {
	return &TouchMovement{fingers: make(map[TouchID]*TouchFinger)}
}

// Start 手指按下
func (t *TouchMovement) Start(id TouchID, pos Point) {
	t.fingers[id] = &TouchFinger{Start: pos, Current: pos, Tap: true}
}

// Move 手指移动，第一个越过阈值的手指成为摇杆
func (t *TouchMovement) Move(id TouchID, pos Point) {
	f, ok := t.fingers[id]
	if !ok {
		return
	}
	f.Current = pos
	if f.Delta().Len() >= TapMaxDistance {
		f.Tap = false
		if !t.hasStick {
			t.stickID = id
			t.hasStick = true
		}
	}
}

// End 手指抬起，仍为点击则记录一次射击
func (t *TouchMovement) End(id TouchID, pos Point) {
	f, ok := t.fingers[id]
	if !ok {
		return
	}
	t.remove(id)
	if f.Tap {
		t.fireAt = pos
		t.hasFire = true
	}
}

// Cancel 触控被系统取消，与抬起处理相同
func (t *TouchMovement) Cancel(id TouchID) {
	if f, ok := t.fingers[id]; ok {
		t.End(id, f.Current)
	}
}

func (t *TouchMovement) remove(id TouchID) {
	delete(t.fingers, id)
	if t.hasStick && t.stickID == id {
		t.hasStick = false
	}
}

// Active 当前按下的手指数
func (t *TouchMovement) Active() int {
	return len(t.fingers)
}

// Stick 返回摇杆的中心和显示位置（位移限制在 StickRadius 内）
func (t *TouchMovement) Stick() (center, knob Point, ok bool) {
	if !t.hasStick {
		return Point{}, Point{}, false
	}
	f, exists := t.fingers[t.stickID]
	if !exists {
		return Point{}, Point{}, false
	}
	d := f.Delta()
	if l := d.Len(); l > StickRadius {
		d = Point{X: d.X / l * StickRadius, Y: d.Y / l * StickRadius}
	}
	return f.Start, Point{X: f.Start.X + d.X, Y: f.Start.Y + d.Y}, true
}

// Drain 每帧取出触控输入
// 有待处理点击时只返回射击，不附带摇杆移动；没有任何射击或移动时返回 false
func (t *TouchMovement) Drain(defaultAim uint8, toWorld func(Point) Point, player Point) (PlayerInput, bool) {
	if t.hasFire {
		t.hasFire = false
		target := toWorld(t.fireAt)
		return PlayerInput{Buttons: ButtonFire, Aim: AimAt(player, target)}, true
	}

	if !t.hasStick {
		return PlayerInput{}, false
	}
	f, ok := t.fingers[t.stickID]
	if !ok {
		return PlayerInput{}, false
	}

	// 屏幕 Y 向下，世界 Y 向上
	d := f.Delta()
	return PlayerInput{
		Direction: EncodeAngle(VecToAngle(d.X, -d.Y)),
		Buttons:   ButtonMove,
		Aim:       defaultAim,
	}, true
}
