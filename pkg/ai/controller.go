package ai

import (
	"p2pg/pkg/ai/bt"
	"p2pg/pkg/core"
	"p2pg/pkg/input"
	"p2pg/pkg/rng"
)

// Controller 为一个槽位生成输入的练习机器人
// 只读世界状态，输出和人类玩家一样经由网络发送，不需要确定性
type Controller struct {
	Slot   int
	config *BotConfig
	rng    rng.Rng

	thinkCounter int
	cachedInput  input.PlayerInput
	lastInDanger bool

	blackboard Blackboard
	tree       bt.Node[*Blackboard]
	danger     DangerField
}

// NewController 使用普通难度
func NewController(slot int, seed uint64) *Controller {
	return NewControllerWithConfig(slot, &BotNormal, seed)
}

func NewControllerWithConfig(slot int, config *BotConfig, seed uint64) *Controller {
	if config == nil {
		config = &BotNormal
	}
	c := &Controller{
		Slot:   slot,
		config: config,
		rng:    rng.New(seed),
	}
	c.blackboard = Blackboard{
		Slot:   slot,
		Danger: &c.danger,
		Config: config,
		Rng:    &c.rng,
	}

	type node = bt.Node[*Blackboard]
	cond := func(f func(*Blackboard) bool) node { return &bt.Condition[*Blackboard]{Check: f} }
	act := func(f func(*Blackboard) bt.Status) node { return &bt.Action[*Blackboard]{Do: f} }

	c.tree = &bt.Selector[*Blackboard]{Children: []node{
		&bt.Sequence[*Blackboard]{Children: []node{
			cond(condInDanger),
			act(actFindSafe),
			act(actMoveToSafe),
		}},
		&bt.Sequence[*Blackboard]{Children: []node{
			cond(condHasEnemy),
			act(actAim),
			&bt.Selector[*Blackboard]{Children: []node{
				&bt.Sequence[*Blackboard]{Children: []node{
					cond(condCanHit),
					act(actShoot),
				}},
				act(actApproach),
			}},
		}},
		act(actWander),
	}}
	return c
}

// Decide 根据当前世界给出本帧输入
func (c *Controller) Decide(arena *core.Arena, w *core.World) input.PlayerInput {
	if c.Slot < 0 || c.Slot >= w.Players() {
		return input.PlayerInput{}
	}

	c.danger.Update(arena, w, c.Slot)
	c.blackboard.ResetFrame(arena, w)

	// 刚进入危险时立即重新决策
	inDanger := condInDanger(&c.blackboard)
	force := inDanger && !c.lastInDanger
	c.lastInDanger = inDanger

	c.thinkCounter++
	if !force && c.thinkCounter < c.config.ThinkIntervalFrames {
		// 射出后必须松开射击键才能再次拉弓
		if !w.Cooldowns[c.Slot].CanShoot {
			c.cachedInput.Buttons &^= input.ButtonFire
		}
		return c.cachedInput
	}
	c.thinkCounter = 0

	_ = c.tree.Tick(&c.blackboard)
	next := c.blackboard.NextInput

	if c.config.MistakeRate > 0 && c.rng.NextF64() < c.config.MistakeRate {
		switch c.rng.NextUsize(0, 2) {
		case 0:
			// 什么都不做
			next = input.PlayerInput{Aim: next.Aim}
		case 1:
			// 随机方向
			next.Buttons = input.ButtonMove
			next.Direction = uint8(c.rng.NextUsize(0, 256))
		}
	}

	c.cachedInput = next
	return next
}

// Config 当前配置
func (c *Controller) Config() *BotConfig {
	return c.config
}
