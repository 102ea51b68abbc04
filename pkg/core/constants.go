package core

import "golang.org/x/image/math/fixed"

// 屏幕和地图配置
const (
	ScreenWidth  = 400 // 逻辑分辨率
	ScreenHeight = 225
	TileSize     = 16
	MapWidth     = 40
	MapHeight    = 28
)

// 游戏帧率
const (
	FPS     = 60
	Players = 2
)

// 玩家配置（长度单位为像素，时间单位为帧）
const (
	PlayerHalfSize = 4
	PlayerHealth   = 3
	// 1.4 像素/帧
	PlayerSpeed = fixed.Int52_12(14 << 12 / 10)
	// 墙体探测条厚度
	SensorDepth = fixed.Int52_12(1 << 12)
)

// 弓箭配置
const (
	ShootCooldown = 25  // 两次射击的最小间隔
	ArrowLifetime = 150 // 箭矢存活帧数
	ArrowSpawnGap = 16  // 箭矢生成位置距玩家中心
	// 2.2 像素/帧
	ArrowSpeed = fixed.Int52_12(22 << 12 / 10)
	// 箭矢命中圆半径 2.5
	ArrowRadius = fixed.Int52_12(25 << 12 / 10)
	// 冷却计数上限，避免长时间不射击时溢出
	cooldownCap = 999
)
