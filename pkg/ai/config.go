package ai

// BotConfig 机器人的行为参数
type BotConfig struct {
	// ThinkIntervalFrames 两次决策之间的帧数，越小反应越快
	ThinkIntervalFrames int

	// MistakeRate 随机失误率 (0.0-1.0)
	MistakeRate float64

	// AimJitter 瞄准误差（量化角度单位，±）
	AimJitter int32

	// FireRange 超过该距离（像素）不射击，改为接近
	FireRange float64
}

// 预设配置：普通难度
var BotNormal = BotConfig{
	ThinkIntervalFrames: 6, // 0.1s
	MistakeRate:         0.05,
	AimJitter:           6,
	FireRange:           160,
}

// 预设配置：困难难度
var BotHard = BotConfig{
	ThinkIntervalFrames: 1,
	MistakeRate:         0,
	AimJitter:           1,
	FireRange:           240,
}
