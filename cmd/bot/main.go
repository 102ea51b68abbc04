// bot 无界面的练习对手：加入房间后由行为树操控一个槽位
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"p2pg/internal/client"
	"p2pg/internal/config"
	"p2pg/internal/logger"
	"p2pg/pkg/ai"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./p2pg.yaml）")
	rendezvous := flag.String("rendezvous", "", "会合服务器地址")
	room := flag.String("room", "", "房间名")
	hard := flag.Bool("hard", false, "困难难度")
	rounds := flag.Int("rounds", 0, "对局结束后再排队的次数，0 表示一直排队")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cc := cfg.Client
	if *rendezvous != "" {
		cc.Rendezvous = *rendezvous
	}
	if *room != "" {
		cc.Room = *room
	}
	if err := cc.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if err := logger.Init(logger.Options{File: cc.LogFile, Level: cc.LogLevel, Console: true}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	botCfg := &ai.BotNormal
	if *hard {
		botCfg = &ai.BotHard
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := client.NewOrchestrator(cc, nil)
	for played := 0; *rounds == 0 || played < *rounds; played++ {
		if err := play(ctx, orch, botCfg); err != nil {
			logger.Log.Warnf("对局结束: %v", err)
		}
		if ctx.Err() != nil {
			break
		}
		// 避免服务器不可用时空转
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
	orch.Leave()
}

// play 排队并打完一局，按 60Hz 推进
func play(ctx context.Context, orch *client.Orchestrator, botCfg *ai.BotConfig) error {
	if err := orch.Connect(ctx); err != nil {
		return err
	}
	defer orch.Leave()

	ticker := time.NewTicker(time.Second / client.FPS)
	defer ticker.Stop()

	var bot *ai.Controller
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if bot == nil {
			ready, err := orch.PollReady()
			if errors.Is(err, client.ErrTransportNotReady) {
				continue
			}
			if err != nil {
				return err
			}
			if !ready {
				continue
			}
			s := orch.Session()
			bot = ai.NewControllerWithConfig(s.LocalSlot, botCfg, s.Seed^uint64(time.Now().UnixNano()))
			logger.Log.Infof("机器人进入对局 %s，槽位 %d", s.MatchID, s.LocalSlot)
		}

		w := orch.World()
		if w == nil {
			return client.ErrPeerDisconnected
		}
		if err := orch.Tick(bot.Decide(orch.Arena(), w)); err != nil {
			return err
		}
	}
}
