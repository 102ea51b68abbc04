package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"

	"p2pg/internal/client"
	"p2pg/internal/config"
	"p2pg/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./p2pg.yaml）")
	rendezvous := flag.String("rendezvous", "", "会合服务器地址，例如 kcp://127.0.0.1:9998")
	room := flag.String("room", "", "房间名")
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

	if err := logger.Init(logger.Options{File: cc.LogFile, Level: cc.LogLevel}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	game := client.NewGame(ctx, cc, nil)

	// 设置窗口选项
	ebiten.SetWindowSize(client.ScreenWidth*2, client.ScreenHeight*2)
	ebiten.SetWindowTitle("p2pg - 房间 " + cc.Room)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	ebiten.SetTPS(client.FPS)

	if err := ebiten.RunGame(game); err != nil {
		logger.Log.Errorf("游戏退出: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
