package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"p2pg/internal/config"
	"p2pg/internal/logger"
	"p2pg/internal/server"
)

func main() {
	// 命令行参数，非空时覆盖配置文件
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./p2pg.yaml）")
	address := flag.String("addr", "", "tcp / kcp 监听地址")
	proto := flag.String("proto", "", "传输协议: tcp 或 kcp")
	wsAddr := flag.String("ws", "", "websocket 监听地址")
	adminAddr := flag.String("admin", "", "健康检查与指标地址")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	sc := cfg.Server
	if *address != "" {
		sc.Addr = *address
	}
	if *proto != "" {
		sc.Proto = *proto
	}
	if *wsAddr != "" {
		sc.WSAddr = *wsAddr
	}
	if *adminAddr != "" {
		sc.AdminAddr = *adminAddr
	}
	if err := sc.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	if err := logger.Init(logger.Options{File: sc.LogFile, Level: sc.LogLevel, Console: true}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	gameServer, err := server.NewGameServer(sc)
	if err != nil {
		logger.Log.Fatalf("创建服务器失败: %v", err)
	}
	if err := gameServer.Listen(); err != nil {
		logger.Log.Fatalf("服务器启动失败: %v", err)
	}
	go gameServer.Serve()

	logger.Log.Info("========================================")
	logger.Log.Info("  p2pg 会合与转发服务器")
	logger.Log.Info("========================================")
	for _, addr := range gameServer.Addrs() {
		logger.Log.Infof("监听地址: %s", addr)
	}
	logger.Log.Infof("协议: %s", sc.Proto)
	logger.Log.Infof("每局人数: %d", server.Peers)
	logger.Log.Infof("校验间隔: %d 帧", sc.DesyncInterval)
	logger.Log.Info("========================================")
	logger.Log.Info("按 Ctrl+C 停止服务器")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
}
