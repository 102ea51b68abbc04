package client

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"
)

var lobbyFont = text.NewGoXFace(basicfont.Face7x13)

var (
	titleColor = color.RGBA{255, 220, 120, 255}
	hintColor  = color.RGBA{180, 190, 200, 255}
	errorColor = color.RGBA{255, 120, 120, 255}
	busyColor  = color.RGBA{200, 200, 120, 255}
)

type keyTracker struct {
	prev map[ebiten.Key]bool
}

func (k *keyTracker) JustPressed(key ebiten.Key) bool {
	if k.prev == nil {
		k.prev = make(map[ebiten.Key]bool)
	}
	now := ebiten.IsKeyPressed(key)
	prev := k.prev[key]
	k.prev[key] = now
	return now && !prev
}

func (g *Game) drawLobby(screen *ebiten.Image) {
	screen.Fill(color.RGBA{18, 22, 30, 255})
	drawText(screen, 16, 20, "p2pg arena", titleColor)
	drawText(screen, 16, 44, fmt.Sprintf("Server: %s", g.cfg.Rendezvous), color.White)
	drawText(screen, 16, 60, fmt.Sprintf("Room:   %s", g.cfg.Room), color.White)
	drawText(screen, 16, 84, "Enter: Find Match  Esc: Quit", hintColor)
	drawText(screen, 16, 100, "WASD/Arrows: Move  Mouse: Aim & Shoot", hintColor)

	if g.lastResult != "" {
		drawText(screen, 16, 128, g.lastResult, color.RGBA{210, 220, 230, 255})
	}
	if g.retryIn > 0 {
		drawText(screen, 16, ScreenHeight-40, fmt.Sprintf("Retry %d/%d in %ds...", g.retries, maxRetries, g.retryIn/FPS+1), busyColor)
	}
	if g.lastError != "" {
		drawText(screen, 16, ScreenHeight-20, shorten(g.lastError, 52), errorColor)
	}
}

func (g *Game) drawConnecting(screen *ebiten.Image) {
	screen.Fill(color.RGBA{16, 18, 24, 255})
	dots := strings.Repeat(".", g.ticks/20%4)
	drawText(screen, 16, 20, fmt.Sprintf("Room: %s", g.cfg.Room), color.White)
	drawText(screen, 16, 44, "Waiting for opponent"+dots, busyColor)
	drawText(screen, 16, 68, "Esc: Cancel", hintColor)
}

func drawText(screen *ebiten.Image, x, y int, msg string, clr color.Color) {
	options := &text.DrawOptions{}
	options.GeoM.Translate(float64(x), float64(y))
	options.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, msg, lobbyFont, options)
}

// shorten 超长的错误信息截断显示
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
