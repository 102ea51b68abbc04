package core

import (
	"fmt"

	"golang.org/x/image/math/fixed"
)

// TileType 地图块类型
type TileType int

const (
	TileEmpty TileType = iota // 空地
	TileWall                  // 墙壁
)

// GridPos 格子坐标，Y 向上
type GridPos struct {
	GridX, GridY int
}

// Arena 竞技场地图（核心逻辑，不包含渲染）
// 世界坐标原点在左下角，Y 向上
type Arena struct {
	Tiles  [][]TileType // Tiles[y][x]
	Width  int
	Height int
	Spawns []fixed.Point52_12 // 出生点（格子中心），按模板扫描顺序
	walls  []fixed.Rectangle52_12
}

// 地图模板：W=墙壁, S=出生点, .=空地；第一行是地图最上方
var arenaTemplate = []string{
	"WWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWW",
	"W......................................W",
	"W......................................W",
	"W..S................................S..W",
	"W..................WW..................W",
	"W..................WW..................W",
	"W.....WWWW.........WW.........WWWW.....W",
	"W.....W............WW............W.....W",
	"W.....W..........................W.....W",
	"W.....W..........................W.....W",
	"W......................................W",
	"W......................................W",
	"W............WW..........WW............W",
	"W.........S..WW..WWWWWW..WW............W",
	"W............WW..WWWWWW..WW..S.........W",
	"W............WW..........WW............W",
	"W......................................W",
	"W......................................W",
	"W.....W..........................W.....W",
	"W.....W..........................W.....W",
	"W.....W............WW............W.....W",
	"W.....WWWW.........WW.........WWWW.....W",
	"W..................WW..................W",
	"W..................WW..................W",
	"W..S................................S..W",
	"W......................................W",
	"W......................................W",
	"WWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWW",
}

// NewArena 加载默认竞技场
func NewArena() *Arena {
	a, err := ParseArena(arenaTemplate)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseArena 解析地图模板
func ParseArena(template []string) (*Arena, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("地图模板为空")
	}
	height := len(template)
	width := len(template[0])
	a := &Arena{
		Tiles:  make([][]TileType, height),
		Width:  width,
		Height: height,
	}
	for y := range a.Tiles {
		a.Tiles[y] = make([]TileType, width)
	}

	for row, line := range template {
		if len(line) != width {
			return nil, fmt.Errorf("地图第 %d 行宽度 %d，应为 %d", row, len(line), width)
		}
		y := height - 1 - row
		for x := 0; x < width; x++ {
			switch line[x] {
			case 'W':
				a.Tiles[y][x] = TileWall
				a.walls = append(a.walls, TileRect(x, y))
			case 'S':
				a.Spawns = append(a.Spawns, TileCenter(x, y))
			case '.':
			default:
				return nil, fmt.Errorf("地图 (%d,%d) 未知字符 %q", x, row, line[x])
			}
		}
	}
	if len(a.Spawns) == 0 {
		return nil, fmt.Errorf("地图没有出生点")
	}
	return a, nil
}

// GetTile 获取指定位置的地图块，越界视为墙
func (a *Arena) GetTile(x, y int) TileType {
	if x < 0 || x >= a.Width || y < 0 || y >= a.Height {
		return TileWall
	}
	return a.Tiles[y][x]
}

// Walls 所有墙体矩形
func (a *Arena) Walls() []fixed.Rectangle52_12 {
	return a.walls
}

// Bounds 地图像素范围
func (a *Arena) Bounds() fixed.Rectangle52_12 {
	return fixed.Rectangle52_12{Max: P(a.Width*TileSize, a.Height*TileSize)}
}

// WallsOverlapping 与 r 相交的墙体矩形，按行列顺序
func (a *Arena) WallsOverlapping(r fixed.Rectangle52_12) []fixed.Rectangle52_12 {
	x0, y0 := ToGrid(r.Min)
	x1, y1 := ToGrid(r.Max)
	var out []fixed.Rectangle52_12
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if a.GetTile(x, y) != TileWall {
				continue
			}
			tile := TileRect(x, y)
			if overlaps(tile, r) {
				out = append(out, tile)
			}
		}
	}
	return out
}

// TileRect 格子的像素矩形
func TileRect(x, y int) fixed.Rectangle52_12 {
	return fixed.Rectangle52_12{
		Min: P(x*TileSize, y*TileSize),
		Max: P((x+1)*TileSize, (y+1)*TileSize),
	}
}

// TileCenter 格子中心
func TileCenter(x, y int) fixed.Point52_12 {
	return P(x*TileSize+TileSize/2, y*TileSize+TileSize/2)
}

// ToGrid 像素坐标转格子坐标
func ToGrid(p fixed.Point52_12) (int, int) {
	return floorDiv(p.X.Floor(), TileSize), floorDiv(p.Y.Floor(), TileSize)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
