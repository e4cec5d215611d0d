package scenario

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// InputFunc yields the authoritative input that produces a frame.
type InputFunc func(frame snapshot.Frame) core.MultiInputFrame

const (
	holdFrames = 20 // movement keys change this often
	fireOdds   = 24 // one shot per this many frames on average
)

// Script returns a deterministic input generator for headless runs. The
// input of a frame depends only on seed, player and frame, so any two runs
// with the same seed see the same inputs whatever order frames are asked for.
func Script(seed uint64, players int) InputFunc {
	players = min(players, core.MaxPlayers)
	return func(f snapshot.Frame) core.MultiInputFrame {
		var out core.MultiInputFrame
		for p := 0; p < players; p++ {
			var in core.InputFrame
			move := mix(seed, uint64(p), uint64(f/holdFrames))
			for a := core.ActionMoveUp; a <= core.ActionMoveRight; a++ {
				if move>>a&1 == 1 {
					in.Set(a)
				}
			}
			shot := mix(seed, uint64(p+core.MaxPlayers), uint64(f))
			if shot%fireOdds == 0 {
				in.Set(core.ActionFireUp + core.Action(shot>>8%4))
			}
			out.SetPlayer(core.PlayerID(p), in)
		}
		return out
	}
}

func mix(seed, a, b uint64) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[8:], a)
	binary.LittleEndian.PutUint64(buf[16:], b)
	return xxhash.Sum64(buf[:])
}
