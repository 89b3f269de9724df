package ir

// NewBlock creates a block whose sole instruction is an empty Phi and
// appends it to the function.
func (c *Context) NewBlock(fn FuncID, label string) BlockID {
	phi := c.AddValue(Phi{})

	c.blocks = append(c.blocks, Block{
		Func:   fn,
		Label:  label,
		Instrs: []ValueID{phi},
	})

	id := BlockID(len(c.blocks) - 1)

	f := c.Func(fn)
	f.Blocks = append(f.Blocks, id)

	return id
}

func (c *Context) Append(b BlockID, x Content) ValueID {
	id := c.AddValue(x)

	blk := c.Block(b)
	blk.Instrs = append(blk.Instrs, id)

	return id
}

// BlockPhi is the block's first instruction.
func (c *Context) BlockPhi(b BlockID) (ValueID, Phi) {
	blk := c.Block(b)

	if len(blk.Instrs) == 0 {
		panic(fatal("block %v has no phi", blk.Label))
	}

	id := blk.Instrs[0]

	phi, ok := c.Value(id).(Phi)
	if !ok {
		panic(fatal("block %v starts with %T, not a phi", blk.Label, c.Value(id)))
	}

	return id, phi
}

// AddPhiEntry records the value the block's phi takes when control
// arrives from pred. A second entry for the same predecessor is an
// internal error.
func (c *Context) AddPhiEntry(b BlockID, pred BlockID, val ValueID) {
	id, phi := c.BlockPhi(b)

	for _, e := range phi.Entries {
		if e.Pred == pred {
			panic(fatal("block %v phi already has an entry for predecessor %v", c.Block(b).Label, c.Block(pred).Label))
		}
	}

	phi.Entries = append(phi.Entries, PhiEntry{Pred: pred, Val: val})
	c.SetValue(id, phi)
}

func (c *Context) PhiValueFrom(b BlockID, pred BlockID) (ValueID, bool) {
	_, phi := c.BlockPhi(b)

	for _, e := range phi.Entries {
		if e.Pred == pred {
			return e.Val, true
		}
	}

	return NoValue, false
}

// Terminator returns the block's last instruction if it is one.
func (c *Context) Terminator(b BlockID) (ValueID, Content, bool) {
	blk := c.Block(b)

	if len(blk.Instrs) == 0 {
		return NoValue, nil, false
	}

	id := blk.Instrs[len(blk.Instrs)-1]
	x := c.Value(id)

	if !Terminator(x) {
		return NoValue, nil, false
	}

	return id, x, true
}

// Succs derives successor blocks from the terminator. There is no
// stored successor list to get out of sync.
func (c *Context) Succs(b BlockID) []BlockID {
	_, x, ok := c.Terminator(b)
	if !ok {
		return nil
	}

	switch x := x.(type) {
	case Branch:
		return []BlockID{x.To}
	case ConditionalBranch:
		return []BlockID{x.True, x.False}
	default:
		return nil
	}
}

// Preds derives predecessors by scanning the function's terminators.
func (c *Context) Preds(b BlockID) []BlockID {
	f := c.Func(c.Block(b).Func)

	var preds []BlockID

	for _, ob := range f.Blocks {
		if ob == b {
			continue
		}

		for _, s := range c.Succs(ob) {
			if s == b {
				preds = append(preds, ob)
				break
			}
		}
	}

	return preds
}

// ReplaceValue rewrites every operand reference to old with new across
// the block. It never removes the now possibly unused definition.
func (c *Context) ReplaceValue(b BlockID, old, new ValueID) {
	blk := c.Block(b)

	for _, id := range blk.Instrs {
		if id == old {
			continue
		}

		c.SetValue(id, replaceIn(c.Value(id), old, new))
	}
}

// RemoveInstr deletes the instruction from the block's list. The value
// stays in the arena; a later use of its handle through remaining
// instructions is the caller's bug.
func (c *Context) RemoveInstr(b BlockID, id ValueID) {
	blk := c.Block(b)

	for i, x := range blk.Instrs {
		if x != id {
			continue
		}

		blk.Instrs = append(blk.Instrs[:i], blk.Instrs[i+1:]...)

		return
	}

	panic(fatal("instruction %d not in block %v", id, blk.Label))
}

// SplitAt splits the block's instruction list at idx into two blocks
// connected by control flow. Splitting at 0 creates a new empty
// predecessor; otherwise the tail moves into a new successor,
// preserving relative order. Returns (first, second).
func (c *Context) SplitAt(b BlockID, idx int) (BlockID, BlockID) {
	blk := c.Block(b)

	if idx < 0 || idx > len(blk.Instrs) {
		panic(fatal("split of %v at %d, len %d", blk.Label, idx, len(blk.Instrs)))
	}

	if idx == 0 {
		pre := c.NewBlock(blk.Func, blk.Label+".pre")

		// incoming edges move to the new predecessor
		for _, p := range c.Preds(b) {
			c.retarget(p, b, pre)
		}

		c.Append(pre, Branch{To: b})

		return pre, b
	}

	post := c.NewBlock(blk.Func, blk.Label+".split")

	// NewBlock may have grown the arena
	blk = c.Block(b)

	tail := blk.Instrs[idx:]
	pb := c.Block(post)
	pb.Instrs = append(pb.Instrs, tail...)

	blk = c.Block(b)
	blk.Instrs = blk.Instrs[:idx:idx]

	c.Append(b, Branch{To: post})

	return b, post
}

func (c *Context) retarget(b BlockID, from, to BlockID) {
	id, x, ok := c.Terminator(b)
	if !ok {
		return
	}

	switch x := x.(type) {
	case Branch:
		if x.To == from {
			x.To = to
			c.SetValue(id, x)
		}
	case ConditionalBranch:
		if x.True == from {
			x.True = to
		}
		if x.False == from {
			x.False = to
		}
		c.SetValue(id, x)
	}
}
