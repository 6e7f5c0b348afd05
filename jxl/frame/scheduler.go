package frame

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// Decode drains every section the current payload covers, in dependency
// order: LF global first, then LF groups and the HF global section, then
// pass groups, then the in-loop filters. Independent sections of a wave
// decode on a bounded worker pool. It returns nil once the frame is
// fully decoded and filtered, ErrInsufficientData when more payload
// bytes are needed, and any other error marks the frame failed.
func (f *Frame) Decode() error {
	if f.failed {
		return f.err
	}
	if f.toc.SingleEntry() {
		return f.decodeSequential()
	}
	for {
		progress, err := f.decodeWave()
		if err != nil {
			f.fail(err)
			return err
		}
		if !progress {
			break
		}
	}
	if f.Done() {
		return nil
	}
	return jxlerr.ErrInsufficientData
}

func (f *Frame) fail(err error) {
	f.failed = true
	if f.err == nil {
		f.err = err
	}
	for g := range f.states {
		if f.states[g] != GroupComposited {
			f.states[g] = GroupFailed
		}
	}
}

// decodeWave makes one pass over the readiness conditions and runs every
// task whose dependencies and payload bytes are in.
func (f *Frame) decodeWave() (bool, error) {
	if f.lfGlobal == nil {
		r, ok := f.sectionReader(f.toc.LFGlobal())
		if !ok {
			return false, nil
		}
		if err := f.decodeLFGlobalSection(r); err != nil {
			return false, err
		}
		return true, nil
	}

	var tasks []func() error
	for i := range f.lfGroups {
		if f.lfStates[i] != GroupPending {
			continue
		}
		r, ok := f.sectionReader(f.toc.LFGroup(i))
		if !ok {
			continue
		}
		i, r := i, r
		tasks = append(tasks, func() error {
			if err := f.decodeLFGroupSection(r, i); err != nil {
				return err
			}
			f.lfStates[i] = GroupLFReady
			return nil
		})
	}
	if !f.hfGlobalDone {
		if r, ok := f.sectionReader(f.toc.HFGlobal()); ok {
			tasks = append(tasks, func() error { return f.decodeHFGlobalSection(r) })
		}
	}
	progress := len(tasks) > 0
	if err := f.runTasks(tasks); err != nil {
		return false, err
	}

	for g := range f.states {
		if f.states[g] == GroupPending && f.lfStates[f.hdr.LFGroupIdxForGroup(g)] == GroupLFReady {
			if err := f.advance(g, GroupLFReady); err != nil {
				return false, err
			}
		}
	}

	tasks = tasks[:0]
	numPasses := int(f.hdr.Passes.NumPasses)
	if f.hfGlobalDone {
		for g := range f.states {
			if f.states[g] != GroupLFReady || f.passesDone[g] >= numPasses {
				continue
			}
			if _, ok := f.sectionReader(f.toc.PassGroup(f.passesDone[g], g)); !ok {
				continue
			}
			g := g
			tasks = append(tasks, func() error {
				for p := f.passesDone[g]; p < numPasses; p++ {
					r, ok := f.sectionReader(f.toc.PassGroup(p, g))
					if !ok {
						return nil
					}
					if err := f.decodePassSection(r, p, g); err != nil {
						return err
					}
					f.passesDone[g] = p + 1
				}
				if err := f.renderGroup(g); err != nil {
					return err
				}
				return f.advance(g, GroupHFDecoded)
			})
		}
	}
	if len(tasks) > 0 {
		progress = true
	}
	if err := f.runTasks(tasks); err != nil {
		return false, err
	}

	if !f.modularDone && f.allSectionsDecoded() {
		if err := f.finishModular(); err != nil {
			return false, err
		}
		progress = true
	}

	tasks = tasks[:0]
	for g := range f.states {
		if !f.filterReady(g) {
			continue
		}
		g := g
		tasks = append(tasks, func() error {
			if err := f.filterGroup(g); err != nil {
				return err
			}
			return f.advance(g, GroupFiltered)
		})
	}
	if len(tasks) > 0 {
		progress = true
	}
	if err := f.runTasks(tasks); err != nil {
		return false, err
	}
	return progress, nil
}

func (f *Frame) allSectionsDecoded() bool {
	for _, s := range f.lfStates {
		if s != GroupLFReady {
			return false
		}
	}
	if !f.hfGlobalDone {
		return false
	}
	numPasses := int(f.hdr.Passes.NumPasses)
	for _, done := range f.passesDone {
		if done < numPasses {
			return false
		}
	}
	return true
}

// filterReady reports whether a group's filter window can run: the group
// itself is decoded and, since the window borrows samples across group
// borders, so is every neighbor. Modular sample planes only exist once
// the whole frame stream is inverted, so modular frames filter after
// that.
func (f *Frame) filterReady(g int) bool {
	if f.states[g] != GroupHFDecoded {
		return false
	}
	if f.hdr.Encoding == EncodingModular {
		return f.modularDone
	}
	perRow := f.hdr.GroupsPerRow()
	numRows := ceilDiv(f.hdr.NumGroups(), perRow)
	gx, gy := g%perRow, g/perRow
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := gx+dx, gy+dy
			if nx < 0 || ny < 0 || nx >= perRow || ny >= numRows {
				continue
			}
			if f.states[ny*perRow+nx] < GroupHFDecoded {
				return false
			}
		}
	}
	return true
}

// decodeSequential handles the single-entry layout, where every section
// shares one continuous bitstream with no byte realignment in between.
// It only runs once the whole payload is in.
func (f *Frame) decodeSequential() error {
	if f.modularDone {
		return nil
	}
	if len(f.payload) < f.toc.TotalSize() {
		return jxlerr.ErrInsufficientData
	}
	r := bitio.NewReader(f.payload[:f.toc.TotalSize()])

	if err := f.decodeLFGlobalSection(r); err != nil {
		f.fail(err)
		return err
	}
	for i := range f.lfGroups {
		if err := f.decodeLFGroupSection(r, i); err != nil {
			f.fail(err)
			return err
		}
		f.lfStates[i] = GroupLFReady
	}
	if err := f.decodeHFGlobalSection(r); err != nil {
		f.fail(err)
		return err
	}

	numPasses := int(f.hdr.Passes.NumPasses)
	for g := range f.states {
		if err := f.advance(g, GroupLFReady); err != nil {
			f.fail(err)
			return err
		}
	}
	for p := 0; p < numPasses; p++ {
		for g := range f.states {
			if err := f.decodePassSection(r, p, g); err != nil {
				f.fail(err)
				return err
			}
			f.passesDone[g] = p + 1
		}
	}
	for g := range f.states {
		if err := f.renderGroup(g); err != nil {
			f.fail(err)
			return err
		}
		if err := f.advance(g, GroupHFDecoded); err != nil {
			f.fail(err)
			return err
		}
	}
	if err := f.finishModular(); err != nil {
		f.fail(err)
		return err
	}
	for g := range f.states {
		if err := f.filterGroup(g); err != nil {
			f.fail(err)
			return err
		}
		if err := f.advance(g, GroupFiltered); err != nil {
			f.fail(err)
			return err
		}
	}
	return nil
}

// runTasks runs the wave's tasks on a bounded pool. The first error
// cancels the tasks still queued; tasks already running finish.
func (f *Frame) runTasks(tasks []func() error) error {
	if len(tasks) == 0 {
		return nil
	}
	workers := f.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}
	if workers == 1 {
		for _, t := range tasks {
			if err := t(); err != nil {
				return err
			}
		}
		return nil
	}

	queue := make(chan func() error, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		canceled atomic.Bool
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for t := range queue {
				if canceled.Load() {
					continue
				}
				if err := t(); err != nil {
					canceled.Store(true)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}
