package memory

import "meshstab/internal/opencv/safe"

// freeList holds idle Mats of one PoolKey, most recently released first.
// It is only touched under the Manager's lock.
type freeList struct {
	idle  []*safe.Mat
	limit int
}

func newFreeList(capacity int) *freeList {
	return &freeList{idle: make([]*safe.Mat, 0, capacity), limit: capacity}
}

// take pops the newest still-valid Mat, closing stale ones on the way.
func (f *freeList) take() *safe.Mat {
	for n := len(f.idle); n > 0; n = len(f.idle) {
		mat := f.idle[n-1]
		f.idle[n-1] = nil
		f.idle = f.idle[:n-1]
		if mat.IsValid() && !mat.Empty() {
			return mat
		}
		mat.Close()
	}
	return nil
}

// give keeps mat for reuse and reports false when the list is full or mat
// is unusable; the caller then still owns mat.
func (f *freeList) give(mat *safe.Mat) bool {
	if mat == nil || !mat.IsValid() || mat.Empty() || len(f.idle) >= f.limit {
		return false
	}
	f.idle = append(f.idle, mat)
	return true
}

// drain closes every idle Mat and returns how many there were.
func (f *freeList) drain() int {
	n := len(f.idle)
	safe.CloseAll(f.idle...)
	clear(f.idle)
	f.idle = f.idle[:0]
	return n
}
