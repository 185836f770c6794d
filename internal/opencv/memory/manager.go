package memory

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"meshstab/internal/logger"
	"meshstab/internal/opencv/safe"
)

const defaultPoolSize = 4

// Manager recycles Mats of identical shape and type, such as the per-frame
// remap tables, so that a stream of equally sized frames stops allocating
// after warm-up.
type Manager struct {
	pools    map[PoolKey]*freeList
	owned    map[uint64]int64
	mu       sync.Mutex
	stats    Stats
	poolSize int
	logger   logger.Logger
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		pools:    make(map[PoolKey]*freeList),
		owned:    make(map[uint64]int64),
		poolSize: defaultPoolSize,
		stats: Stats{
			MaxAllowed: 2 * 1024 * 1024 * 1024,
		},
		logger: logger.OrNoOp(log),
	}
}

func (m *Manager) GetMat(rows, cols int, matType gocv.MatType) (*safe.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}
	if pool, exists := m.pools[key]; exists {
		if mat := pool.take(); mat != nil {
			m.stats.PoolHits++
			m.owned[mat.ID()] = matBytes(rows, cols, matType)
			m.stats.ActiveMats++
			return mat, nil
		}
	}

	size := matBytes(rows, cols, matType)
	if live := m.stats.TotalAllocated - m.stats.TotalReleased; live+size > m.stats.MaxAllowed {
		return nil, fmt.Errorf("memory limit exceeded: %d bytes live, %d requested", live, size)
	}

	m.stats.PoolMisses++
	mat, err := safe.NewMat(rows, cols, matType, "pooled")
	if err != nil {
		return nil, err
	}

	m.owned[mat.ID()] = size
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++

	m.logger.Debug("MemoryManager", "allocated pooled mat", map[string]interface{}{
		"rows":  rows,
		"cols":  cols,
		"bytes": size,
	})
	return mat, nil
}

// ReleaseMat returns mat to its pool, closing it when the pool is full or
// the mat did not come from this manager.
func (m *Manager) ReleaseMat(mat *safe.Mat) {
	if mat == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	size, exists := m.owned[mat.ID()]
	if !exists {
		m.logger.Warning("MemoryManager", "releasing untracked mat", map[string]interface{}{
			"tag": mat.Tag(),
		})
		mat.Close()
		return
	}
	delete(m.owned, mat.ID())
	m.stats.ActiveMats--

	key := PoolKey{Rows: mat.Rows(), Cols: mat.Cols(), MatType: mat.Type()}
	pool, exists := m.pools[key]
	if !exists {
		pool = newFreeList(m.poolSize)
		m.pools[key] = pool
	}
	if pool.give(mat) {
		return
	}

	mat.Close()
	m.stats.TotalReleased += size
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Cleanup closes every pooled mat. Mats still checked out stay open and
// remain the caller's to close.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, pool := range m.pools {
		n := pool.drain()
		count += n
		m.stats.TotalReleased += int64(n) * matBytes(key.Rows, key.Cols, key.MatType)
		delete(m.pools, key)
	}

	m.logger.Debug("MemoryManager", "pools drained", map[string]interface{}{
		"closed": count,
	})
}

// Shutdown satisfies the shutdown manager's component contract.
func (m *Manager) Shutdown() error {
	m.Cleanup()
	return nil
}

func matBytes(rows, cols int, matType gocv.MatType) int64 {
	return int64(rows * cols * elemSize(matType))
}

func elemSize(matType gocv.MatType) int {
	switch matType {
	case gocv.MatTypeCV8UC1:
		return 1
	case gocv.MatTypeCV8UC3:
		return 3
	case gocv.MatTypeCV8UC4:
		return 4
	case gocv.MatTypeCV32FC1:
		return 4
	case gocv.MatTypeCV32FC2:
		return 8
	case gocv.MatTypeCV64FC1:
		return 8
	default:
		return 1
	}
}
