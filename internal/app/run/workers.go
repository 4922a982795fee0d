package run

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
)

// DefaultWorkers 返回未显式配置时的 worker 数：逻辑 CPU 数。
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// resolveWorkers 把配置值换算成实际 worker 数：<=0 取默认，且不超过 items。
func resolveWorkers(configured, items int) int {
	w := configured
	if w <= 0 {
		w = DefaultWorkers()
	}
	if items > 0 && w > items {
		w = items
	}
	if w < 1 {
		w = 1
	}
	return w
}

// chunkSize 是每次分发给 worker 的条目数：max(1, n/(2·workers))。
func chunkSize(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	c := n / (2 * workers)
	if c < 1 {
		c = 1
	}
	return c
}

// chunks 把 [0,n) 切成连续区间。
func chunks(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
