package app

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/John-Robertt/ddmfit/internal/domain"
	"github.com/John-Robertt/ddmfit/internal/infra/logx"
)

// Mode 是分组/平均模式。
type Mode string

const (
	ModeIndividual Mode = "individual"
	ModeTiles      Mode = "tiles"
	ModeEpisodes   Mode = "episodes"
)

// ParseMode 校验模式字符串。
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeIndividual, ModeTiles, ModeEpisodes:
		return m, nil
	default:
		return "", fmt.Errorf("未知的平均模式 %q（可选：individual/tiles/episodes）", s)
	}
}

type groupKey struct {
	a, scale int
}

type group struct {
	key     groupKey
	members []int
}

// GroupAndAverage 按模式把条目分组，并逐角度做逐元素平均。
//
// - individual：原样返回
// - tiles：按 (episode, scale) 分组，结果 window = tile = -1
// - episodes：按 (window, scale) 分组，结果 episode = tile = -1
//
// 输出按 ID 字典序稳定排序；没有任何可平均分区的组被丢弃。
func GroupAndAverage(entries []domain.DataEntry, mode Mode, log *zap.Logger) []domain.DataEntry {
	if mode == ModeIndividual || mode == "" {
		return entries
	}
	log = logx.Or(log)

	index := make(map[groupKey]int, 32)
	groups := make([]group, 0, 32)
	for i := range entries {
		k := keyOf(entries[i].Meta, mode)
		if gi, ok := index[k]; ok {
			groups[gi].members = append(groups[gi].members, i)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, group{key: k, members: []int{i}})
	}

	out := make([]domain.DataEntry, 0, len(groups))
	for _, g := range groups {
		e, ok := averageGroup(entries, g, mode, log)
		if !ok {
			log.Debug("分组没有可平均的角度分区，丢弃", zap.String("group", groupID(g.key, mode)))
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func keyOf(m domain.FileMeta, mode Mode) groupKey {
	if mode == ModeEpisodes {
		return groupKey{a: m.Window, scale: m.Scale}
	}
	return groupKey{a: m.Episode, scale: m.Scale}
}

func groupID(k groupKey, mode Mode) string {
	if mode == ModeEpisodes {
		return fmt.Sprintf("window%d_scale%d_avg_%s", k.a, k.scale, mode)
	}
	return fmt.Sprintf("episode%d_scale%d_avg_%s", k.a, k.scale, mode)
}

func averageGroup(entries []domain.DataEntry, g group, mode Mode, log *zap.Logger) (domain.DataEntry, bool) {
	first := entries[g.members[0]]

	maxAngles := 0
	sources := make([]string, 0, len(g.members))
	for _, mi := range g.members {
		maxAngles = max(maxAngles, len(entries[mi].Angles))
		sources = append(sources, entries[mi].Sources...)
	}
	sort.Strings(sources)

	// 平均条目沿用第一个成员的轴，所以每个分区的形状都以它为准。
	rows, cols := len(first.Scales), len(first.Lags)
	angles := make([]domain.AngleSection, 0, maxAngles)
	for ai := 0; ai < maxAngles; ai++ {
		var (
			desc        string
			sum         [][]float64
			contributed int
		)
		for _, mi := range g.members {
			e := entries[mi]
			if ai >= len(e.Angles) {
				continue
			}
			sec := e.Angles[ai]
			if r, c := sec.Shape(); r != rows || c != cols {
				log.Debug("分区形状不一致，不参与平均",
					zap.String("source", e.ID),
					zap.Int("angle", ai),
					zap.String("want", fmt.Sprintf("%dx%d", rows, cols)),
					zap.String("got", fmt.Sprintf("%dx%d", r, c)),
				)
				continue
			}
			if contributed == 0 {
				desc = sec.Desc
				sum = zeroMatrix(rows, cols)
			}
			for i := range sec.Data {
				for j, v := range sec.Data[i] {
					sum[i][j] += v
				}
			}
			contributed++
		}
		if contributed == 0 {
			continue
		}
		n := float64(contributed)
		for i := range sum {
			for j := range sum[i] {
				sum[i][j] /= n
			}
		}
		angles = append(angles, domain.AngleSection{
			Desc: fmt.Sprintf("%s (averaged %d %s)", desc, contributed, mode),
			Data: sum,
		})
	}
	if len(angles) == 0 {
		return domain.DataEntry{}, false
	}

	fm := first.Meta
	fm.Tile = domain.Unknown
	if mode == ModeEpisodes {
		fm.Episode = domain.Unknown
	} else {
		fm.Window = domain.Unknown
	}
	fm.Averaged = string(mode)

	return domain.DataEntry{
		ID:      groupID(g.key, mode),
		Sources: sources,
		Meta:    fm,
		Scales:  first.Scales,
		Lags:    first.Lags,
		Angles:  angles,
	}, true
}

func zeroMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}
