package stats

import (
	"math"
	"sort"
)

// Summary 描述性统计汇总
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
	Mode   float64 `json:"mode"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Gini   float64 `json:"gini"`
}

// Summarize 计算一组数值的描述性统计
// 空输入返回零值 Summary
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Count:  len(sorted),
		Mean:   mean(sorted),
		Median: Quantile(sorted, 0.5),
		Q1:     Quantile(sorted, 0.25),
		Q3:     Quantile(sorted, 0.75),
		IQR:    Quantile(sorted, 0.75) - Quantile(sorted, 0.25),
		Mode:   mode(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		StdDev: stdDev(sorted),
		Gini:   Gini(sorted),
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev 样本标准差 (n-1 分母)，单元素输入返回 0
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Quantile 线性插值分位数，输入必须已升序排序
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}

	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// mode 众数：出现次数最多的值，并列时取最小值
// 输入必须已升序排序
func mode(sorted []float64) float64 {
	best := sorted[0]
	bestCount := 0

	current := sorted[0]
	count := 0
	for _, v := range sorted {
		if v == current {
			count++
		} else {
			current = v
			count = 1
		}
		if count > bestCount {
			bestCount = count
			best = current
		}
	}

	return best
}

// Gini 基尼系数：引用集中度的不平等度量
// 标准公式 Σ(2i-n-1)·xᵢ / (n²·μ)，输入必须已升序排序
// 全零或单元素分布返回 0
func Gini(sorted []float64) float64 {
	n := len(sorted)
	if n < 2 {
		return 0
	}

	sum := 0.0
	weighted := 0.0
	for i, v := range sorted {
		sum += v
		weighted += float64(2*(i+1)-n-1) * v
	}
	if sum == 0 {
		return 0
	}

	return weighted / (float64(n) * sum)
}
