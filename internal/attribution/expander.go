package attribution

import (
	"errors"
	"fmt"
)

// ErrMissingLookup 观测行中的 hostname 不在查找表中
// 说明查找表与被连接的语料不一致，属于流水线缺陷，必须中止而不能静默补默认值：
// 对不完整数据统计出的结果是误导性的
var ErrMissingLookup = errors.New("hostname missing from attribution lookup")

// Observation 一条 (app, host) 观测
type Observation struct {
	AppID    string
	Hostname string
}

// AttributedRow 长格式输出行：每条输入观测恰好产生一行
type AttributedRow struct {
	AppID    string
	Hostname string
	Company  string
}

// Expand 将冻结的查找表连接回全部观测行（左连接语义）
// 保持输入顺序，纯函数且幂等：相同输入两次展开产出完全相同。
// 源数据中的重复 (app, host) 行原样传播，不做去重。
func Expand(observations []Observation, lookup map[string]string) ([]AttributedRow, error) {
	rows := make([]AttributedRow, 0, len(observations))

	for i, obs := range observations {
		company, ok := lookup[obs.Hostname]
		if !ok {
			return nil, fmt.Errorf("row %d (app=%s, host=%q): %w",
				i, obs.AppID, obs.Hostname, ErrMissingLookup)
		}

		rows = append(rows, AttributedRow{
			AppID:    obs.AppID,
			Hostname: obs.Hostname,
			Company:  company,
		})
	}

	return rows, nil
}
