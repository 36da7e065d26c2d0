package export

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracker-census/tracker-census-go/internal/attribution"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// TestWrite_FixedHeaderAndOrder 测试固定表头与输入顺序
func TestWrite_FixedHeaderAndOrder(t *testing.T) {
	rows := []attribution.AttributedRow{
		{AppID: "app1", Hostname: "x.ads.tracker.com", Company: "OwnerB"},
		{AppID: "app1", Hostname: "y.tracker.com", Company: "OwnerA"},
		{AppID: "app2", Hostname: "unrelated.net", Company: attribution.CompanyUnknown},
	}

	var buf bytes.Buffer
	err := NewWriter(testLogger()).Write(&buf, rows)

	require.NoError(t, err)
	expected := "app_id,hostname,company\n" +
		"app1,x.ads.tracker.com,OwnerB\n" +
		"app1,y.tracker.com,OwnerA\n" +
		"app2,unrelated.net,unknown\n"
	assert.Equal(t, expected, buf.String())
}

// TestWrite_ByteIdentical 测试相同输入两次导出逐字节一致
func TestWrite_ByteIdentical(t *testing.T) {
	rows := []attribution.AttributedRow{
		{AppID: "app1", Hostname: "a.com", Company: "OwnerA"},
		{AppID: "app1", Hostname: "a.com", Company: "OwnerA"},
	}

	var first, second bytes.Buffer
	w := NewWriter(testLogger())
	require.NoError(t, w.Write(&first, rows))
	require.NoError(t, w.Write(&second, rows))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

// TestWrite_EmptyRows 测试空输入只写表头
func TestWrite_EmptyRows(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(testLogger()).Write(&buf, nil)

	require.NoError(t, err)
	assert.Equal(t, "app_id,hostname,company\n", buf.String())
}
