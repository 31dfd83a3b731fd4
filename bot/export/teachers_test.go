package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/smartschedule/schedulebot/bot/schedule"
)

func TestTeachersXLSX(t *testing.T) {
	raw, err := TeachersXLSX([]schedule.Teacher{
		{Name: "Rahimova S.", Code: "1001"},
		{Name: "Karimov A.", Code: "1002"},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Teachers"}, f.GetSheetList())
	rows, err := f.GetRows("Teachers")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Teacher", "Code"},
		{"Rahimova S.", "1001"},
		{"Karimov A.", "1002"},
	}, rows)
}

func TestTeachersXLSXEmpty(t *testing.T) {
	raw, err := TeachersXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Teachers")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
