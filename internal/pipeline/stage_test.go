package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytops/cytops/internal/table"
)

func TestBag_Tables(t *testing.T) {
	bag := NewBag()

	_, err := bag.Table(DatasetEvents)
	require.Error(t, err)

	var missingErr *MissingDatasetError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, DatasetEvents, missingErr.Dataset)
	assert.Contains(t, err.Error(), "has not been produced")

	tbl := table.New("id")
	require.NoError(t, tbl.AppendRow("1"))
	bag.PutTable(DatasetEvents, tbl)

	got, err := bag.Table(DatasetEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, []string{DatasetEvents}, bag.Tables())
}

func TestBag_Values(t *testing.T) {
	bag := NewBag()

	_, ok := bag.Value(ValueValidationRMSE)
	assert.False(t, ok)

	bag.SetValue(ValueValidationRMSE, 1.25)
	v, ok := bag.Value(ValueValidationRMSE)
	require.True(t, ok)
	assert.Equal(t, 1.25, v)
}
