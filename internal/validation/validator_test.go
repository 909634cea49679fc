package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epcore/vbstore/internal/model"
	"github.com/epcore/vbstore/internal/validation"
)

func TestValidateKey(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.ValidateKey("a-valid-key"))
	assert.Error(t, v.ValidateKey(""))
	assert.Error(t, v.ValidateKey(strings.Repeat("k", validation.MaxKeySize+1)))
	assert.Error(t, v.ValidateKey("bad\x00key"))
	assert.Error(t, v.ValidateKey("bad\nkey"))
}

func TestValidateItemSkipsBodyCheckForDeletes(t *testing.T) {
	v := validation.NewValidator()

	oversized := make([]byte, validation.MaxBodySize+1)
	assert.Error(t, v.ValidateItem(model.Item{Key: "k", Body: oversized, Deleted: false}))
	assert.NoError(t, v.ValidateItem(model.Item{Key: "k", Body: oversized, Deleted: true}))
}

func TestEstimateWriteSizeAccountsForBothColumnFamilies(t *testing.T) {
	item := model.Item{Key: "k", Body: []byte("value")}
	size := validation.EstimateWriteSize(item)
	assert.Greater(t, size, uint64(len(item.Key)+len(item.Body)))
}
