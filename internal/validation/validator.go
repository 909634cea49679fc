package validation

import (
	"strings"
	"unicode"

	"github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/model"
)

const (
	// MaxKeySize is the largest document key accepted.
	MaxKeySize = 250
	// MaxBodySize is the largest document body accepted.
	MaxBodySize = 20 * 1024 * 1024
)

// Validator checks write-path inputs before they are enqueued onto a
// transaction.
type Validator struct {
	maxKeySize  int
	maxBodySize int
}

// NewValidator creates a validator with the default size limits.
func NewValidator() *Validator {
	return &Validator{maxKeySize: MaxKeySize, maxBodySize: MaxBodySize}
}

// NewValidatorWithLimits creates a validator with custom size limits.
func NewValidatorWithLimits(maxKeySize, maxBodySize int) *Validator {
	return &Validator{maxKeySize: maxKeySize, maxBodySize: maxBodySize}
}

// ValidateItem validates an Item before it is enqueued by Set or Delete.
func (v *Validator) ValidateItem(item model.Item) error {
	if err := v.ValidateKey(item.Key); err != nil {
		return err
	}
	if !item.Deleted {
		if err := v.ValidateBody(item.Body); err != nil {
			return err
		}
	}
	return nil
}

// ValidateKey validates a document key.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.New(errors.ConfigInvalid, 0, "key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return errors.New(errors.ConfigInvalid, 0, "key exceeds maximum size", nil)
	}
	if strings.Contains(key, "\x00") {
		return errors.New(errors.ConfigInvalid, 0, "key cannot contain null bytes", nil)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return errors.New(errors.ConfigInvalid, 0, "key cannot contain control characters", nil)
		}
	}
	return nil
}

// ValidateBody validates a document body. Nil or empty bodies are valid
// (e.g. for zero-length values); tombstones skip this check entirely since
// their body is never meaningful.
func (v *Validator) ValidateBody(body []byte) error {
	if body == nil {
		return nil
	}
	if len(body) > v.maxBodySize {
		return errors.New(errors.ConfigInvalid, 0, "body exceeds maximum size", nil)
	}
	return nil
}

// EstimateWriteSize estimates the on-disk footprint of writing item, used
// by the disk manager to admission-control a pending commit. It accounts
// for the fixed metadata header in the default CF plus the key copy stored
// in the seqno CF.
func EstimateWriteSize(item model.Item) uint64 {
	const metadataSize = 42
	const seqnoKeySize = 8
	defaultCFCost := metadataSize + len(item.Key) + len(item.Body)
	seqnoCFCost := seqnoKeySize + len(item.Key)
	return uint64(defaultCFCost + seqnoCFCost)
}
