package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/utils/ptr"

	"github.com/raids-lab/staffdesk/pkg/domain"
)

func TestPageOf(t *testing.T) {
	index, size := PageOf(nil, nil)
	assert.Equal(t, 0, index)
	assert.Equal(t, domain.DefaultPageSize, size)

	index, size = PageOf(ptr.To(-1), ptr.To(0))
	assert.Equal(t, 0, index)
	assert.Equal(t, domain.DefaultPageSize, size)

	index, size = PageOf(ptr.To(3), ptr.To(50))
	assert.Equal(t, 3, index)
	assert.Equal(t, 50, size)

	_, size = PageOf(nil, ptr.To(1_000_000))
	assert.Equal(t, domain.MaxPageSize, size)
}
