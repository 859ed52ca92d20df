package rootspanx

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eggybyte.com/o11y/core/errors"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory()

	require.NoError(t, d.Bind("jdbc/main", 1))
	require.NoError(t, d.Bind("jdbc/replica", 2))
	require.NoError(t, d.Bind("jdbc/main", 3))

	v, err := d.Lookup("jdbc/main")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"jdbc/main", "jdbc/replica"}, d.Names())

	d.Unbind("jdbc/replica")
	_, err = d.Lookup("jdbc/replica")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestDirectoryBindValidation(t *testing.T) {
	d := NewDirectory()
	assert.True(t, errors.IsCode(d.Bind("", 1), errors.CodeInvalidArgument))
	assert.True(t, errors.IsCode(d.Bind("x", nil), errors.CodeInvalidArgument))
	assert.Empty(t, d.Names())
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	dir := NewDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("jdbc/pool%d", i)
			for j := 0; j < 100; j++ {
				_ = dir.Bind(name, &fakePool{})
				_, _ = dir.Lookup(name)
				_ = dir.Names()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, dir.Names(), 16)
}
