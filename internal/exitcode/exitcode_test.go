package exitcode_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/puzzlehunt/huntserver/internal/exitcode"
)

func TestWrap(t *testing.T) {
	base := errors.New("bad catalog")
	err := fmt.Errorf("import failed: %w", exitcode.Wrap(exitcode.Rejected, base))

	var ee exitcode.ExitError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, exitcode.Rejected, ee.Code)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "2: bad catalog", ee.Error())
	assert.Equal(t, "1", exitcode.Wrap(exitcode.Errored, nil).Error())
}
