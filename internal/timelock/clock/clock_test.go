package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"timelock/internal/timelock/models"
	"timelock/pkg/requestcontext"
)

func TestWall(t *testing.T) {
	t.Run("reads request-scoped time", func(t *testing.T) {
		fixed := time.Unix(1_700_000_000, 0)
		ctx := requestcontext.WithTime(context.Background(), fixed)
		assert.Equal(t, models.Tick(1_700_000_000), Wall{}.Now(ctx))
	})

	t.Run("falls back to the system clock", func(t *testing.T) {
		got := Wall{}.Now(context.Background())
		assert.InDelta(t, float64(time.Now().Unix()), float64(got), 2)
	})
}

func TestManual(t *testing.T) {
	c := NewManual(100)
	ctx := context.Background()

	assert.Equal(t, models.Tick(100), c.Now(ctx))
	assert.Equal(t, models.Tick(150), c.Advance(50))

	c.Set(120)
	assert.Equal(t, models.Tick(150), c.Now(ctx), "manual clock never goes backwards")

	c.Set(1000)
	assert.Equal(t, models.Tick(1000), c.Now(ctx))
}
